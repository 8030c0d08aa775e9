package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGrafana is an in-memory stand-in for the Grafana HTTP API: health,
// search, delete-by-uid and post-dashboard, backed by a uid -> title map.
type fakeGrafana struct {
	mu      sync.Mutex
	healthy bool
	titles  map[string]string
	nextID  int

	searches int
	deletes  int
	posts    int

	server *httptest.Server
}

func newFakeGrafana(t *testing.T, healthy bool) *fakeGrafana {
	t.Helper()
	f := &fakeGrafana{
		healthy: healthy,
		titles:  make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", f.handleHealth)
	mux.HandleFunc("GET /api/search", f.handleSearch)
	mux.HandleFunc("DELETE /api/dashboards/uid/{uid}", f.handleDelete)
	mux.HandleFunc("POST /api/dashboards/db", f.handlePost)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGrafana) client(t *testing.T) *GrafanaClient {
	t.Helper()
	client, err := MakeGrafanaClient(f.server.URL+"/api", "admin", "admin")
	require.NoError(t, err)
	return client
}

func (f *fakeGrafana) seed(title string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	uid := fmt.Sprintf("seed-%d", f.nextID)
	f.titles[uid] = title
	return uid
}

func (f *fakeGrafana) titleSet() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]bool, len(f.titles))
	for _, title := range f.titles {
		set[title] = true
	}
	return set
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *fakeGrafana) handleHealth(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	healthy := f.healthy
	f.mu.Unlock()
	database := "ok"
	if !healthy {
		database = "starting"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"commit":   "abcdef",
		"database": database,
		"version":  "10.4.0",
	})
}

func (f *fakeGrafana) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	hits := []map[string]interface{}{}
	i := 0
	for uid, title := range f.titles {
		i++
		hits = append(hits, map[string]interface{}{
			"id":    i,
			"uid":   uid,
			"title": title,
			"type":  "dash-db",
			"uri":   "db/" + uid,
			"url":   "/d/" + uid,
		})
	}
	writeJSON(w, http.StatusOK, hits)
}

func (f *fakeGrafana) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	uid := r.PathValue("uid")
	title, ok := f.titles[uid]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Dashboard not found"})
		return
	}
	delete(f.titles, uid)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      1,
		"message": "Dashboard " + title + " deleted",
		"title":   title,
	})
}

func (f *fakeGrafana) handlePost(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts++

	var payload struct {
		Dashboard map[string]interface{} `json:"dashboard"`
		Overwrite bool                   `json:"overwrite"`
		FolderID  int                    `json:"folderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Dashboard == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad dashboard payload"})
		return
	}

	uid, _ := payload.Dashboard["uid"].(string)
	if uid == "" {
		f.nextID++
		uid = fmt.Sprintf("gen-%d", f.nextID)
	}
	if _, exists := f.titles[uid]; exists && !payload.Overwrite {
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"message": "A dashboard with the same uid already exists"})
		return
	}
	title, _ := payload.Dashboard["title"].(string)
	f.titles[uid] = title
	f.nextID++

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      f.nextID,
		"slug":    strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		"status":  "success",
		"uid":     uid,
		"url":     "/d/" + uid,
		"version": 1,
	})
}

func TestMakeGrafanaClientRejectsBadURL(t *testing.T) {
	_, err := MakeGrafanaClient("http://bad host/api", "admin", "admin")
	assert.Error(t, err)
}

func TestWaitUntilReady(t *testing.T) {
	fake := newFakeGrafana(t, true)
	client := fake.client(t)

	assert.True(t, client.WaitUntilReady(time.Second, 10*time.Millisecond))
}

func TestWaitUntilReadyTimesOut(t *testing.T) {
	fake := newFakeGrafana(t, false)
	client := fake.client(t)

	assert.False(t, client.WaitUntilReady(80*time.Millisecond, 10*time.Millisecond))
}

func TestListDashboards(t *testing.T) {
	fake := newFakeGrafana(t, true)
	uid := fake.seed("System Health")
	client := fake.client(t)

	records, err := client.ListDashboards()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uid, records[0].UID)
	assert.Equal(t, "System Health", records[0].Title)
}

func TestListDashboardsEmpty(t *testing.T) {
	fake := newFakeGrafana(t, true)
	client := fake.client(t)

	records, err := client.ListDashboards()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDeleteDashboard(t *testing.T) {
	fake := newFakeGrafana(t, true)
	uid := fake.seed("Old Dashboard")
	client := fake.client(t)

	require.NoError(t, client.DeleteDashboard(uid))
	assert.Empty(t, fake.titleSet())

	assert.Error(t, client.DeleteDashboard("no-such-uid"))
}

func TestPushDashboardOverwrites(t *testing.T) {
	fake := newFakeGrafana(t, true)
	client := fake.client(t)

	dashboard := map[string]interface{}{"uid": "dash-1", "title": "PROD: First"}
	require.NoError(t, client.PushDashboard(dashboard))

	dashboard["title"] = "PROD: Second"
	require.NoError(t, client.PushDashboard(dashboard))

	titles := fake.titleSet()
	assert.Len(t, titles, 1)
	assert.True(t, titles["PROD: Second"])
}
