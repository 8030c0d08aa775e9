package main

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-openapi/runtime"
	"github.com/go-openapi/strfmt"
	grafana "github.com/grafana/grafana-openapi-client-go/client"
	"github.com/grafana/grafana-openapi-client-go/client/search"
	"github.com/grafana/grafana-openapi-client-go/models"
	"github.com/samber/oops"
	mymodels "github.com/senpro-it/grafana-dashboard-sync/models"
	"github.com/senpro-it/grafana-dashboard-sync/tools"
)

const (
	// Per-request budgets. Dashboard posts can be large, health checks are tiny.
	healthRequestTimeout = 5 * time.Second
	pushRequestTimeout   = 30 * time.Second
)

type GrafanaClient struct {
	client *grafana.GrafanaHTTPAPI
}

func MakeGrafanaClient(baseUrl string, username string, password string) (*GrafanaClient, error) {
	gurl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, oops.
			In("MakeGrafanaClient").
			User(username).
			With("baseUrl", baseUrl).
			Wrap(err)
	}
	cfg := &grafana.TransportConfig{
		Host:      gurl.Host,
		BasePath:  gurl.Path,
		Schemes:   []string{gurl.Scheme},
		BasicAuth: url.UserPassword(username, password),
	}
	client := grafana.NewHTTPClientWithConfig(strfmt.Default, cfg)
	return &GrafanaClient{client}, nil
}

// withRequestTimeout swaps in a throwaway http.Client for one operation. The
// generated client has no other per-operation timeout knob.
func withRequestTimeout(d time.Duration) func(op *runtime.ClientOperation) {
	return func(op *runtime.ClientOperation) {
		op.Client = &http.Client{Timeout: d}
	}
}

// IsReady reports whether Grafana answers its health endpoint with a working
// database. A reachable instance that is still migrating reports (false, nil).
func (c *GrafanaClient) IsReady() (bool, string, error) {
	oopsBuilder := oops.In("IsReady")
	ok, err := c.client.Health.GetHealth(withRequestTimeout(healthRequestTimeout))
	if err != nil {
		return false, "", oopsBuilder.Wrap(err)
	}
	if !ok.IsSuccess() {
		return false, "", oopsBuilder.Errorf("health request was not successful")
	}
	state := ok.GetPayload().Database
	return state == "ok", state, nil
}

// WaitUntilReady polls the health endpoint every interval until the database
// reports ok or timeout elapses. Returns false on timeout; connectivity
// errors during the wait are expected (Grafana may still be booting) and only
// logged.
func (c *GrafanaClient) WaitUntilReady(timeout time.Duration, interval time.Duration) bool {
	logger := logger.WithPrefix("Readiness")
	logger.Info("Waiting for Grafana...")

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ready, state, err := c.IsReady()
		if err != nil {
			logger.Debug("Not reachable yet", "error", err)
		} else if ready {
			logger.Info("Grafana is ready")
			return true
		} else {
			logger.Debug("Still starting up", "database", state)
		}
		time.Sleep(interval)
	}

	logger.Error("Grafana did not become ready in time", "timeout", timeout)
	return false
}

// ListDashboards enumerates all dashboards (not folders) on the instance.
func (c *GrafanaClient) ListDashboards() ([]mymodels.Record, error) {
	oopsBuilder := oops.In("ListDashboards")
	params := &search.SearchParams{Type: tools.PtrOf("dash-db")}

	hits, err := c.client.Search.Search(params, nil)
	if err != nil {
		return nil, oopsBuilder.Wrap(err)
	}
	if !hits.IsSuccess() {
		return nil, oopsBuilder.
			With("hits", hits).
			Errorf("search request was not successful")
	}

	var records []mymodels.Record
	for _, hit := range hits.GetPayload() {
		records = append(records, mymodels.Record{
			ID:    hit.ID,
			UID:   hit.UID,
			Title: hit.Title,
		})
	}
	return records, nil
}

// DeleteDashboard removes one dashboard by UID.
func (c *GrafanaClient) DeleteDashboard(uid string) error {
	oopsBuilder := oops.
		In("DeleteDashboard").
		With("uid", uid)
	res, err := c.client.Dashboards.DeleteDashboardByUID(uid)
	if err != nil {
		return oopsBuilder.Wrap(err)
	}
	if !res.IsSuccess() {
		return oopsBuilder.
			With("res", res).
			Errorf("delete request was not successful")
	}
	return nil
}

// PushDashboard submits a dashboard document into the root folder,
// overwriting any dashboard with the same UID or title.
func (c *GrafanaClient) PushDashboard(dashboard map[string]interface{}) error {
	oopsBuilder := oops.
		In("PushDashboard").
		With("title", dashboard["title"])
	body := &models.SaveDashboardCommand{
		Dashboard: dashboard,
		Overwrite: true,
		FolderID:  0,
	}
	res, err := c.client.Dashboards.PostDashboard(body, withRequestTimeout(pushRequestTimeout))
	if err != nil {
		return oopsBuilder.Wrap(err)
	}
	if !res.IsSuccess() {
		return oopsBuilder.
			With("res", res).
			Errorf("post request was not successful")
	}
	return nil
}
