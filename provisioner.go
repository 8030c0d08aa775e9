package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mymodels "github.com/senpro-it/grafana-dashboard-sync/models"
	"github.com/samber/oops"
	"github.com/sourcegraph/conc/iter"
)

// TitlePrefix marks every dashboard this tool owns on the instance.
const TitlePrefix = "PROD: "

const (
	defaultReadyTimeout = 60 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultCleanupPause = 2 * time.Second
)

// Provisioner reconciles a Grafana instance against a static catalog of
// dashboard files: delete everything, recreate everything, verify by title
// prefix. No rollback, no retries; every failure is terminal for its own
// record or entry.
type Provisioner struct {
	grafana *GrafanaClient
	catalog []mymodels.Entry

	// Timing knobs, defaulted by NewProvisioner. Tests shrink these.
	ReadyTimeout time.Duration
	PollInterval time.Duration
	CleanupPause time.Duration

	// Deploy counters, valid after Run.
	Deployed int
	Failed   int
}

func NewProvisioner(grafana *GrafanaClient, catalog []mymodels.Entry) *Provisioner {
	return &Provisioner{
		grafana:      grafana,
		catalog:      catalog,
		ReadyTimeout: defaultReadyTimeout,
		PollInterval: defaultPollInterval,
		CleanupPause: defaultCleanupPause,
	}
}

// ProductionCatalog is the fixed set of production dashboards, in deploy
// order. Paths are relative to the configured dashboards directory.
func ProductionCatalog(dir string) []mymodels.Entry {
	entry := func(key string, file string, name string) mymodels.Entry {
		return mymodels.Entry{Key: key, Path: filepath.Join(dir, file), Name: name}
	}
	return []mymodels.Entry{
		entry("data_quality", "data_quality_validation_dashboard.json", "Production Data Quality & Validation Dashboard"),
		entry("entity_performance", "entity_performance_dashboard.json", "Production Entity Performance Dashboard"),
		entry("system_health", "system_health_metrics_dashboard.json", "Production System Health & Metrics Dashboard"),
		entry("advanced_analytics", "advanced_analytics_dashboard.json", "Production Advanced Analytics Dashboard"),
		entry("data_retention", "data_retention_storage_dashboard.json", "Production Data Retention & Storage Dashboard"),
		entry("raw_data_explorer", "raw_data_explorer_dashboard.json", "Production Raw Data Explorer Dashboard"),
		entry("entity_relationships", "entity_relationship_dashboard.json", "Production Entity Relationship Dashboard"),
		entry("data_patterns", "data_patterns_dashboard.json", "Production Data Patterns Dashboard"),
		entry("device_performance", "device_performance_dashboard.json", "Production Device Performance Dashboard"),
		entry("home_occupancy", "home_occupancy_presence_dashboard.json", "Production Home Occupancy & Presence Analytics Dashboard"),
		entry("energy_management", "energy_management_sustainability_dashboard.json", "Production Energy Management & Sustainability Dashboard"),
		entry("automation_performance", "automation_performance_reliability_dashboard.json", "Production Automation Performance & Reliability Dashboard"),
		entry("device_communication", "device_communication_network_health_dashboard.json", "Production Device Communication & Network Health Dashboard"),
		entry("predictive_maintenance", "predictive_maintenance_anomaly_detection_dashboard.json", "Production Predictive Maintenance & Anomaly Detection Dashboard"),
	}
}

// preflight logs which catalog files are actually on disk before touching the
// instance. Local disk only; the network pipeline stays sequential.
func (p *Provisioner) preflight() {
	logger := logger.WithPrefix("Preflight")
	iter.ForEach(p.catalog, func(entry *mymodels.Entry) {
		_, err := os.Stat(entry.Path)
		logger.Debug("Catalog entry", "key", entry.Key, "path", entry.Path, "exists", err == nil)
	})
}

// getAllDashboards enumerates the instance, returning an empty list on any
// error. Enumeration never fails the run on its own.
func (p *Provisioner) getAllDashboards() []mymodels.Record {
	records, err := p.grafana.ListDashboards()
	if err != nil {
		logger.Error("Failed to list dashboards", "error", err)
		return nil
	}
	return records
}

// deleteAllDashboards wipes every dashboard currently on the instance.
// Per-record failures are tolerated; reports true only if all were deleted.
func (p *Provisioner) deleteAllDashboards() bool {
	logger := logger.WithPrefix("Cleanup")

	records := p.getAllDashboards()
	if len(records) == 0 {
		logger.Info("No dashboards to delete")
		return true
	}

	deleted := 0
	for _, record := range records {
		if err := p.grafana.DeleteDashboard(record.UID); err != nil {
			logger.Error("Failed to delete dashboard", "uid", record.UID, "title", record.Title, "error", err)
			continue
		}
		logger.Info("Deleted dashboard", "uid", record.UID, "title", record.Title)
		deleted++
	}

	logger.Info("Cleanup done", "deleted", deleted, "total", len(records))
	return deleted == len(records)
}

// loadDashboard reads a catalog file and applies the production title prefix.
// Returns an error (never a partial document) on a missing file or malformed
// JSON; the caller skips the entry.
func loadDashboard(path string) (map[string]interface{}, error) {
	oopsBuilder := oops.
		In("loadDashboard").
		With("path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, oopsBuilder.Wrap(err)
	}

	var dashboard map[string]interface{}
	if err := json.Unmarshal(raw, &dashboard); err != nil {
		return nil, oopsBuilder.Wrap(err)
	}

	// The prefix is applied on every load; each run re-reads from disk, so it
	// never compounds across runs.
	if title, ok := dashboard["title"]; ok {
		dashboard["title"] = fmt.Sprintf("%s%v", TitlePrefix, title)
	}

	return dashboard, nil
}

// deployDashboards loads and submits every catalog entry in order. An entry
// that fails to load or submit is skipped; reports true only if every entry
// made it.
func (p *Provisioner) deployDashboards() bool {
	logger := logger.WithPrefix("Deploy")
	p.Deployed = 0
	p.Failed = 0

	for _, entry := range p.catalog {
		logger := logger.With("key", entry.Key)
		logger.Info("Deploying", "name", entry.Name)

		dashboard, err := loadDashboard(entry.Path)
		if err != nil {
			logger.Error("Skipping entry, could not load dashboard", "path", entry.Path, "error", err)
			p.Failed++
			continue
		}

		if err := p.grafana.PushDashboard(dashboard); err != nil {
			logger.Error("Skipping entry, could not push dashboard", "error", err)
			p.Failed++
			continue
		}

		logger.Info("Deployed", "title", dashboard["title"])
		p.Deployed++
	}

	logger.Info("Deploy summary", "deployed", p.Deployed, "failed", p.Failed, "total", len(p.catalog))
	return p.Deployed == len(p.catalog)
}

func countPrefixed(records []mymodels.Record) int {
	count := 0
	for _, record := range records {
		if strings.Contains(record.Title, TitlePrefix) {
			count++
		}
	}
	return count
}

// verifyDashboards re-enumerates and checks that at least one prefixed record
// exists per catalog entry. A lower-bound check: it cannot tell a clean
// deploy from one with leftover prefixed dashboards of an older catalog.
func (p *Provisioner) verifyDashboards() bool {
	logger := logger.WithPrefix("Verify")

	records := p.getAllDashboards()
	if len(records) == 0 {
		logger.Error("No dashboards found")
		return false
	}

	found := countPrefixed(records)
	logger.Info("Found production dashboards", "count", found, "expected", len(p.catalog))
	for _, record := range records {
		if strings.Contains(record.Title, TitlePrefix) {
			logger.Debug("Verified", "uid", record.UID, "title", record.Title)
		}
	}

	return found >= len(p.catalog)
}

// Run executes the full sync: readiness wait, delete-all, pause, deploy,
// verify. Any step failure short-circuits the rest; partial deletion only
// warns.
func (p *Provisioner) Run() bool {
	logger.Info("Production dashboard sync", "entries", len(p.catalog))
	p.preflight()

	if !p.grafana.WaitUntilReady(p.ReadyTimeout, p.PollInterval) {
		return false
	}

	if existing := p.getAllDashboards(); len(existing) > 0 {
		logger.Info("Found existing dashboards, deleting", "count", len(existing))
		if !p.deleteAllDashboards() {
			logger.Warn("Some dashboards may not have been deleted")
		}
	} else {
		logger.Info("No existing dashboards found, starting fresh")
	}

	// Give Grafana a moment to settle after the cleanup.
	time.Sleep(p.CleanupPause)

	if !p.deployDashboards() {
		logger.Error("Failed to deploy all production dashboards")
		return false
	}

	if !p.verifyDashboards() {
		logger.Error("Dashboard verification failed")
		return false
	}

	logger.Info("Production dashboard sync completed")
	return true
}
