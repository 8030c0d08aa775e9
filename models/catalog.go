package models

// Entry is one catalog item: a dashboard JSON file on disk that should exist
// on the Grafana instance after a sync. Key is unique within a run; Path is
// resolved against the configured dashboards directory.
type Entry struct {
	Key  string
	Path string
	Name string
}
