package models

// Record is a dashboard as known to the Grafana instance, identified by a
// server-assigned UID. Records are created by submission and destroyed by
// deletion; the sync never updates one in place.
type Record struct {
	ID    int64
	UID   string
	Title string
}
