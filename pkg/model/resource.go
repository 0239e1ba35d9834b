package model

// Outcome is what reconciliation did with one remote resource.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeReused  Outcome = "reused"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Folder is the shared Grafana folder every edge dashboard lives in.
type Folder struct {
	Title string `json:"title"`
	UID   string `json:"uid"`
	ID    int64  `json:"id"`
}

// Datasource is the tenant-scoped datasource of one edge.
type Datasource struct {
	Name string `json:"name"`
	UID  string `json:"uid"`
	ID   int64  `json:"id"`
}
