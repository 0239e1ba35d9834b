package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// EdgeResult is the outcome of one edge.
type EdgeResult struct {
	Edge              model.EdgeID   `json:"edge" yaml:"edge"`
	Tenant            model.TenantID `json:"tenant" yaml:"tenant"`
	DatasourceUID     string         `json:"datasourceUid,omitempty" yaml:"datasourceUid,omitempty"`
	DatasourceOutcome model.Outcome  `json:"datasource,omitempty" yaml:"datasource,omitempty"`
	DashboardOutcome  model.Outcome  `json:"dashboard,omitempty" yaml:"dashboard,omitempty"`
	Error             string         `json:"error,omitempty" yaml:"error,omitempty"`

	Err error `json:"-" yaml:"-"`
}

type Report struct {
	RunID         string        `json:"runId" yaml:"runId"`
	Folder        model.Folder  `json:"folder" yaml:"folder"`
	FolderOutcome model.Outcome `json:"folderOutcome" yaml:"folderOutcome"`
	Edges         []EdgeResult  `json:"edges" yaml:"edges"`
	StartedAt     time.Time     `json:"startedAt" yaml:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt" yaml:"finishedAt"`
}

// Failed returns the edges that did not reconcile.
func (r *Report) Failed() []EdgeResult {
	var out []EdgeResult
	for _, e := range r.Edges {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// Err combines the errors of all failed edges, nil if every edge succeeded.
func (r *Report) Err() error {
	var err error
	for _, e := range r.Failed() {
		err = multierr.Append(err, fmt.Errorf("edge %s: %w", e.Edge, e.Err))
	}
	return err
}

// Write renders the report in format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return r.writeText(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	fmt.Fprintf(w, "Folder %q (uid=%s): %s\n", r.Folder.Title, r.Folder.UID, r.FolderOutcome)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EDGE\tTENANT\tDATASOURCE\tDASHBOARD\tERROR")
	for _, e := range r.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Edge, e.Tenant, dash(string(e.DatasourceOutcome)), dash(string(e.DashboardOutcome)), e.Error)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
