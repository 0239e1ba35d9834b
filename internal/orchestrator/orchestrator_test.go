package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/margo-edgedash/internal/grafana"
	"github.com/balaji-balu/margo-edgedash/internal/grafana/grafanatest"
	"github.com/balaji-balu/margo-edgedash/internal/metrics"
	"github.com/balaji-balu/margo-edgedash/internal/reconcile"
	"github.com/balaji-balu/margo-edgedash/internal/topology"
	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

const token = "test-token"

const template = `{
  "uid": "edge-${UID_SUFFIX}",
  "title": "Edge ${EDGE_NAME}",
  "panels": [{"title": "cpu", "datasource": {"type": "prometheus", "uid": "${DATASOURCE_UID}"}}]
}`

func staticTemplate(context.Context) (string, error) { return template, nil }

type fixture struct {
	srv     *grafanatest.Server
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := grafanatest.NewServer(token)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, metrics: metrics.New()}
}

func (f *fixture) orchestrator(t *testing.T, runID, edges, tenant string, load TemplateLoader) *Orchestrator {
	t.Helper()
	c, err := grafana.New(f.srv.URL, token)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs
	log := zap.New(core)

	rec := reconcile.New(c, reconcile.DatasourceSettings{
		Prefix:       "Mimir - ",
		URL:          "https://mimir:9009/prometheus",
		TenantHeader: "X-Scope-OrgID",
	}, reconcile.NewRunState(runID), log, f.metrics)

	return New(Settings{
		Edges:            topology.SplitEdges(edges),
		TenantSpec:       tenant,
		FolderTitle:      "Edges",
		DatasourcePrefix: "Mimir - ",
	}, rec, load, log, f.metrics)
}

func TestRunTwiceCreatesNoDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orchestrator(t, "run-1", "edge-a,edge-b", "edge-a:p1,edge-b:p2", staticTemplate).Run(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Err())
	assert.Equal(t, model.OutcomeCreated, first.FolderOutcome)
	require.Len(t, first.Edges, 2)
	for _, e := range first.Edges {
		assert.Equal(t, model.OutcomeCreated, e.DatasourceOutcome, e.Edge)
		assert.Equal(t, model.OutcomeCreated, e.DashboardOutcome, e.Edge)
		assert.NotEmpty(t, e.DatasourceUID)
	}

	second, err := f.orchestrator(t, "run-2", "edge-a,edge-b", "edge-a:p1,edge-b:p2", staticTemplate).Run(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Err())
	assert.Equal(t, model.OutcomeReused, second.FolderOutcome)
	assert.Equal(t, first.Folder, second.Folder)
	for i, e := range second.Edges {
		assert.Equal(t, model.OutcomeReused, e.DatasourceOutcome, e.Edge)
		assert.Equal(t, model.OutcomeSkipped, e.DashboardOutcome, e.Edge)
		assert.Equal(t, first.Edges[i].DatasourceUID, e.DatasourceUID)
	}

	assert.Len(t, f.srv.Folders(), 1)
	assert.Len(t, f.srv.Dashboards(), 2)
	dss := f.srv.Datasources()
	require.Len(t, dss, 2)
	tenants := map[string]string{}
	for _, ds := range dss {
		tenants[ds.Request.Name] = ds.Request.SecureJSONData["httpHeaderValue1"]
		assert.Equal(t, "X-Scope-OrgID", ds.Request.JSONData.HTTPHeaderName1)
	}
	assert.Equal(t, map[string]string{"Mimir - Edge A": "p1", "Mimir - Edge B": "p2"}, tenants)
}

func TestRunProcessesEdgesInOrder(t *testing.T) {
	f := newFixture(t)
	report, err := f.orchestrator(t, "run-1", "edge-c, edge-a ,edge-b", "edge-a:p1, edge-b:p2, edge-c:p3", staticTemplate).Run(context.Background())
	require.NoError(t, err)

	var got []string
	tenants := map[string]string{}
	for _, e := range report.Edges {
		got = append(got, e.Edge)
		tenants[e.Edge] = e.Tenant
	}
	assert.Equal(t, []string{"edge-c", "edge-a", "edge-b"}, got)
	assert.Equal(t, map[string]string{"edge-a": "p1", "edge-b": "p2", "edge-c": "p3"}, tenants)

	dashboards := f.srv.Dashboards()
	require.Len(t, dashboards, 3)
	assert.Equal(t, "Edge edge-c", dashboards[0].Title)
	for _, d := range dashboards {
		assert.Equal(t, report.Folder.ID, d.FolderID)
		assert.Contains(t, d.Message, "run-1")
	}
}

func TestRunIsolatesEdgeFailures(t *testing.T) {
	f := newFixture(t)
	f.srv.DatasourceCreateStatus = map[string]int{"Mimir - Edge A": http.StatusInternalServerError}

	report, err := f.orchestrator(t, "run-1", "edge-a,edge-b", "edge-a:p1,edge-b:p2", staticTemplate).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Edges, 2)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "edge-a", failed[0].Edge)
	assert.Equal(t, http.StatusInternalServerError, grafana.StatusCode(failed[0].Err))
	assert.NotEmpty(t, failed[0].Error)

	ok := report.Edges[1]
	assert.NoError(t, ok.Err)
	assert.Equal(t, model.OutcomeCreated, ok.DashboardOutcome)

	require.Len(t, f.srv.Dashboards(), 1)
	assert.Equal(t, "Edge edge-b", f.srv.Dashboards()[0].Title)

	err = report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edge edge-a")
	assert.Len(t, f.logs.FilterMessage("Edge failed, continuing with next edge").All(), 1)
}

func TestRunFatalErrors(t *testing.T) {
	t.Run("topology", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orchestrator(t, "run-1", "edge-a,edge-b", "edge-a:p1", staticTemplate).Run(context.Background())
		var cfgErr *model.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Zero(t, f.srv.Calls(http.MethodGet, "/api/search"))
	})

	t.Run("template", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("no such file")
		_, err := f.orchestrator(t, "run-1", "edge-a", "p1", func(context.Context) (string, error) {
			return "", boom
		}).Run(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Empty(t, f.srv.Folders())
	})

	t.Run("folder", func(t *testing.T) {
		f := newFixture(t)
		f.srv.SearchStatus = http.StatusBadGateway
		_, err := f.orchestrator(t, "run-1", "edge-a", "p1", staticTemplate).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, grafana.StatusCode(err))
		assert.Zero(t, f.srv.Calls(http.MethodPost, grafana.DatasourcesPath))
	})

	t.Run("datasource name collision", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orchestrator(t, "run-1", "edge-a,edge_a", "edge-a:p1,edge_a:p2", staticTemplate).Run(context.Background())
		var cfgErr *model.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "EDGE", cfgErr.Field)
	})
}

func TestRunRepeatedEdgeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	report, err := f.orchestrator(t, "run-1", "edge-a,edge-a", "edge-a:p1", staticTemplate).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Edges, 2)

	assert.Equal(t, model.OutcomeCreated, report.Edges[0].DatasourceOutcome)
	assert.Equal(t, model.OutcomeCreated, report.Edges[0].DashboardOutcome)
	assert.Equal(t, model.OutcomeReused, report.Edges[1].DatasourceOutcome)
	assert.Equal(t, model.OutcomeSkipped, report.Edges[1].DashboardOutcome)
	assert.Len(t, f.srv.Datasources(), 1)
	assert.Len(t, f.srv.Dashboards(), 1)
	assert.Empty(t, f.logs.FilterMessage("Edges share a dashboard uid suffix").All())
}

func TestRunWarnsOnSharedUIDSuffix(t *testing.T) {
	f := newFixture(t)
	report, err := f.orchestrator(t, "run-1", "edge-a,edge.a", "edge-a:p1,edge.a:p2", staticTemplate).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Len(t, f.logs.FilterMessage("Edges share a dashboard uid suffix").All(), 1)
	assert.Equal(t, model.OutcomeCreated, report.Edges[0].DashboardOutcome)
	assert.Equal(t, model.OutcomeSkipped, report.Edges[1].DashboardOutcome)
}

func TestReportWrite(t *testing.T) {
	f := newFixture(t)
	f.srv.DatasourceCreateStatus = map[string]int{"Mimir - Edge B": http.StatusForbidden}
	report, err := f.orchestrator(t, "run-1", "edge-a,edge-b", "edge-a:p1,edge-b:p2", staticTemplate).Run(context.Background())
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Write(&buf, FormatText))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 4)
		assert.Contains(t, lines[0], `Folder "Edges"`)
		assert.Contains(t, lines[1], "EDGE")
		assert.Contains(t, lines[2], "edge-a")
		assert.Contains(t, lines[2], "created")
		assert.Contains(t, lines[3], "403")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Write(&buf, FormatJSON))
		var got struct {
			RunID string `json:"runId"`
			Edges []struct {
				Edge  string `json:"edge"`
				Error string `json:"error"`
			} `json:"edges"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "run-1", got.RunID)
		require.Len(t, got.Edges, 2)
		assert.Empty(t, got.Edges[0].Error)
		assert.NotEmpty(t, got.Edges[1].Error)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Write(&buf, FormatYAML))
		var got map[string]interface{}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "run-1", got["runId"])
		assert.Equal(t, "created", got["folderOutcome"])
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, report.Write(&bytes.Buffer{}, "xml"))
	})
}
