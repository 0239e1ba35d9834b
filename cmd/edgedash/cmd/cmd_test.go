package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/margo-edgedash/internal/grafana/grafanatest"
	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

const token = "cli-token"

const template = `{"uid": "edge-${UID_SUFFIX}", "title": "Edge ${EDGE_NAME}", "panels": [{"datasource": "${DATASOURCE_UID}"}]}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edge-template.json")
	require.NoError(t, os.WriteFile(path, []byte(template), 0o644))
	return path
}

func TestTopologyCommand(t *testing.T) {
	t.Setenv("EDGE", "edge-a, edge-b")
	t.Setenv("TENANT", "edge-a:p1,edge-b:p2")

	out, err := execute(t, "topology")
	require.NoError(t, err)

	var got struct {
		Edges []model.EdgeTenant `yaml:"edges"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, []model.EdgeTenant{{Edge: "edge-a", Tenant: "p1"}, {Edge: "edge-b", Tenant: "p2"}}, got.Edges)
}

func TestTopologyCommandRejectsAmbiguousTenant(t *testing.T) {
	t.Setenv("EDGE", "edge-a,edge-b")
	t.Setenv("TENANT", "p1,p2")

	_, err := execute(t, "topology")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TENANT")
}

func TestRenderCommand(t *testing.T) {
	t.Setenv("TEMPLATE_PATH", writeTemplate(t))

	out, err := execute(t, "render", "--edge", "Edge-A", "--datasource-uid", "ds7")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "edge-edge-a", got["uid"])
	assert.Equal(t, "Edge Edge-A", got["title"])
	panel := got["panels"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "prometheus", "uid": "ds7"}, panel["datasource"])
}

func TestRenderCommandRequiresFlags(t *testing.T) {
	_, err := execute(t, "render", "--edge", "edge-a")
	assert.Error(t, err)
}

func TestPublishCommand(t *testing.T) {
	srv := grafanatest.NewServer(token)
	defer srv.Close()

	t.Setenv("GRAFANA_URL", srv.URL)
	t.Setenv("GRAFANA_TOKEN", token)
	t.Setenv("EDGE", "edge-a,edge-b")
	t.Setenv("TENANT", "edge-a:p1,edge-b:p2")
	t.Setenv("TEMPLATE_PATH", writeTemplate(t))
	metricsFile := filepath.Join(t.TempDir(), "edgedash.prom")
	t.Setenv("METRICS_TEXTFILE", metricsFile)

	out, err := execute(t, "publish", "--report-format", "json")
	require.NoError(t, err)

	var report struct {
		RunID string `json:"runId"`
		Edges []struct {
			Edge      string `json:"edge"`
			Dashboard string `json:"dashboard"`
		} `json:"edges"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Edges, 2)
	assert.Equal(t, "created", report.Edges[0].Dashboard)
	assert.Len(t, srv.Dashboards(), 2)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "edgedash_resources_total")

	_, err = execute(t, "publish")
	require.NoError(t, err)
	assert.Len(t, srv.Dashboards(), 2)
	tenants := map[string]string{}
	for _, ds := range srv.Datasources() {
		tenants[ds.Request.Name] = ds.Request.SecureJSONData["httpHeaderValue1"]
	}
	assert.Equal(t, map[string]string{"Mimir - Edge A": "p1", "Mimir - Edge B": "p2"}, tenants)
}

func TestPublishCommandFailures(t *testing.T) {
	srv := grafanatest.NewServer(token)
	defer srv.Close()

	t.Setenv("GRAFANA_URL", srv.URL)
	t.Setenv("GRAFANA_TOKEN", token)
	t.Setenv("EDGE", "edge-a,edge-b")
	t.Setenv("TENANT", "edge-a:p1,edge-b:p2")
	t.Setenv("TEMPLATE_PATH", writeTemplate(t))

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, "publish", "--report-format", "xml")
		assert.Error(t, err)
	})

	t.Run("missing token", func(t *testing.T) {
		t.Setenv("GRAFANA_TOKEN", "")
		_, err := execute(t, "publish")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GRAFANA_TOKEN")
	})

	t.Run("edge failure", func(t *testing.T) {
		srv.DatasourceCreateStatus = map[string]int{"Mimir - Edge A": 500}
		defer func() { srv.DatasourceCreateStatus = nil }()

		out, err := execute(t, "publish")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "edge edge-a")
		assert.Contains(t, out, "edge-b")
		assert.Len(t, srv.Dashboards(), 1)
	})
}
