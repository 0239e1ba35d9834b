package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(ResourceDatasource, "created")
	m.Observe(ResourceDatasource, "created")
	m.Observe(ResourceDashboard, "skipped")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResourcesTotal.WithLabelValues(ResourceDatasource, "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResourcesTotal.WithLabelValues(ResourceDashboard, "skipped")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Observe(ResourceFolder, "reused")
	m.EdgeFailures.WithLabelValues("edge-a").Inc()

	path := filepath.Join(t.TempDir(), "edgedash.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `edgedash_resources_total{outcome="reused",resource="folder"} 1`)
	assert.Contains(t, string(b), `edgedash_edge_failures_total{edge="edge-a"} 1`)
}
