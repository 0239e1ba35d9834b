// Package orchestrator drives one provisioning run across all edges.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/balaji-balu/margo-edgedash/internal/logger"
	"github.com/balaji-balu/margo-edgedash/internal/metrics"
	"github.com/balaji-balu/margo-edgedash/internal/naming"
	"github.com/balaji-balu/margo-edgedash/internal/reconcile"
	"github.com/balaji-balu/margo-edgedash/internal/topology"
	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

const tracerName = "github.com/balaji-balu/margo-edgedash/internal/orchestrator"

// TemplateLoader returns the dashboard template text.
type TemplateLoader func(ctx context.Context) (string, error)

type Settings struct {
	Edges       []model.EdgeID
	TenantSpec  string
	FolderTitle string
	// DatasourcePrefix is only used to detect edges whose datasource
	// names would collide.
	DatasourcePrefix string
}

type Orchestrator struct {
	settings     Settings
	reconciler   *reconcile.Reconciler
	loadTemplate TemplateLoader
	logger       *zap.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

// New returns an Orchestrator. m may be nil.
func New(s Settings, rec *reconcile.Reconciler, load TemplateLoader, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		settings:     s,
		reconciler:   rec,
		loadTemplate: load,
		logger:       logger,
		metrics:      m,
		tracer:       otel.Tracer(tracerName),
	}
}

// Run reconciles the folder and then every edge in the configured order.
// A returned error means nothing was attempted for the edges; per-edge
// failures are recorded in the report instead, see Report.Err.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	ctx, span := o.tracer.Start(ctx, "edgedash.Run")
	defer span.End()

	report := &Report{
		RunID:     o.reconciler.State().RunID,
		StartedAt: time.Now().UTC(),
	}
	log := logger.ForContext(ctx, o.logger).With(zap.String("run_id", report.RunID))

	topo, err := topology.Parse(o.settings.Edges, o.settings.TenantSpec)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := o.checkNames(topo, log); err != nil {
		return nil, fail(span, err)
	}
	log.Info("Topology loaded", zap.Strings("edges", topo.Edges()))
	if o.metrics != nil {
		o.metrics.LastRunEdges.Set(float64(topo.Len()))
	}

	tmpl, err := o.loadTemplate(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("load template: %w", err))
	}

	folder, outcome, err := o.reconciler.EnsureFolder(ctx, o.settings.FolderTitle)
	if err != nil {
		return nil, fail(span, err)
	}
	report.Folder, report.FolderOutcome = folder, outcome

	for _, edge := range topo.Edges() {
		tenant, _ := topo.Tenant(edge)
		if err := ctx.Err(); err != nil {
			report.Edges = append(report.Edges, EdgeResult{Edge: edge, Tenant: tenant, Err: err, Error: err.Error()})
			continue
		}
		report.Edges = append(report.Edges, o.reconcileEdge(ctx, edge, tenant, tmpl))
	}
	report.FinishedAt = time.Now().UTC()

	failed := len(report.Failed())
	span.SetAttributes(attribute.Int("edgedash.edges", topo.Len()), attribute.Int("edgedash.failed", failed))
	log.Info("Run finished", zap.Int("edges", topo.Len()), zap.Int("failed", failed),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (o *Orchestrator) reconcileEdge(ctx context.Context, edge model.EdgeID, tenant model.TenantID, tmpl string) EdgeResult {
	ctx, span := o.tracer.Start(ctx, "edgedash.ReconcileEdge", trace.WithAttributes(
		attribute.String("edgedash.edge", edge),
		attribute.String("edgedash.tenant", tenant),
	))
	defer span.End()

	start := time.Now()
	log := logger.ForContext(ctx, o.logger).With(zap.String("edge", edge), zap.String("tenant", tenant))
	res := EdgeResult{Edge: edge, Tenant: tenant}

	defer func() {
		if o.metrics != nil {
			o.metrics.EdgeDuration.WithLabelValues(edge).Observe(time.Since(start).Seconds())
		}
	}()

	uid, dsOutcome, err := o.reconciler.EnsureDatasource(ctx, edge, tenant)
	res.DatasourceUID, res.DatasourceOutcome = uid, dsOutcome
	if err != nil {
		return o.edgeFailed(span, log, res, err)
	}

	dashOutcome, err := o.reconciler.EnsureDashboard(ctx, edge, uid, tmpl)
	res.DashboardOutcome = dashOutcome
	if err != nil {
		return o.edgeFailed(span, log, res, err)
	}

	log.Info("Edge reconciled",
		zap.String("datasource", string(res.DatasourceOutcome)),
		zap.String("dashboard", string(res.DashboardOutcome)))
	return res
}

func (o *Orchestrator) edgeFailed(span trace.Span, log *zap.Logger, res EdgeResult, err error) EdgeResult {
	res.Err = err
	res.Error = err.Error()
	log.Error("Edge failed, continuing with next edge", zap.Error(err))
	if o.metrics != nil {
		o.metrics.EdgeFailures.WithLabelValues(res.Edge).Inc()
	}
	fail(span, err)
	return res
}

// checkNames rejects distinct edges that would share a datasource and warns
// about distinct edges sharing a dashboard uid suffix. A repeated edge id is
// not a collision.
func (o *Orchestrator) checkNames(topo *model.Topology, log *zap.Logger) error {
	names := make(map[string]model.EdgeID)
	suffixes := make(map[string]model.EdgeID)
	seen := make(map[model.EdgeID]bool)
	for _, edge := range topo.Edges() {
		if seen[edge] {
			continue
		}
		seen[edge] = true

		name := naming.DatasourceName(edge, o.settings.DatasourcePrefix)
		if prev, ok := names[name]; ok {
			return model.NewConfigError("EDGE", "edges %q and %q both map to datasource %q", prev, edge, name)
		}
		names[name] = edge

		suffix := naming.SafeIdentifier(edge)
		if prev, ok := suffixes[suffix]; ok {
			log.Warn("Edges share a dashboard uid suffix",
				zap.String("edge", edge), zap.String("other", prev), zap.String("suffix", suffix))
			continue
		}
		suffixes[suffix] = edge
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
