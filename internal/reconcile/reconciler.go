// Package reconcile makes sure the Grafana resources of each edge exist.
//
// Every operation follows the same pattern: search, check for an exact
// match, create only if absent. Nothing is ever updated or deleted, so a
// run can be repeated safely.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/balaji-balu/margo-edgedash/internal/grafana"
	"github.com/balaji-balu/margo-edgedash/internal/metrics"
	"github.com/balaji-balu/margo-edgedash/internal/naming"
	"github.com/balaji-balu/margo-edgedash/internal/render"
	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

// API is the subset of the Grafana client the reconciler needs.
type API interface {
	Get(ctx context.Context, path string, out interface{}) error
	Post(ctx context.Context, path string, body, out interface{}) error
}

// DatasourceSettings describe the tenant-scoped datasource created per edge.
type DatasourceSettings struct {
	Prefix       string
	URL          string
	TenantHeader string

	CACert     string
	ClientCert string
	ClientKey  string
}

// RunState is what one run learns about the platform. It is never shared
// between runs.
type RunState struct {
	RunID  string
	folder *model.Folder
}

func NewRunState(runID string) *RunState {
	return &RunState{RunID: runID}
}

// Folder returns the reconciled folder, if EnsureFolder succeeded.
func (s *RunState) Folder() (model.Folder, bool) {
	if s.folder == nil {
		return model.Folder{}, false
	}
	return *s.folder, true
}

type Reconciler struct {
	api     API
	ds      DatasourceSettings
	state   *RunState
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New returns a Reconciler. m may be nil.
func New(api API, ds DatasourceSettings, state *RunState, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		api:     api,
		ds:      ds,
		state:   state,
		logger:  logger,
		metrics: m,
	}
}

func (r *Reconciler) State() *RunState {
	return r.state
}

// EnsureFolder finds the folder titled title, creating it if needed, and
// records it in the run state.
func (r *Reconciler) EnsureFolder(ctx context.Context, title string) (model.Folder, model.Outcome, error) {
	var hits []grafana.SearchHit
	if err := r.api.Get(ctx, grafana.SearchPath(grafana.SearchTypeFolder, title, 0), &hits); err != nil {
		return model.Folder{}, model.OutcomeFailed, fmt.Errorf("search folder %q: %w", title, err)
	}

	// search is a substring match
	for _, h := range hits {
		if h.Title != title {
			continue
		}
		folder := model.Folder{Title: h.Title, UID: h.UID, ID: h.ID}
		r.state.folder = &folder
		r.logger.Info("Folder already exists",
			zap.String("folder", title), zap.Int64("id", folder.ID), zap.String("uid", folder.UID))
		r.observe(metrics.ResourceFolder, model.OutcomeReused)
		return folder, model.OutcomeReused, nil
	}

	var resp grafana.FolderResponse
	if err := r.api.Post(ctx, grafana.FoldersPath, map[string]string{"title": title}, &resp); err != nil {
		return model.Folder{}, model.OutcomeFailed, fmt.Errorf("create folder %q: %w", title, err)
	}
	if resp.UID == "" {
		return model.Folder{}, model.OutcomeFailed, fmt.Errorf("create folder %q: response has no uid", title)
	}

	folder := model.Folder{Title: title, UID: resp.UID, ID: resp.ID}
	r.state.folder = &folder
	r.logger.Info("Created folder",
		zap.String("folder", title), zap.String("url", resp.URL),
		zap.Int64("id", folder.ID), zap.String("uid", folder.UID))
	r.observe(metrics.ResourceFolder, model.OutcomeCreated)
	return folder, model.OutcomeCreated, nil
}

// EnsureDatasource returns the uid of the datasource of edge, creating it
// for tenant if no datasource of that name exists.
func (r *Reconciler) EnsureDatasource(ctx context.Context, edge model.EdgeID, tenant model.TenantID) (string, model.Outcome, error) {
	name := naming.DatasourceName(edge, r.ds.Prefix)
	log := r.logger.With(zap.String("edge", edge), zap.String("datasource", name))

	existing, err := r.lookupDatasource(ctx, name)
	switch {
	case err == nil:
		log.Info("Datasource already exists", zap.Int64("id", existing.ID), zap.String("uid", existing.UID))
		r.observe(metrics.ResourceDatasource, model.OutcomeReused)
		return existing.UID, model.OutcomeReused, nil
	case !grafana.IsNotFound(err):
		return "", model.OutcomeFailed, err
	}
	log.Info("Datasource not found, creating", zap.String("tenant", tenant))

	var created interface{}
	if err := r.api.Post(ctx, grafana.DatasourcesPath, r.datasourceRequest(name, tenant), &created); err != nil {
		return "", model.OutcomeFailed, fmt.Errorf("create datasource %q: %w", name, err)
	}

	if uid := createdUID(created); uid != "" {
		log.Info("Created datasource", zap.String("uid", uid))
		r.observe(metrics.ResourceDatasource, model.OutcomeCreated)
		return uid, model.OutcomeCreated, nil
	}

	// older Grafana versions answer without the uid
	existing, err = r.lookupDatasource(ctx, name)
	if err != nil {
		return "", model.OutcomeFailed, fmt.Errorf("created datasource %q but lookup failed: %w", name, err)
	}
	log.Info("Created datasource (uid fetched via lookup)",
		zap.Int64("id", existing.ID), zap.String("uid", existing.UID))
	r.observe(metrics.ResourceDatasource, model.OutcomeCreated)
	return existing.UID, model.OutcomeCreated, nil
}

func (r *Reconciler) lookupDatasource(ctx context.Context, name string) (grafana.DatasourceResponse, error) {
	var ds grafana.DatasourceResponse
	if err := r.api.Get(ctx, grafana.DatasourceByNamePath(name), &ds); err != nil {
		return ds, fmt.Errorf("lookup datasource %q: %w", name, err)
	}
	if ds.UID == "" {
		return ds, fmt.Errorf("lookup datasource %q: response has no uid", name)
	}
	return ds, nil
}

func (r *Reconciler) datasourceRequest(name string, tenant model.TenantID) grafana.CreateDatasourceRequest {
	secure := map[string]string{"httpHeaderValue1": tenant}
	if r.ds.CACert != "" {
		secure["tlsCACert"] = r.ds.CACert
	}
	if r.ds.ClientCert != "" {
		secure["tlsClientCert"] = r.ds.ClientCert
	}
	if r.ds.ClientKey != "" {
		secure["tlsClientKey"] = r.ds.ClientKey
	}

	return grafana.CreateDatasourceRequest{
		Name:      name,
		Type:      render.DatasourceType,
		Access:    "proxy",
		URL:       r.ds.URL,
		IsDefault: false,
		Editable:  true,
		JSONData: grafana.DatasourceJSONData{
			HTTPHeaderName1:   r.ds.TenantHeader,
			TLSAuth:           r.ds.ClientCert != "" && r.ds.ClientKey != "",
			TLSAuthWithCACert: r.ds.CACert != "",
		},
		SecureJSONData: secure,
	}
}

// createdUID digs the uid out of a datasource create response, which is
// {"datasource": {"uid": ...}} on current Grafana and {"uid": ...} on some
// older versions.
func createdUID(resp interface{}) string {
	obj, ok := resp.(map[string]interface{})
	if !ok {
		return ""
	}
	if nested, ok := obj["datasource"].(map[string]interface{}); ok {
		if uid, ok := nested["uid"].(string); ok && uid != "" {
			return uid
		}
	}
	uid, _ := obj["uid"].(string)
	return uid
}

// EnsureDashboard renders templateText for edge and creates the dashboard
// in the run's folder unless one with the same title is already there.
func (r *Reconciler) EnsureDashboard(ctx context.Context, edge model.EdgeID, datasourceUID, templateText string) (model.Outcome, error) {
	folder, ok := r.state.Folder()
	if !ok {
		return model.OutcomeFailed, &model.PreconditionError{
			Op:  "ensure dashboard",
			Msg: "folder not initialized, call EnsureFolder first",
		}
	}

	dashboard, err := render.Render(templateText, edge, datasourceUID, naming.SafeIdentifier(edge))
	if err != nil {
		return model.OutcomeFailed, err
	}
	title := dashboard.EnsureTitle(edge)
	log := r.logger.With(zap.String("edge", edge), zap.String("dashboard", title), zap.String("folder", folder.Title))

	var hits []grafana.SearchHit
	if err := r.api.Get(ctx, grafana.SearchPath(grafana.SearchTypeDashboard, title, folder.ID), &hits); err != nil {
		return model.OutcomeFailed, fmt.Errorf("search dashboard %q: %w", title, err)
	}
	for _, h := range hits {
		if h.Title != title || (h.FolderUID != "" && h.FolderUID != folder.UID) {
			continue
		}
		log.Info("Dashboard already exists in folder, skipping", zap.String("uid", h.UID))
		r.observe(metrics.ResourceDashboard, model.OutcomeSkipped)
		return model.OutcomeSkipped, nil
	}

	req := grafana.SaveDashboardRequest{
		Dashboard: dashboard,
		FolderUID: folder.UID,
		Message:   r.commitMessage(edge),
		Overwrite: false,
	}
	var resp grafana.SaveDashboardResponse
	if err := r.api.Post(ctx, grafana.DashboardsPath, req, &resp); err != nil {
		if grafana.IsConflict(err) {
			log.Warn("Grafana reported a conflict, treating as already exists",
				zap.Int("status", grafana.StatusCode(err)))
			r.observe(metrics.ResourceDashboard, model.OutcomeSkipped)
			return model.OutcomeSkipped, nil
		}
		return model.OutcomeFailed, fmt.Errorf("create dashboard %q: %w", title, err)
	}

	log.Info("Created dashboard", zap.String("url", resp.URL), zap.String("uid", resp.UID))
	r.observe(metrics.ResourceDashboard, model.OutcomeCreated)
	return model.OutcomeCreated, nil
}

func (r *Reconciler) commitMessage(edge model.EdgeID) string {
	if r.state.RunID == "" {
		return "CI add for " + edge
	}
	return fmt.Sprintf("CI add for %s (run %s)", edge, r.state.RunID)
}

func (r *Reconciler) observe(resource string, outcome model.Outcome) {
	if r.metrics != nil {
		r.metrics.Observe(resource, string(outcome))
	}
}
