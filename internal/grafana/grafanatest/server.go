// Package grafanatest provides an in-memory Grafana HTTP API covering the
// folder, datasource and dashboard endpoints edgedash uses.
package grafanatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/balaji-balu/margo-edgedash/internal/grafana"
)

// Datasource create response shapes.
const (
	// ShapeNested is what Grafana 8+ returns: {"datasource":{...},"id":..}.
	ShapeNested = "nested"
	// ShapeFlat puts the uid at the top level.
	ShapeFlat = "flat"
	// ShapeBare omits the uid entirely.
	ShapeBare = "bare"
)

type Dashboard struct {
	ID        int64
	UID       string
	Title     string
	FolderID  int64
	FolderUID string
	Message   string
	Body      map[string]interface{}
}

type Datasource struct {
	ID      int64
	UID     string
	Request grafana.CreateDatasourceRequest
}

type Server struct {
	*httptest.Server

	// DatasourceCreateShape selects the POST /api/datasources response
	// shape; empty means ShapeNested.
	DatasourceCreateShape string
	// DashboardCreateStatus, when set, is returned by every dashboard save.
	DashboardCreateStatus int
	// DatasourceCreateStatus maps datasource names to a forced status.
	DatasourceCreateStatus map[string]int
	// SearchStatus, when set, is returned by every search.
	SearchStatus int

	token string

	mu          sync.Mutex
	nextID      int64
	folders     []grafana.FolderResponse
	datasources []*Datasource
	dashboards  []*Dashboard
	calls       map[string]int
}

// NewServer starts a fake Grafana accepting token as bearer token.
func NewServer(token string) *Server {
	s := &Server{
		token:                  token,
		calls:                  make(map[string]int),
		DatasourceCreateStatus: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", s.search)
	mux.HandleFunc("POST /api/folders", s.createFolder)
	mux.HandleFunc("GET /api/datasources/name/{name}", s.datasourceByName)
	mux.HandleFunc("POST /api/datasources", s.createDatasource)
	mux.HandleFunc("POST /api/dashboards/db", s.saveDashboard)
	s.Server = httptest.NewServer(s.authorize(mux))
	return s
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Calls returns how often method path was requested, e.g.
// Calls("POST", "/api/folders").
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

func (s *Server) Folders() []grafana.FolderResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]grafana.FolderResponse(nil), s.folders...)
}

func (s *Server) Datasources() []Datasource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Datasource, 0, len(s.datasources))
	for _, d := range s.datasources {
		out = append(out, *d)
	}
	return out
}

func (s *Server) Dashboards() []Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Dashboard, 0, len(s.dashboards))
	for _, d := range s.dashboards {
		out = append(out, *d)
	}
	return out
}

// AddFolder seeds a folder as if created by someone else.
func (s *Server) AddFolder(title string) grafana.FolderResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFolderLocked(title)
}

// AddDatasource seeds a datasource.
func (s *Server) AddDatasource(name string) Datasource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.addDatasourceLocked(grafana.CreateDatasourceRequest{Name: name, Type: "prometheus"})
}

func (s *Server) addFolderLocked(title string) grafana.FolderResponse {
	s.nextID++
	f := grafana.FolderResponse{
		ID:    s.nextID,
		UID:   fmt.Sprintf("f%d", s.nextID),
		Title: title,
	}
	f.URL = "/dashboards/f/" + f.UID
	s.folders = append(s.folders, f)
	return f
}

func (s *Server) addDatasourceLocked(req grafana.CreateDatasourceRequest) *Datasource {
	s.nextID++
	ds := &Datasource{ID: s.nextID, UID: fmt.Sprintf("ds%d", s.nextID), Request: req}
	s.datasources = append(s.datasources, ds)
	return ds
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.SearchStatus != 0 {
		writeJSON(w, s.SearchStatus, map[string]string{"message": "search failed"})
		return
	}
	q := r.URL.Query()
	query := strings.ToLower(q.Get("query"))
	var folderID int64
	if v := q.Get("folderIds"); v != "" {
		folderID, _ = strconv.ParseInt(v, 10, 64)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hits := []grafana.SearchHit{}
	switch q.Get("type") {
	case grafana.SearchTypeFolder:
		for _, f := range s.folders {
			if strings.Contains(strings.ToLower(f.Title), query) {
				hits = append(hits, grafana.SearchHit{ID: f.ID, UID: f.UID, Title: f.Title, Type: grafana.SearchTypeFolder, URL: f.URL})
			}
		}
	case grafana.SearchTypeDashboard:
		for _, d := range s.dashboards {
			if folderID != 0 && d.FolderID != folderID {
				continue
			}
			if strings.Contains(strings.ToLower(d.Title), query) {
				hits = append(hits, grafana.SearchHit{
					ID: d.ID, UID: d.UID, Title: d.Title, Type: grafana.SearchTypeDashboard,
					FolderID: d.FolderID, FolderUID: d.FolderUID,
				})
			}
		}
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.folders {
		if f.Title == req.Title {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "a folder with the same name already exists"})
			return
		}
	}
	writeJSON(w, http.StatusOK, s.addFolderLocked(req.Title))
}

func (s *Server) datasourceByName(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.datasources {
		if d.Request.Name == name {
			writeJSON(w, http.StatusOK, grafana.DatasourceResponse{ID: d.ID, UID: d.UID, Name: name, Type: d.Request.Type})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Data source not found"})
}

func (s *Server) createDatasource(w http.ResponseWriter, r *http.Request) {
	var req grafana.CreateDatasourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	if status := s.DatasourceCreateStatus[req.Name]; status != 0 {
		writeJSON(w, status, map[string]string{"message": "forced failure"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.datasources {
		if d.Request.Name == req.Name {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "data source with the same name already exists"})
			return
		}
	}
	ds := s.addDatasourceLocked(req)

	switch s.DatasourceCreateShape {
	case ShapeFlat:
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": ds.ID, "uid": ds.UID, "name": req.Name, "message": "Datasource added"})
	case ShapeBare:
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": ds.ID, "name": req.Name, "message": "Datasource added"})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"datasource": map[string]interface{}{"id": ds.ID, "uid": ds.UID, "name": req.Name, "type": req.Type},
			"id":         ds.ID,
			"name":       req.Name,
			"message":    "Datasource added",
		})
	}
}

func (s *Server) saveDashboard(w http.ResponseWriter, r *http.Request) {
	if s.DashboardCreateStatus != 0 {
		writeJSON(w, s.DashboardCreateStatus, map[string]string{"message": "forced failure", "status": "version-mismatch"})
		return
	}
	var req grafana.SaveDashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	title, _ := req.Dashboard["title"].(string)
	uid, _ := req.Dashboard["uid"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	var folderID int64 = -1
	for _, f := range s.folders {
		if f.UID == req.FolderUID {
			folderID = f.ID
		}
	}
	if folderID < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "folder not found"})
		return
	}
	for _, d := range s.dashboards {
		if (d.FolderID == folderID && d.Title == title) || (uid != "" && d.UID == uid) {
			if !req.Overwrite {
				writeJSON(w, http.StatusPreconditionFailed, map[string]string{"message": "A dashboard with the same name in the folder already exists", "status": "name-exists"})
				return
			}
		}
	}

	s.nextID++
	if uid == "" {
		uid = fmt.Sprintf("d%d", s.nextID)
	}
	d := &Dashboard{
		ID: s.nextID, UID: uid, Title: title,
		FolderID: folderID, FolderUID: req.FolderUID,
		Message: req.Message, Body: req.Dashboard,
	}
	s.dashboards = append(s.dashboards, d)
	writeJSON(w, http.StatusOK, grafana.SaveDashboardResponse{
		ID: d.ID, UID: d.UID, URL: "/d/" + d.UID, Status: "success", Version: 1,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
