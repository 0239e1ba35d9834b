package grafana

import (
	"net/url"
	"strconv"
)

// Grafana search result types.
const (
	SearchTypeFolder    = "dash-folder"
	SearchTypeDashboard = "dash-db"
)

const (
	FoldersPath     = "/api/folders"
	DatasourcesPath = "/api/datasources"
	DashboardsPath  = "/api/dashboards/db"
)

// SearchHit is one item of /api/search.
type SearchHit struct {
	ID        int64  `json:"id"`
	UID       string `json:"uid"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	FolderID  int64  `json:"folderId,omitempty"`
	FolderUID string `json:"folderUid,omitempty"`
}

// SearchPath builds a substring search for title. folderID scopes the
// search when non-zero.
func SearchPath(searchType, query string, folderID int64) string {
	v := url.Values{}
	v.Set("type", searchType)
	if folderID != 0 {
		v.Set("folderIds", strconv.FormatInt(folderID, 10))
	}
	v.Set("query", query)
	return "/api/search?" + v.Encode()
}

// DatasourceByNamePath is the exact-name datasource lookup.
func DatasourceByNamePath(name string) string {
	return DatasourcesPath + "/name/" + url.PathEscape(name)
}

// FolderResponse is returned by POST /api/folders.
type FolderResponse struct {
	ID    int64  `json:"id"`
	UID   string `json:"uid"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// DatasourceResponse is returned by GET /api/datasources/name/:name.
type DatasourceResponse struct {
	ID   int64  `json:"id"`
	UID  string `json:"uid"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SaveDashboardRequest is the body of POST /api/dashboards/db.
type SaveDashboardRequest struct {
	Dashboard map[string]interface{} `json:"dashboard"`
	FolderUID string                 `json:"folderUid"`
	Message   string                 `json:"message,omitempty"`
	Overwrite bool                   `json:"overwrite"`
}

// SaveDashboardResponse is returned by POST /api/dashboards/db.
type SaveDashboardResponse struct {
	ID      int64  `json:"id"`
	UID     string `json:"uid"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	Version int    `json:"version"`
}

// CreateDatasourceRequest is the body of POST /api/datasources.
type CreateDatasourceRequest struct {
	Name           string             `json:"name"`
	Type           string             `json:"type"`
	Access         string             `json:"access"`
	URL            string             `json:"url"`
	IsDefault      bool               `json:"isDefault"`
	Editable       bool               `json:"editable"`
	JSONData       DatasourceJSONData `json:"jsonData"`
	SecureJSONData map[string]string  `json:"secureJsonData"`
}

// DatasourceJSONData is the non-secret part of a Prometheus datasource with
// a custom tenant header.
type DatasourceJSONData struct {
	HTTPHeaderName1   string `json:"httpHeaderName1"`
	TLSAuth           bool   `json:"tlsAuth"`
	TLSAuthWithCACert bool   `json:"tlsAuthWithCACert"`
}
