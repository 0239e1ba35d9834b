// Package render turns a dashboard template into the dashboard of one edge.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

// Placeholders recognised in templates.
const (
	EdgeNameToken      = "${EDGE_NAME}"
	DatasourceUIDToken = "${DATASOURCE_UID}"
	UIDSuffixToken     = "${UID_SUFFIX}"
)

// DatasourceType is the datasource type forced onto every reference.
const DatasourceType = "prometheus"

const datasourceKey = "datasource"

// Dashboard is a rendered dashboard JSON object.
type Dashboard map[string]interface{}

// Title returns the dashboard title, or "Edge <edge> dashboard" when the
// template has none.
func (d Dashboard) Title(edge model.EdgeID) string {
	if t, ok := d["title"].(string); ok && t != "" {
		return t
	}
	return fmt.Sprintf("Edge %s dashboard", edge)
}

// EnsureTitle stores Title(edge) in d, since Grafana rejects untitled
// dashboards, and returns it.
func (d Dashboard) EnsureTitle(edge model.EdgeID) string {
	title := d.Title(edge)
	d["title"] = title
	return title
}

// Render substitutes the placeholders in templateText, parses the result and
// points every datasource reference, at any depth, at datasourceUID.
func Render(templateText string, edge model.EdgeID, datasourceUID, uidSuffix string) (Dashboard, error) {
	text := strings.NewReplacer(
		EdgeNameToken, edge,
		DatasourceUIDToken, datasourceUID,
		UIDSuffixToken, uidSuffix,
	).Replace(templateText)

	doc, err := decode(text)
	if err != nil {
		return nil, &model.TemplateError{Edge: edge, Err: err}
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, &model.TemplateError{Edge: edge, Err: fmt.Errorf("top-level value is %T, want object", doc)}
	}

	Rebind(obj, datasourceUID)
	return Dashboard(obj), nil
}

// Rebind walks v and replaces the value of every "datasource" key with a
// reference to uid. Objects and arrays are modified in place.
func Rebind(v interface{}, uid string) {
	switch node := v.(type) {
	case map[string]interface{}:
		for key, child := range node {
			if key == datasourceKey {
				node[key] = datasourceRef(uid)
				continue
			}
			Rebind(child, uid)
		}
	case []interface{}:
		for _, child := range node {
			Rebind(child, uid)
		}
	}
}

func datasourceRef(uid string) map[string]interface{} {
	return map[string]interface{}{
		"type": DatasourceType,
		"uid":  uid,
	}
}

func decode(text string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	// reject trailing data after the document
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid json: trailing data after document")
	}
	return doc, nil
}

// MarshalIndent renders d for display.
func (d Dashboard) MarshalIndent() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}(d)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
