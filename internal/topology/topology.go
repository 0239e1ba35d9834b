// Package topology parses the EDGE and TENANT settings into an edge -> tenant
// mapping.
//
// Two TENANT forms are accepted:
//
//	EDGE=edge-d                  TENANT=p4
//	EDGE=edge-a,edge-b,edge-c    TENANT=edge-a:p1,edge-b:p2,edge-c:p3
package topology

import (
	"strings"

	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

const (
	fieldEdge   = "EDGE"
	fieldTenant = "TENANT"
)

// SplitEdges splits a comma separated EDGE value, dropping blanks.
func SplitEdges(raw string) []model.EdgeID {
	var edges []model.EdgeID
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			edges = append(edges, e)
		}
	}
	return edges
}

// Parse binds every edge to a tenant using tenantSpec. It fails with a
// *model.ConfigError unless each edge ends up with exactly one tenant.
func Parse(edges []model.EdgeID, tenantSpec string) (*model.Topology, error) {
	if len(edges) == 0 {
		return nil, model.NewConfigError(fieldEdge, "no edges given (e.g. EDGE=edge-a,edge-b)")
	}
	for _, e := range edges {
		if strings.TrimSpace(e) == "" {
			return nil, model.NewConfigError(fieldEdge, "empty edge id")
		}
	}

	spec := strings.TrimSpace(tenantSpec)
	if spec == "" {
		return nil, model.NewConfigError(fieldTenant, "no tenant given (e.g. TENANT=p4 or TENANT=edge-a:p1,edge-b:p2)")
	}

	// single tenant, single edge
	if !strings.Contains(spec, ":") {
		if len(edges) > 1 {
			return nil, model.NewConfigError(fieldTenant,
				"%d edges supplied but %q is not a mapping; use TENANT=edge-a:p1,edge-b:p2", len(edges), spec)
		}
		return model.NewTopology(edges, map[model.EdgeID]model.TenantID{edges[0]: spec}), nil
	}

	mapping, err := parseMapping(spec)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if _, ok := mapping[e]; !ok {
			return nil, model.NewConfigError(fieldTenant,
				"no tenant mapping for edge %q; add it like TENANT=%s,%s:pX", e, spec, e)
		}
	}
	return model.NewTopology(edges, mapping), nil
}

func parseMapping(spec string) (map[model.EdgeID]model.TenantID, error) {
	mapping := make(map[model.EdgeID]model.TenantID)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		edge, tenant, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, model.NewConfigError(fieldTenant, "invalid entry %q, expected edge-name:tenant", entry)
		}
		edge, tenant = strings.TrimSpace(edge), strings.TrimSpace(tenant)
		if edge == "" || tenant == "" {
			return nil, model.NewConfigError(fieldTenant, "invalid entry %q, edge or tenant is empty", entry)
		}
		if prev, dup := mapping[edge]; dup && prev != tenant {
			return nil, model.NewConfigError(fieldTenant,
				"edge %q mapped to both %q and %q", edge, prev, tenant)
		}
		mapping[edge] = tenant
	}
	return mapping, nil
}
