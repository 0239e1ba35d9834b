package model

// EdgeID identifies an edge site, e.g. "edge-a".
type EdgeID = string

// TenantID identifies a tenant namespace in the metrics backend, e.g. "p1".
type TenantID = string

// Topology is the ordered edge -> tenant mapping for one run.
type Topology struct {
	edges   []EdgeID
	tenants map[EdgeID]TenantID
}

// NewTopology returns a Topology over edges. Callers guarantee that every
// edge has an entry in tenants; see topology.Parse.
func NewTopology(edges []EdgeID, tenants map[EdgeID]TenantID) *Topology {
	t := &Topology{
		edges:   make([]EdgeID, len(edges)),
		tenants: make(map[EdgeID]TenantID, len(edges)),
	}
	copy(t.edges, edges)
	for _, e := range edges {
		t.tenants[e] = tenants[e]
	}
	return t
}

// Edges returns the edges in the order they were requested.
func (t *Topology) Edges() []EdgeID {
	out := make([]EdgeID, len(t.edges))
	copy(out, t.edges)
	return out
}

func (t *Topology) Tenant(edge EdgeID) (TenantID, bool) {
	tenant, ok := t.tenants[edge]
	return tenant, ok
}

func (t *Topology) Len() int {
	return len(t.edges)
}

// EdgeTenant is one row of a Topology, used for reporting.
type EdgeTenant struct {
	Edge   EdgeID   `json:"edge" yaml:"edge"`
	Tenant TenantID `json:"tenant" yaml:"tenant"`
}

// Pairs returns the topology as ordered rows.
func (t *Topology) Pairs() []EdgeTenant {
	out := make([]EdgeTenant, 0, len(t.edges))
	for _, e := range t.edges {
		out = append(out, EdgeTenant{Edge: e, Tenant: t.tenants[e]})
	}
	return out
}
