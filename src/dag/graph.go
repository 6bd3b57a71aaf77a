package dag

import (
	"sort"

	"github.com/dagwatch/dagwatch/src/txid"
	"github.com/tidwall/btree"
)

type slotEntry struct {
	slot txid.Slot
	id   string
}

func slotEntryLess(a, b slotEntry) bool {
	if a.slot != b.slot {
		return a.slot < b.slot
	}
	return a.id < b.id
}

// Graph is the vertex table, the edge table and the insertion-slot index.
type Graph struct {
	vertices map[string]*Vertex

	// out[source][target] and in[target][source] hold the same edges
	out map[string]map[string]EdgeType
	in  map[string]map[string]EdgeType

	edgeCount int

	index *btree.BTreeG[slotEntry]

	latestSlot txid.Slot
}

// New returns an empty Graph.
func New() *Graph {
	g := &Graph{}
	g.Reset()
	return g
}

// Reset drops every vertex, every edge, the slot index and the latest slot.
func (g *Graph) Reset() {
	g.vertices = make(map[string]*Vertex)
	g.out = make(map[string]map[string]EdgeType)
	g.in = make(map[string]map[string]EdgeType)
	g.edgeCount = 0
	g.index = btree.NewBTreeG[slotEntry](slotEntryLess)
	g.latestSlot = 0
}

// Dispose releases the graph's tables. The graph must be Reset before it is
// used again.
func (g *Graph) Dispose() {
	g.vertices = nil
	g.out = nil
	g.in = nil
	g.edgeCount = 0
	g.index = nil
	g.latestSlot = 0
}

// HasVertex ...
func (g *Graph) HasVertex(id string) bool {
	_, ok := g.vertices[id]
	return ok
}

// Vertex returns the vertex with the given id, or nil.
func (g *Graph) Vertex(id string) *Vertex {
	return g.vertices[id]
}

// AddVertex inserts v and indexes it by InsertedAt. It returns false, leaving
// the graph untouched, if a vertex with the same id already exists. The
// latest slot is raised to v.Slot if it is greater.
func (g *Graph) AddVertex(v *Vertex) bool {
	if _, ok := g.vertices[v.ID]; ok {
		return false
	}

	g.vertices[v.ID] = v
	g.index.Set(slotEntry{slot: v.InsertedAt, id: v.ID})

	if v.Slot > g.latestSlot {
		g.latestSlot = v.Slot
	}

	return true
}

// RemoveVertex removes a vertex with all its incident edges. It returns false
// if the vertex does not exist.
func (g *Graph) RemoveVertex(id string) bool {
	v, ok := g.vertices[id]
	if !ok {
		return false
	}

	for target := range g.out[id] {
		delete(g.in[target], id)
		if len(g.in[target]) == 0 {
			delete(g.in, target)
		}
		g.edgeCount--
	}
	delete(g.out, id)

	for source := range g.in[id] {
		delete(g.out[source], id)
		if len(g.out[source]) == 0 {
			delete(g.out, source)
		}
		g.edgeCount--
	}
	delete(g.in, id)

	g.index.Delete(slotEntry{slot: v.InsertedAt, id: id})
	delete(g.vertices, id)

	return true
}

// HasEdge ...
func (g *Graph) HasEdge(source, target string) bool {
	_, ok := g.out[source][target]
	return ok
}

// AddEdge links source to target. It is a no-op returning false when either
// endpoint is unknown or when the edge already exists.
func (g *Graph) AddEdge(source, target string, t EdgeType) bool {
	if !g.HasVertex(source) || !g.HasVertex(target) {
		return false
	}
	if g.HasEdge(source, target) {
		return false
	}

	if g.out[source] == nil {
		g.out[source] = make(map[string]EdgeType)
	}
	g.out[source][target] = t

	if g.in[target] == nil {
		g.in[target] = make(map[string]EdgeType)
	}
	g.in[target][source] = t

	g.edgeCount++

	return true
}

// EdgesOf returns the outgoing and incoming edges of a vertex, sorted by
// source then target.
func (g *Graph) EdgesOf(id string) []Edge {
	res := []Edge{}

	for target, t := range g.out[id] {
		res = append(res, Edge{Source: id, Target: target, Type: t})
	}
	for source, t := range g.in[id] {
		if source == id {
			// self-loop, already listed as outgoing
			continue
		}
		res = append(res, Edge{Source: source, Target: id, Type: t})
	}

	sortEdges(res)

	return res
}

// Degree returns the number of edges incident to a vertex.
func (g *Graph) Degree(id string) int {
	d := len(g.out[id]) + len(g.in[id])
	if _, ok := g.out[id][id]; ok {
		d--
	}
	return d
}

// VertexCount ...
func (g *Graph) VertexCount() int {
	return len(g.vertices)
}

// EdgeCount ...
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// LatestSlot returns the greatest slot of all the vertices ever added since
// the last Reset.
func (g *Graph) LatestSlot() txid.Slot {
	return g.latestSlot
}

// AscendInserted calls fn for every vertex in increasing InsertedAt order
// until fn returns false. fn must not modify the graph.
func (g *Graph) AscendInserted(fn func(id string, insertedAt txid.Slot) bool) {
	g.index.Scan(func(e slotEntry) bool {
		return fn(e.id, e.slot)
	})
}

// Vertices returns all the vertices in increasing InsertedAt order.
func (g *Graph) Vertices() []*Vertex {
	res := make([]*Vertex, 0, len(g.vertices))
	g.index.Scan(func(e slotEntry) bool {
		res = append(res, g.vertices[e.id])
		return true
	})
	return res
}

// Edges returns all the edges sorted by source then target.
func (g *Graph) Edges() []Edge {
	res := make([]Edge, 0, g.edgeCount)
	for source, targets := range g.out {
		for target, t := range targets {
			res = append(res, Edge{Source: source, Target: target, Type: t})
		}
	}
	sortEdges(res)
	return res
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}
