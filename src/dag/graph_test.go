package dag

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/dagwatch/dagwatch/src/txid"
)

func vertex(id string, slot txid.Slot) *Vertex {
	return &Vertex{
		ID:         id,
		Slot:       slot,
		InsertedAt: slot,
		CreatedAt:  time.Unix(0, 0),
	}
}

// checkNoDanglingEdges fails if an edge references a vertex that is not in the
// graph, or if the edge count is out of sync.
func checkNoDanglingEdges(t *testing.T, g *Graph) {
	t.Helper()

	edges := g.Edges()
	if len(edges) != g.EdgeCount() {
		t.Fatalf("EdgeCount is %d but %d edges are listed", g.EdgeCount(), len(edges))
	}
	for _, e := range edges {
		if !g.HasVertex(e.Source) || !g.HasVertex(e.Target) {
			t.Fatalf("dangling edge %s -> %s", e.Source, e.Target)
		}
	}
}

func TestAddVertexIdempotent(t *testing.T) {
	g := New()

	first := vertex("a", 3)
	first.Kind = Sequencer

	if !g.AddVertex(first) {
		t.Fatal("first insertion should succeed")
	}

	dup := vertex("a", 9)
	dup.Kind = Branch

	if g.AddVertex(dup) {
		t.Fatal("duplicate insertion should be a no-op")
	}

	if g.VertexCount() != 1 {
		t.Fatalf("VertexCount should be 1, not %d", g.VertexCount())
	}

	v := g.Vertex("a")
	if v != first || v.Kind != Sequencer || v.Slot != 3 {
		t.Fatalf("original vertex should be untouched, got %+v", v)
	}

	if g.LatestSlot() != 3 {
		t.Fatalf("LatestSlot should stay 3, not %d", g.LatestSlot())
	}
}

func TestLatestSlot(t *testing.T) {
	g := New()

	for _, s := range []txid.Slot{5, 7, 6, 2} {
		g.AddVertex(vertex(fmt.Sprintf("v%d", s), s))
	}

	if g.LatestSlot() != 7 {
		t.Fatalf("LatestSlot should be 7, not %d", g.LatestSlot())
	}

	// removing the newest vertex does not move the window back
	g.RemoveVertex("v7")
	if g.LatestSlot() != 7 {
		t.Fatalf("LatestSlot should still be 7, not %d", g.LatestSlot())
	}
}

func TestAddEdge(t *testing.T) {
	g := New()
	g.AddVertex(vertex("a", 1))
	g.AddVertex(vertex("b", 2))

	t.Run("missing endpoint", func(t *testing.T) {
		if g.AddEdge("x", "b", Input) {
			t.Fatal("edge from unknown source should not be created")
		}
		if g.AddEdge("a", "x", Input) {
			t.Fatal("edge to unknown target should not be created")
		}
		if g.EdgeCount() != 0 {
			t.Fatalf("EdgeCount should be 0, not %d", g.EdgeCount())
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		if !g.AddEdge("a", "b", SeqPredecessor) {
			t.Fatal("edge should be created")
		}
		if g.AddEdge("a", "b", Input) {
			t.Fatal("existing edge should not be replaced")
		}
		if !g.HasEdge("a", "b") || g.HasEdge("b", "a") {
			t.Fatal("edge should be directed")
		}
		edges := g.EdgesOf("b")
		if len(edges) != 1 || edges[0].Type != SeqPredecessor {
			t.Fatalf("unexpected edges %+v", edges)
		}
	})

	t.Run("reverse direction", func(t *testing.T) {
		if !g.AddEdge("b", "a", Endorsement) {
			t.Fatal("reverse edge is distinct")
		}
		if g.EdgeCount() != 2 {
			t.Fatalf("EdgeCount should be 2, not %d", g.EdgeCount())
		}
	})

	checkNoDanglingEdges(t, g)
}

func TestRemoveVertex(t *testing.T) {
	g := New()
	for i, id := range []string{"a", "b", "c", "d"} {
		g.AddVertex(vertex(id, txid.Slot(i)))
	}
	g.AddEdge("a", "b", Input)
	g.AddEdge("a", "c", Input)
	g.AddEdge("b", "c", StemPredecessor)
	g.AddEdge("c", "d", Endorsement)

	if g.RemoveVertex("zz") {
		t.Fatal("removing an unknown vertex should be a no-op")
	}

	if !g.RemoveVertex("c") {
		t.Fatal("c should be removed")
	}

	if g.HasVertex("c") {
		t.Fatal("c should be gone")
	}
	if g.EdgeCount() != 1 || !g.HasEdge("a", "b") {
		t.Fatalf("only a->b should remain, have %+v", g.Edges())
	}
	if g.Degree("d") != 0 {
		t.Fatalf("d should be isolated, degree %d", g.Degree("d"))
	}

	ids := []string{}
	g.AscendInserted(func(id string, _ txid.Slot) bool {
		ids = append(ids, id)
		return true
	})
	if !reflect.DeepEqual(ids, []string{"a", "b", "d"}) {
		t.Fatalf("slot index should be [a b d], not %v", ids)
	}

	checkNoDanglingEdges(t, g)
}

func TestSelfLoop(t *testing.T) {
	g := New()
	g.AddVertex(vertex("a", 1))

	if !g.AddEdge("a", "a", Input) {
		t.Fatal("self-loop should be accepted")
	}
	if g.Degree("a") != 1 || len(g.EdgesOf("a")) != 1 {
		t.Fatalf("self-loop should count once, degree %d", g.Degree("a"))
	}

	g.RemoveVertex("a")

	if g.EdgeCount() != 0 {
		t.Fatalf("EdgeCount should be 0, not %d", g.EdgeCount())
	}
}

func TestEdgesOf(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c"} {
		g.AddVertex(vertex(id, 1))
	}
	g.AddEdge("a", "b", Input)
	g.AddEdge("b", "c", SeqPredecessor)

	expected := []Edge{
		{Source: "a", Target: "b", Type: Input},
		{Source: "b", Target: "c", Type: SeqPredecessor},
	}

	if edges := g.EdgesOf("b"); !reflect.DeepEqual(edges, expected) {
		t.Fatalf("EdgesOf(b) should be %+v, not %+v", expected, edges)
	}

	if edges := g.EdgesOf("unknown"); len(edges) != 0 {
		t.Fatalf("unknown vertex should have no edges, not %+v", edges)
	}
}

func TestAscendInsertedOrder(t *testing.T) {
	g := New()

	// out-of-order arrivals are indexed by slot, ties broken by id
	g.AddVertex(vertex("c", 5))
	g.AddVertex(vertex("a", 9))
	g.AddVertex(vertex("b", 5))
	g.AddVertex(vertex("d", 1))

	ids := []string{}
	g.AscendInserted(func(id string, _ txid.Slot) bool {
		ids = append(ids, id)
		return len(ids) < 3
	})

	if !reflect.DeepEqual(ids, []string{"d", "b", "c"}) {
		t.Fatalf("expected [d b c], got %v", ids)
	}

	vs := g.Vertices()
	if len(vs) != 4 || vs[3].ID != "a" {
		t.Fatalf("Vertices should end with a, got %d vertices", len(vs))
	}
}

func TestReset(t *testing.T) {
	g := New()
	g.AddVertex(vertex("a", 4))
	g.AddVertex(vertex("b", 5))
	g.AddEdge("a", "b", Input)

	g.Reset()

	if g.VertexCount() != 0 || g.EdgeCount() != 0 || g.LatestSlot() != 0 {
		t.Fatal("graph should be empty after Reset")
	}
	if len(g.Vertices()) != 0 {
		t.Fatal("slot index should be empty after Reset")
	}

	g.Dispose()
	g.Reset()

	if !g.AddVertex(vertex("a", 1)) {
		t.Fatal("graph should be usable after Dispose and Reset")
	}
}

func TestVertexInitial(t *testing.T) {
	created := time.Unix(100, 0)
	v := &Vertex{ID: "a", CreatedAt: created}

	if !v.Initial(created.Add(499*time.Millisecond), 500*time.Millisecond) {
		t.Fatal("vertex should be initial before the interval elapses")
	}
	if v.Initial(created.Add(500*time.Millisecond), 500*time.Millisecond) {
		t.Fatal("vertex should not be initial once the interval elapsed")
	}
}

func TestTextMarshaling(t *testing.T) {
	for k, s := range map[Kind]string{Regular: "regular", Sequencer: "sequencer", Branch: "branch"} {
		b, err := k.MarshalText()
		if err != nil || string(b) != s {
			t.Fatalf("kind %d should marshal to %s, got %s (%v)", k, s, b, err)
		}
	}

	for e, s := range map[EdgeType]string{Input: "input", SeqPredecessor: "seqpred", StemPredecessor: "stempred", Endorsement: "endorse"} {
		b, err := e.MarshalText()
		if err != nil || string(b) != s {
			t.Fatalf("edge type %d should marshal to %s, got %s (%v)", e, s, b, err)
		}
	}

	if _, err := Kind(42).MarshalText(); err == nil {
		t.Fatal("unknown kind should not marshal")
	}

	var e EdgeType
	if err := e.UnmarshalText([]byte("stempred")); err != nil || e != StemPredecessor {
		t.Fatalf("stempred should unmarshal to StemPredecessor, got %s (%v)", e, err)
	}

	var k Kind
	if err := k.UnmarshalText([]byte("branch")); err != nil || k != Branch {
		t.Fatalf("branch should unmarshal to Branch, got %s (%v)", k, err)
	}
	if err := k.UnmarshalText([]byte("leaf")); err == nil {
		t.Fatal("unknown kind should not unmarshal")
	}
}
