package pipeline

import (
	"encoding/json"

	"github.com/dagwatch/dagwatch/src/dag"
	"github.com/dagwatch/dagwatch/src/txid"
)

// Stats are the counters shown next to the graph.
type Stats struct {
	Session          string    `json:"session"`
	TxCount          uint64    `json:"txCount"`
	TPS              float64   `json:"tps"`
	VertexCount      int       `json:"vertexCount"`
	EdgeCount        int       `json:"edgeCount"`
	LatestSlot       txid.Slot `json:"latestSlot"`
	Paused           bool      `json:"paused"`
	ShowEndorsements bool      `json:"showEndorsements"`
}

// VertexView is the read-only form of a vertex handed to the renderer.
type VertexView struct {
	ID           string          `json:"id"`
	Kind         dag.Kind        `json:"kind"`
	Slot         txid.Slot       `json:"slot"`
	Initial      bool            `json:"initial"`
	Inputs       []string        `json:"inputs"`
	Endorsements []string        `json:"endorsements,omitempty"`
	Attrs        json.RawMessage `json:"attrs,omitempty"`
}

// View is a consistent copy of the graph and its counters.
type View struct {
	Stats
	Vertices []VertexView `json:"vertices"`
	Edges    []dag.Edge   `json:"edges"`
}

// Visible returns the view as it should be displayed: endorsement edges are
// left out unless ShowEndorsements is set.
func (v View) Visible() View {
	if v.ShowEndorsements {
		return v
	}

	edges := make([]dag.Edge, 0, len(v.Edges))
	for _, e := range v.Edges {
		if e.Type != dag.Endorsement {
			edges = append(edges, e)
		}
	}
	v.Edges = edges

	return v
}
