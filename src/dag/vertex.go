package dag

import (
	"time"

	"github.com/dagwatch/dagwatch/src/txid"
)

// Vertex is a ledger transaction mirrored in the graph.
type Vertex struct {
	ID           string
	Kind         Kind
	Slot         txid.Slot
	Inputs       []string
	Endorsements []string

	// InsertedAt is the slot recorded when the vertex was created. It is never
	// recomputed and drives retention.
	InsertedAt txid.Slot

	// CreatedAt is the wall-clock creation time.
	CreatedAt time.Time

	// Attrs is the raw event payload the vertex was created from.
	Attrs []byte
}

// Initial reports whether the vertex was created less than d before now.
func (v *Vertex) Initial(now time.Time, d time.Duration) bool {
	return now.Sub(v.CreatedAt) < d
}
