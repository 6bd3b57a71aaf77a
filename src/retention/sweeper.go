package retention

import (
	"github.com/dagwatch/dagwatch/src/dag"
	"github.com/dagwatch/dagwatch/src/txid"
	"github.com/sirupsen/logrus"
)

// DefaultMaxSlotsRetained is the default width, in slots, of the retention
// window.
const DefaultMaxSlotsRetained = 50

// Report summarizes one sweep.
type Report struct {
	LatestSlot txid.Slot
	Aged       int
	Isolated   int
}

// Removed returns the total number of vertices removed.
func (r Report) Removed() int {
	return r.Aged + r.Isolated
}

// Sweeper evicts the vertices that fell outside the retention window. It
// holds no graph state of its own; callers must hold exclusive access to the
// graph they pass in.
type Sweeper struct {
	maxSlotsRetained txid.Slot
	logger           *logrus.Entry
}

// NewSweeper ...
func NewSweeper(maxSlotsRetained uint32, logger *logrus.Entry) *Sweeper {
	if maxSlotsRetained == 0 {
		maxSlotsRetained = DefaultMaxSlotsRetained
	}
	return &Sweeper{
		maxSlotsRetained: txid.Slot(maxSlotsRetained),
		logger:           logger,
	}
}

// MaxSlotsRetained ...
func (s *Sweeper) MaxSlotsRetained() txid.Slot {
	return s.maxSlotsRetained
}

// Sweep runs the age pass and, if it removed anything, the isolation pass.
//
// The age pass removes every vertex with InsertedAt < LatestSlot - max. The
// isolation pass removes the remaining vertices without edges whose age,
// LatestSlot - InsertedAt, exceeds max - 1.
func (s *Sweeper) Sweep(g *dag.Graph) Report {
	latest := g.LatestSlot()
	report := Report{LatestSlot: latest}

	if latest < s.maxSlotsRetained {
		return report
	}

	threshold := latest - s.maxSlotsRetained

	aged := []string{}
	g.AscendInserted(func(id string, insertedAt txid.Slot) bool {
		if insertedAt >= threshold {
			return false
		}
		aged = append(aged, id)
		return true
	})

	for _, id := range aged {
		if g.RemoveVertex(id) {
			report.Aged++
		}
	}

	if report.Aged == 0 {
		return report
	}

	// age > max-1 <=> InsertedAt <= threshold
	isolated := []string{}
	g.AscendInserted(func(id string, insertedAt txid.Slot) bool {
		if insertedAt > threshold {
			return false
		}
		if g.Degree(id) == 0 {
			isolated = append(isolated, id)
		}
		return true
	})

	for _, id := range isolated {
		if g.RemoveVertex(id) {
			report.Isolated++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"latest_slot": latest,
		"threshold":   threshold,
		"aged":        report.Aged,
		"isolated":    report.Isolated,
		"remaining":   g.VertexCount(),
	}).Debug("Retention sweep")

	return report
}

// SweepIsolated removes every vertex that has no incident edge, regardless of
// its age, and returns the number of vertices removed.
func (s *Sweeper) SweepIsolated(g *dag.Graph) int {
	isolated := []string{}
	g.AscendInserted(func(id string, _ txid.Slot) bool {
		if g.Degree(id) == 0 {
			isolated = append(isolated, id)
		}
		return true
	})

	removed := 0
	for _, id := range isolated {
		if g.RemoveVertex(id) {
			removed++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"removed":   removed,
		"remaining": g.VertexCount(),
	}).Debug("Isolated vertex sweep")

	return removed
}
