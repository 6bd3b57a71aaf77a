// Package dag implements the in-memory directed graph mirrored from the ledger
// feed.
//
// Vertices are ledger transactions keyed by their hex identifier. Edges point
// from a predecessor to the vertex that consumes or endorses it. The graph
// keeps an ordered index of vertices by insertion slot so that the retention
// sweeper can walk the oldest vertices first.
//
// A Graph is not safe for concurrent use; its owner serializes access.
package dag
