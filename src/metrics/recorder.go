package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Eviction passes, used as the "pass" label of dagwatch_evicted_total.
const (
	PassAge      = "age"
	PassIsolated = "isolated"
	PassInitial  = "initial"
	PassDeleted  = "deleted"
)

// Drop reasons, used as the "reason" label of dagwatch_dropped_events_total.
const (
	ReasonPaused    = "paused"
	ReasonMalformed = "malformed"
	ReasonDecode    = "decode"
)

// Recorder exposes the engine's figures as prometheus metrics. All methods
// are safe to call on a nil Recorder, in which case they do nothing.
type Recorder struct {
	verticesObserved prometheus.Counter
	tps              prometheus.Gauge
	graphVertices    prometheus.Gauge
	graphEdges       prometheus.Gauge
	latestSlot       prometheus.Gauge
	evicted          *prometheus.CounterVec
	dropped          *prometheus.CounterVec
	feedState        prometheus.Gauge
	reconnects       prometheus.Counter
}

// NewRecorder creates the metrics and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)

	return &Recorder{
		verticesObserved: f.NewCounter(prometheus.CounterOpts{
			Name: "dagwatch_vertices_observed_total",
			Help: "Number of distinct vertices created from the feed",
		}),
		tps: f.NewGauge(prometheus.GaugeOpts{
			Name: "dagwatch_tps",
			Help: "Vertices per second over the TPS window",
		}),
		graphVertices: f.NewGauge(prometheus.GaugeOpts{
			Name: "dagwatch_graph_vertices",
			Help: "Number of vertices currently held in the graph",
		}),
		graphEdges: f.NewGauge(prometheus.GaugeOpts{
			Name: "dagwatch_graph_edges",
			Help: "Number of edges currently held in the graph",
		}),
		latestSlot: f.NewGauge(prometheus.GaugeOpts{
			Name: "dagwatch_latest_slot",
			Help: "Greatest slot observed in the current session",
		}),
		evicted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dagwatch_evicted_total",
			Help: "Vertices removed from the graph, by pass",
		}, []string{"pass"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dagwatch_dropped_events_total",
			Help: "Feed events discarded without being applied, by reason",
		}, []string{"reason"}),
		feedState: f.NewGauge(prometheus.GaugeOpts{
			Name: "dagwatch_feed_state",
			Help: "State of the feed connection (0 disconnected, 1 connecting, 2 connected, 3 closed)",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "dagwatch_feed_reconnects_total",
			Help: "Number of reconnection attempts after a connection loss",
		}),
	}
}

// VertexObserved ...
func (r *Recorder) VertexObserved() {
	if r == nil {
		return
	}
	r.verticesObserved.Inc()
}

// SetTPS ...
func (r *Recorder) SetTPS(tps float64) {
	if r == nil {
		return
	}
	r.tps.Set(tps)
}

// SetGraphSize records the vertex and edge counts and the latest slot.
func (r *Recorder) SetGraphSize(vertices, edges int, latestSlot uint32) {
	if r == nil {
		return
	}
	r.graphVertices.Set(float64(vertices))
	r.graphEdges.Set(float64(edges))
	r.latestSlot.Set(float64(latestSlot))
}

// Evicted adds n to the eviction counter of a pass.
func (r *Recorder) Evicted(pass string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.evicted.WithLabelValues(pass).Add(float64(n))
}

// Dropped counts one discarded event.
func (r *Recorder) Dropped(reason string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(reason).Inc()
}

// SetFeedState ...
func (r *Recorder) SetFeedState(state uint32) {
	if r == nil {
		return
	}
	r.feedState.Set(float64(state))
}

// Reconnect counts one reconnection attempt.
func (r *Recorder) Reconnect() {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}
