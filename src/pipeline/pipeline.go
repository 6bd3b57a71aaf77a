package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dagwatch/dagwatch/src/dag"
	"github.com/dagwatch/dagwatch/src/feed"
	"github.com/dagwatch/dagwatch/src/metrics"
	"github.com/dagwatch/dagwatch/src/retention"
	"github.com/dagwatch/dagwatch/src/txid"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type timerFactory func(time.Duration) <-chan time.Time

// Pipeline applies feed events to the graph and runs the periodic retention
// and metrics tasks. Every access to the graph, the slot index and the tracker
// goes through lock, so a sweep or a reader never sees half an event.
type Pipeline struct {
	conf     Config
	logger   *logrus.Entry
	recorder *metrics.Recorder

	lock    sync.Mutex
	graph   *dag.Graph
	sweeper *retention.Sweeper
	tracker *metrics.Tracker
	session string

	paused           atomic.Bool
	showEndorsements atomic.Bool

	now          func() time.Time
	timerFactory timerFactory
}

// New returns a Pipeline with an empty graph and a fresh session.
func New(conf Config, recorder *metrics.Recorder, logger *logrus.Entry) *Pipeline {
	def := DefaultConfig()
	if conf.SweepInterval <= 0 {
		conf.SweepInterval = def.SweepInterval
	}
	if conf.MetricsInterval <= 0 {
		conf.MetricsInterval = def.MetricsInterval
	}
	if conf.InitialSweepDelay < 0 {
		conf.InitialSweepDelay = def.InitialSweepDelay
	}

	return &Pipeline{
		conf:         conf,
		logger:       logger,
		recorder:     recorder,
		graph:        dag.New(),
		sweeper:      retention.NewSweeper(conf.MaxSlotsRetained, logger.WithField("prefix", "retention")),
		tracker:      metrics.NewTracker(conf.TPSWindow),
		session:      uuid.New().String(),
		now:          time.Now,
		timerFactory: time.After,
	}
}

// Run consumes msgs until the channel is closed or ctx is cancelled. It also
// runs the retention sweep every SweepInterval, recomputes TPS every
// MetricsInterval, and clears isolated vertices InitialSweepDelay after each
// connection.
func (p *Pipeline) Run(ctx context.Context, msgs <-chan feed.Message) error {
	sweepTicker := time.NewTicker(p.conf.SweepInterval)
	defer sweepTicker.Stop()

	metricsTicker := time.NewTicker(p.conf.MetricsInterval)
	defer metricsTicker.Stop()

	var initialSweep <-chan time.Time

	p.logger.WithFields(logrus.Fields{
		"session":        p.Session(),
		"sweep_interval": p.conf.SweepInterval,
		"max_slots":      p.sweeper.MaxSlotsRetained(),
	}).Debug("Starting pipeline")

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				p.logger.Debug("Feed consumer closed")
				return nil
			}
			if m.Kind == feed.MessageConnected {
				initialSweep = p.timerFactory(p.conf.InitialSweepDelay)
			}
			p.Handle(m)
		case <-initialSweep:
			initialSweep = nil
			p.SweepIsolated()
		case <-sweepTicker.C:
			p.Sweep()
		case <-metricsTicker.C:
			p.Tick()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Handle processes one message from the feed supervisor. Events are dropped
// while the pipeline is paused.
func (p *Pipeline) Handle(m feed.Message) {
	switch m.Kind {
	case feed.MessageEvent:
		if p.Paused() {
			p.recorder.Dropped(metrics.ReasonPaused)
			return
		}
		if err := p.Apply(m.Event); err != nil {
			p.logger.WithError(err).WithField("id", m.Event.ID).Warn("Dropping event")
			if txid.IsMalformedID(err) {
				p.recorder.Dropped(metrics.ReasonMalformed)
			}
		}
	case feed.MessageConnected:
		p.logger.Debug("Feed connected")
	case feed.MessageDisconnected:
		p.logger.WithError(m.Err).Debug("Feed disconnected")
	}
}

// Apply applies a single event to the graph. A deletion notice removes the
// vertex. Otherwise the vertex is created if unknown, then linked to those of
// its inputs and endorsements that are already in the graph. The only error
// is a MalformedIDError for a new vertex, in which case the graph is left
// untouched.
func (p *Pipeline) Apply(ev *feed.Event) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if ev.IsDeletion() {
		if p.graph.RemoveVertex(ev.ID) {
			p.recorder.Evicted(metrics.PassDeleted, 1)
			p.logger.WithField("id", ev.ID).Debug("Vertex deleted")
		}
		return nil
	}

	if !p.graph.HasVertex(ev.ID) {
		slot, err := txid.ParseSlot(ev.ID)
		if err != nil {
			return err
		}

		now := p.now()

		p.graph.AddVertex(&dag.Vertex{
			ID:           ev.ID,
			Kind:         ev.Kind(),
			Slot:         slot,
			Inputs:       ev.In,
			Endorsements: ev.Endorse,
			InsertedAt:   slot,
			CreatedAt:    now,
			Attrs:        ev.Raw,
		})

		p.tracker.Observe(now)
		p.recorder.VertexObserved()
	}

	for idx, role := range ev.Roles() {
		p.graph.AddEdge(ev.In[idx], ev.ID, role)
	}

	for _, source := range ev.Endorse {
		p.graph.AddEdge(source, ev.ID, dag.Endorsement)
	}

	return nil
}

// Sweep runs the retention sweep.
func (p *Pipeline) Sweep() retention.Report {
	p.lock.Lock()
	defer p.lock.Unlock()

	report := p.sweeper.Sweep(p.graph)

	p.recorder.Evicted(metrics.PassAge, report.Aged)
	p.recorder.Evicted(metrics.PassIsolated, report.Isolated)
	p.recordGraphSize()

	return report
}

// SweepIsolated removes every vertex without edges.
func (p *Pipeline) SweepIsolated() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	removed := p.sweeper.SweepIsolated(p.graph)

	p.recorder.Evicted(metrics.PassInitial, removed)
	p.recordGraphSize()

	return removed
}

// Tick recomputes TPS.
func (p *Pipeline) Tick() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()

	tps := p.tracker.Tick(p.now())

	p.recorder.SetTPS(tps)
	p.recordGraphSize()

	return tps
}

func (p *Pipeline) recordGraphSize() {
	p.recorder.SetGraphSize(p.graph.VertexCount(), p.graph.EdgeCount(), uint32(p.graph.LatestSlot()))
}

// Pause stops applying events. Events received while paused are dropped.
func (p *Pipeline) Pause() {
	if !p.paused.Swap(true) {
		p.logger.Info("Pipeline paused")
	}
}

// Resume clears the graph, the slot index and the counters, starts a new
// session and applies events again.
func (p *Pipeline) Resume() {
	p.lock.Lock()
	p.graph.Reset()
	p.tracker.Reset()
	p.session = uuid.New().String()
	session := p.session
	p.recordGraphSize()
	p.recorder.SetTPS(0)
	p.lock.Unlock()

	p.paused.Store(false)

	p.logger.WithField("session", session).Info("Pipeline resumed")
}

// Paused ...
func (p *Pipeline) Paused() bool {
	return p.paused.Load()
}

// SetShowEndorsements sets whether endorsement edges are displayed. Endorsement
// edges are always kept in the graph.
func (p *Pipeline) SetShowEndorsements(show bool) {
	p.showEndorsements.Store(show)
}

// ShowEndorsements ...
func (p *Pipeline) ShowEndorsements() bool {
	return p.showEndorsements.Load()
}

// Session returns the identifier of the current session, renewed by Resume.
func (p *Pipeline) Session() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.session
}

// TxCount returns the number of vertices created in the current session.
func (p *Pipeline) TxCount() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.tracker.TxCount()
}

// TPS returns the figure computed by the last Tick.
func (p *Pipeline) TPS() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.tracker.TPS()
}

// Stats ...
func (p *Pipeline) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stats()
}

func (p *Pipeline) stats() Stats {
	return Stats{
		Session:          p.session,
		TxCount:          p.tracker.TxCount(),
		TPS:              p.tracker.TPS(),
		VertexCount:      p.graph.VertexCount(),
		EdgeCount:        p.graph.EdgeCount(),
		LatestSlot:       p.graph.LatestSlot(),
		Paused:           p.Paused(),
		ShowEndorsements: p.ShowEndorsements(),
	}
}

// View returns a copy of the whole graph with its counters.
func (p *Pipeline) View() View {
	p.lock.Lock()
	defer p.lock.Unlock()

	now := p.now()

	vertices := p.graph.Vertices()
	view := View{
		Stats:    p.stats(),
		Vertices: make([]VertexView, 0, len(vertices)),
		Edges:    p.graph.Edges(),
	}

	for _, v := range vertices {
		view.Vertices = append(view.Vertices, VertexView{
			ID:           v.ID,
			Kind:         v.Kind,
			Slot:         v.Slot,
			Initial:      v.Initial(now, p.conf.InitialFlagDuration),
			Inputs:       v.Inputs,
			Endorsements: v.Endorsements,
			Attrs:        v.Attrs,
		})
	}

	return view
}

// Close releases the graph. The pipeline must not be used afterwards.
func (p *Pipeline) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.graph.Dispose()
	p.tracker.Reset()
}
