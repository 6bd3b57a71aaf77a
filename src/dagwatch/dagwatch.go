// Package dagwatch wires the feed supervisor, the ingestion pipeline and the
// HTTP service into a single engine.
package dagwatch

import (
	"context"
	"errors"

	"github.com/dagwatch/dagwatch/src/config"
	"github.com/dagwatch/dagwatch/src/feed"
	"github.com/dagwatch/dagwatch/src/metrics"
	"github.com/dagwatch/dagwatch/src/pipeline"
	"github.com/dagwatch/dagwatch/src/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Dagwatch is the engine. Init must be called before Run.
type Dagwatch struct {
	Config     *config.Config
	Registry   *prometheus.Registry
	Recorder   *metrics.Recorder
	Supervisor *feed.Supervisor
	Pipeline   *pipeline.Pipeline
	Service    *service.Service

	logger *logrus.Entry
}

// NewDagwatch ...
func NewDagwatch(conf *config.Config) *Dagwatch {
	engine := &Dagwatch{
		Config: conf,
		logger: conf.Logger(),
	}

	return engine
}

func (d *Dagwatch) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Recorder = metrics.NewRecorder(d.Registry)
}

func (d *Dagwatch) initSupervisor() {
	d.Supervisor = feed.NewSupervisor(
		d.Config.FeedConfig(),
		nil,
		d.Recorder,
		d.logger.WithField("prefix", "feed"),
	)
}

func (d *Dagwatch) initPipeline() {
	d.Pipeline = pipeline.New(
		d.Config.PipelineConfig(),
		d.Recorder,
		d.logger.WithField("prefix", "pipeline"),
	)
}

func (d *Dagwatch) initService() {
	if d.Config.NoService {
		return
	}

	d.Service = service.NewService(
		d.Config.ServiceAddr,
		d.Pipeline,
		d.Supervisor,
		d.Registry,
		d.Config.PushInterval,
		d.logger.WithField("prefix", "service"),
	)
}

// Init validates the configuration and creates the components.
func (d *Dagwatch) Init() error {
	if err := d.Config.Validate(); err != nil {
		return err
	}

	d.initMetrics()
	d.initSupervisor()
	d.initPipeline()
	d.initService()

	d.logger.WithFields(logrus.Fields{
		"feed":      d.Config.FeedURL,
		"service":   d.Config.ServiceAddr,
		"noService": d.Config.NoService,
		"session":   d.Pipeline.Session(),
	}).Debug("Engine initialised")

	return nil
}

// Run starts the components and blocks until ctx is cancelled or the feed
// closes normally. The pipeline drains every event delivered before the feed
// closed, then the service is shut down. Cancellation is not reported as an
// error.
func (d *Dagwatch) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// cancelled once the pipeline is done
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		return ignoreCanceled(d.Supervisor.Run(runCtx))
	})

	g.Go(func() error {
		defer cancel()
		return ignoreCanceled(d.Pipeline.Run(runCtx, d.Supervisor.Consumer()))
	})

	if d.Service != nil {
		g.Go(func() error {
			return d.Service.Serve(runCtx)
		})
	}

	if err := g.Wait(); err != nil {
		d.logger.WithError(err).Error("Engine stopped")
		return err
	}

	d.logger.Info("Engine stopped")

	return nil
}

// Close releases the graph. It must be called after Run returns.
func (d *Dagwatch) Close() {
	if d.Pipeline != nil {
		d.Pipeline.Close()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
