package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dagwatch/dagwatch/src/feed"
	"github.com/dagwatch/dagwatch/src/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// DefaultPushInterval is the period at which /ws clients receive the graph.
const DefaultPushInterval = 1 * time.Second

const shutdownTimeout = 5 * time.Second

// Monitor is the part of the pipeline exposed by the service.
type Monitor interface {
	View() pipeline.View
	Stats() pipeline.Stats
	Pause()
	Resume()
	SetShowEndorsements(show bool)
}

// StatusSource reports the state of the feed connection.
type StatusSource interface {
	Status() feed.Status
}

// EndorsementsRequest is the body of PUT /endorsements.
type EndorsementsRequest struct {
	Show *bool `json:"show" binding:"required"`
}

// Service exposes the graph, the counters and the controls of the pipeline
// over HTTP, and pushes the graph to websocket clients.
type Service struct {
	bindAddress  string
	monitor      Monitor
	feed         StatusSource
	gatherer     prometheus.Gatherer
	pushInterval time.Duration
	logger       *logrus.Entry

	router   *gin.Engine
	upgrader websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
}

// NewService returns a Service with its routes registered. The gatherer backs
// /metrics; it can be nil, in which case the route is not registered.
func NewService(bindAddress string,
	monitor Monitor,
	status StatusSource,
	gatherer prometheus.Gatherer,
	pushInterval time.Duration,
	logger *logrus.Entry) *Service {

	if pushInterval <= 0 {
		pushInterval = DefaultPushInterval
	}

	service := Service{
		bindAddress:  bindAddress,
		monitor:      monitor,
		feed:         status,
		gatherer:     gatherer,
		pushInterval: pushInterval,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		closing: make(chan struct{}),
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering dagwatch API handlers")

	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequest, cors)

	r.GET("/graph", s.GetGraph)
	r.GET("/stats", s.GetStats)
	r.GET("/status", s.GetStatus)
	r.POST("/pause", s.Pause)
	r.POST("/resume", s.Resume)
	r.PUT("/endorsements", s.SetEndorsements)
	r.GET("/ws", s.StreamGraph)

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.router = r
}

// enable CORS
func cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Next()
}

func (s *Service) logRequest(c *gin.Context) {
	start := time.Now()

	c.Next()

	s.logger.WithFields(logrus.Fields{
		"method":   c.Request.Method,
		"path":     c.Request.URL.Path,
		"status":   c.Writer.Status(),
		"duration": time.Since(start),
	}).Debug("Request")
}

// Handler returns the http.Handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve listens on the bind address until ctx is cancelled, then shuts the
// server down and disconnects the websocket clients. It returns nil after a
// shutdown requested through ctx.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving dagwatch API")

	srv := &http.Server{
		Addr:    s.bindAddress,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Shutting down dagwatch API")
		return err
	}

	return nil
}

// Close disconnects the websocket clients. It is called by Serve on shutdown.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
}

// GetGraph ...
func (s *Service) GetGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.View().Visible())
}

// GetStats ...
func (s *Service) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Stats())
}

// GetStatus returns the state of the feed connection. Its error field is the
// banner text shown while the feed is reconnecting.
func (s *Service) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.feed.Status())
}

// Pause ...
func (s *Service) Pause(c *gin.Context) {
	s.monitor.Pause()
	c.JSON(http.StatusOK, s.monitor.Stats())
}

// Resume clears the graph and starts a new session.
func (s *Service) Resume(c *gin.Context) {
	s.monitor.Resume()
	c.JSON(http.StatusOK, s.monitor.Stats())
}

// SetEndorsements toggles the display of endorsement edges.
func (s *Service) SetEndorsements(c *gin.Context) {
	var req EndorsementsRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.WithError(err).Debug("Parsing endorsements request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.monitor.SetShowEndorsements(*req.Show)

	c.JSON(http.StatusOK, s.monitor.Stats())
}

// StreamGraph upgrades the connection to a websocket and writes the visible
// graph every push interval until the client goes away or the service is
// closed.
func (s *Service) StreamGraph(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Error("Upgrading websocket")
		return
	}
	defer ws.Close()

	logger := s.logger.WithField("remote", ws.RemoteAddr().String())
	logger.Debug("Websocket client connected")

	// control frames are only processed while reading
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		if err := ws.WriteJSON(s.monitor.View().Visible()); err != nil {
			logger.WithError(err).Debug("Websocket client write failed")
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			logger.Debug("Websocket client disconnected")
			return
		case <-s.closing:
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
