package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dagwatch/dagwatch/src/metrics"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Default configuration values.
const (
	DefaultURL              = "ws://127.0.0.1:8080/ws"
	DefaultRetryDelay       = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultBufferSize       = 256
)

// closeGracePeriod bounds the time spent sending a close frame on shutdown.
const closeGracePeriod = time.Second

// Config contains the feed connection settings.
type Config struct {
	URL              string
	RetryDelay       time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
}

// DefaultConfig ...
func DefaultConfig() *Config {
	return &Config{
		URL:              DefaultURL,
		RetryDelay:       DefaultRetryDelay,
		HandshakeTimeout: DefaultHandshakeTimeout,
		BufferSize:       DefaultBufferSize,
	}
}

// MessageKind distinguishes the messages produced by a Supervisor.
type MessageKind uint8

const (
	// MessageEvent carries a decoded Event
	MessageEvent MessageKind = iota
	// MessageConnected signals that a connection was established
	MessageConnected
	// MessageDisconnected signals that a connection was lost; Err says why
	MessageDisconnected
)

// Message is the uniform item delivered on the Consumer channel.
type Message struct {
	Kind  MessageKind
	Event *Event
	Err   error
}

// Status is a snapshot of the connection, for display.
type Status struct {
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	Since      time.Time `json:"since"`
	Reconnects int       `json:"reconnects"`
	Received   uint64    `json:"received"`
}

type timerFactory func(time.Duration) <-chan time.Time

// Supervisor maintains one logical subscription to the feed.
type Supervisor struct {
	state

	conf         Config
	dialer       Dialer
	recorder     *metrics.Recorder
	logger       *logrus.Entry
	timerFactory timerFactory

	out chan Message

	connLock sync.Mutex
	conn     Conn

	statusLock sync.Mutex
	lastErr    error
	since      time.Time
	reconnects int

	received uint64
}

// NewSupervisor returns a Supervisor in the Disconnected state. A nil dialer
// defaults to a WebsocketDialer.
func NewSupervisor(conf Config,
	dialer Dialer,
	recorder *metrics.Recorder,
	logger *logrus.Entry,
) *Supervisor {
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = DefaultRetryDelay
	}
	if conf.BufferSize < 0 {
		conf.BufferSize = 0
	}
	if dialer == nil {
		dialer = NewWebsocketDialer(conf.HandshakeTimeout)
	}

	return &Supervisor{
		conf:         conf,
		dialer:       dialer,
		recorder:     recorder,
		logger:       logger,
		timerFactory: time.After,
		out:          make(chan Message, conf.BufferSize),
		since:        time.Now(),
	}
}

// Consumer returns the channel on which events and connection notices are
// delivered. It is closed when Run returns.
func (s *Supervisor) Consumer() <-chan Message {
	return s.out
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return s.getState()
}

// Status returns the connection state together with the last connection
// error, which is cleared once connected again.
func (s *Supervisor) Status() Status {
	s.statusLock.Lock()
	defer s.statusLock.Unlock()

	st := Status{
		State:      s.getState(),
		Since:      s.since,
		Reconnects: s.reconnects,
		Received:   atomic.LoadUint64(&s.received),
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// Run connects to the feed and keeps reconnecting after failures. It returns
// nil when the server closes the connection normally and ctx.Err() when ctx
// is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.out)

	s.logger.WithFields(logrus.Fields{
		"url":         s.conf.URL,
		"retry_delay": s.conf.RetryDelay,
	}).Debug("Starting feed supervisor")

	for {
		err := s.connectAndServe(ctx)

		if ctx.Err() != nil {
			s.transition(Closed, nil)
			s.logger.Debug("Feed supervisor cancelled")
			return ctx.Err()
		}

		if err == nil {
			s.transition(Closed, nil)
			s.logger.Info("Feed closed normally")
			return nil
		}

		s.transition(Disconnected, err)
		s.logger.WithError(err).WithField("retry_in", s.conf.RetryDelay).Warn("Feed disconnected")
		s.emit(ctx, Message{Kind: MessageDisconnected, Err: err})

		select {
		case <-ctx.Done():
			s.transition(Closed, nil)
			return ctx.Err()
		case <-s.timerFactory(s.conf.RetryDelay):
		}

		s.statusLock.Lock()
		s.reconnects++
		s.statusLock.Unlock()
		s.recorder.Reconnect()
	}
}

// connectAndServe dials the feed and reads from it until the connection ends.
// It returns nil only on a normal close.
func (s *Supervisor) connectAndServe(ctx context.Context) error {
	s.transition(Connecting, s.lastError())

	// never hold two connections
	s.closeConn()

	conn, err := s.dialer.Dial(ctx, s.conf.URL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.conf.URL, err)
	}

	s.setConn(conn)
	defer s.closeConn()

	s.transition(Connected, nil)
	s.logger.WithField("url", s.conf.URL).Info("Feed connected")

	if !s.emit(ctx, Message{Kind: MessageConnected}) {
		return ctx.Err()
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil {
				s.logger.WithError(err).Debug("Writing close frame")
			}
			conn.Close()
		case <-done:
		}
	}()

	return s.read(ctx, conn)
}

func (s *Supervisor) read(ctx context.Context, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		atomic.AddUint64(&s.received, 1)

		ev, err := Decode(data)
		if err != nil {
			s.logger.WithError(err).WithField("frame", string(data)).Warn("Dropping undecodable frame")
			s.recorder.Dropped(metrics.ReasonDecode)
			continue
		}

		if !s.emit(ctx, Message{Kind: MessageEvent, Event: ev}) {
			return ctx.Err()
		}
	}
}

// emit delivers m unless ctx is cancelled first.
func (s *Supervisor) emit(ctx context.Context, m Message) bool {
	select {
	case s.out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) transition(st State, err error) {
	s.statusLock.Lock()
	defer s.statusLock.Unlock()

	if s.getState() != st {
		s.since = time.Now()
	}
	s.setState(st)
	s.lastErr = err
	s.recorder.SetFeedState(uint32(st))
}

func (s *Supervisor) lastError() error {
	s.statusLock.Lock()
	defer s.statusLock.Unlock()
	return s.lastErr
}

func (s *Supervisor) setConn(conn Conn) {
	s.connLock.Lock()
	defer s.connLock.Unlock()
	s.conn = conn
}

func (s *Supervisor) closeConn() {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
