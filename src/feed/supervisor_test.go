package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dagwatch/dagwatch/src/common"
	"github.com/dagwatch/dagwatch/src/metrics"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type frame struct {
	data []byte
	err  error
}

type fakeConn struct {
	frames    chan frame
	closed    chan struct{}
	closeOnce sync.Once
	dialer    *fakeDialer

	lock     sync.Mutex
	controls [][]byte
}

func newFakeConn(frames ...frame) *fakeConn {
	c := &fakeConn{
		frames: make(chan frame, len(frames)),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		if f.err != nil {
			return 0, nil, f.err
		}
		return websocket.TextMessage, f.data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.controls = append(c.controls, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		if c.dialer != nil {
			c.dialer.release()
		}
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) writtenControls() [][]byte {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.controls
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	lock    sync.Mutex
	script  []dialResult
	dials   int
	open    int
	maxOpen int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.dials >= len(d.script) {
		return nil, errors.New("script exhausted")
	}
	r := d.script[d.dials]
	d.dials++

	if r.err != nil {
		return nil, r.err
	}

	r.conn.dialer = d
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return r.conn, nil
}

func (d *fakeDialer) release() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.open--
}

func testSupervisor(t *testing.T, d *fakeDialer) *Supervisor {
	conf := DefaultConfig()
	conf.RetryDelay = 3 * time.Second
	return NewSupervisor(*conf, d, nil, common.NewTestEntry(t, "feed"))
}

func drain(ch <-chan Message) []Message {
	res := []Message{}
	for m := range ch {
		res = append(res, m)
	}
	return res
}

func kinds(ms []Message) []MessageKind {
	res := make([]MessageKind, len(ms))
	for i, m := range ms {
		res[i] = m.Kind
	}
	return res
}

const validFrame = `{"id":"aa","a":1,"in":[]}`

func TestSupervisorReconnect(t *testing.T) {
	d := &fakeDialer{
		script: []dialResult{
			{err: errors.New("connection refused")},
			{err: errors.New("connection refused")},
			{conn: newFakeConn(
				frame{data: []byte(validFrame)},
				frame{err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}},
			)},
			{conn: newFakeConn(
				frame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}},
			)},
		},
	}

	s := testSupervisor(t, d)

	delays := []time.Duration{}
	s.timerFactory = func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("normal close should end Run without error, got %v", err)
	}

	if d.dials != 4 {
		t.Fatalf("4 dials expected, got %d", d.dials)
	}
	if d.maxOpen != 1 {
		t.Fatalf("at most one connection should be open, got %d", d.maxOpen)
	}
	if d.open != 0 {
		t.Fatalf("all connections should be closed, %d are open", d.open)
	}

	if len(delays) != 3 {
		t.Fatalf("one wait per failure expected, got %d", len(delays))
	}
	for _, delay := range delays {
		if delay != 3*time.Second {
			t.Fatalf("reconnect delay should be 3s, not %s", delay)
		}
	}

	expected := []MessageKind{
		MessageDisconnected,
		MessageDisconnected,
		MessageConnected,
		MessageEvent,
		MessageDisconnected,
		MessageConnected,
	}
	msgs := drain(s.Consumer())
	got := kinds(msgs)
	if len(got) != len(expected) {
		t.Fatalf("messages should be %v, not %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("messages should be %v, not %v", expected, got)
		}
	}
	if msgs[3].Event.ID != "aa" {
		t.Fatalf("event aa expected, got %s", msgs[3].Event.ID)
	}

	st := s.Status()
	if st.State != Closed {
		t.Fatalf("state should be Closed, not %s", st.State)
	}
	if st.Reconnects != 3 {
		t.Fatalf("3 reconnects expected, got %d", st.Reconnects)
	}
	if st.Error != "" {
		t.Fatalf("error should be cleared, got %s", st.Error)
	}
}

func TestSupervisorStatusBanner(t *testing.T) {
	d := &fakeDialer{
		script: []dialResult{
			{err: errors.New("boom")},
			{conn: newFakeConn(frame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}})},
		},
	}

	s := testSupervisor(t, d)

	retry := make(chan time.Time)
	s.timerFactory = func(time.Duration) <-chan time.Time {
		return retry
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(context.Background())
	}()

	m := <-s.Consumer()
	if m.Kind != MessageDisconnected {
		t.Fatalf("expected a disconnection notice, got %d", m.Kind)
	}

	st := s.Status()
	if st.State != Disconnected {
		t.Fatalf("state should be Disconnected, not %s", st.State)
	}
	if !strings.Contains(st.Error, "boom") {
		t.Fatalf("status should surface the error, got %q", st.Error)
	}

	retry <- time.Now()

	m = <-s.Consumer()
	if m.Kind != MessageConnected {
		t.Fatalf("expected a connection notice, got %d", m.Kind)
	}

	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	if st := s.Status(); st.Error != "" || st.State != Closed {
		t.Fatalf("status should be Closed without error, got %+v", st)
	}
}

func TestSupervisorCancel(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{script: []dialResult{{conn: conn}}}

	s := testSupervisor(t, d)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()

	if m := <-s.Consumer(); m.Kind != MessageConnected {
		t.Fatalf("expected a connection notice, got %d", m.Kind)
	}
	if s.State() != Connected {
		t.Fatalf("state should be Connected, not %s", s.State())
	}

	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("Run should return context.Canceled, not %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if s.State() != Closed {
		t.Fatalf("state should be Closed, not %s", s.State())
	}

	controls := conn.writtenControls()
	normal := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if len(controls) != 1 || string(controls[0]) != string(normal) {
		t.Fatalf("a normal close frame should be sent, got %v", controls)
	}

	if _, ok := <-s.Consumer(); ok {
		t.Fatal("consumer channel should be closed")
	}
	if d.open != 0 {
		t.Fatalf("connection should be closed, %d open", d.open)
	}
}

func TestSupervisorDropsUndecodableFrames(t *testing.T) {
	d := &fakeDialer{
		script: []dialResult{
			{conn: newFakeConn(
				frame{data: []byte("not json")},
				frame{data: []byte(`{"a":1}`)},
				frame{data: []byte(`{"id":"bb","a":1,"in":[]} trailing`)},
				frame{data: []byte(`{"id":"cc","a":1,"in":[]}{"y":1}`)},
				frame{data: []byte(validFrame)},
				frame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}},
			)},
		},
	}

	reg := prometheus.NewRegistry()
	s := testSupervisor(t, d)
	s.recorder = metrics.NewRecorder(reg)

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	msgs := drain(s.Consumer())
	if len(msgs) != 2 || msgs[1].Kind != MessageEvent || msgs[1].Event.ID != "aa" {
		t.Fatalf("only the valid event should be delivered, got %v", kinds(msgs))
	}

	if st := s.Status(); st.Received != 5 {
		t.Fatalf("5 frames received, status says %d", st.Received)
	}

	if dropped := droppedCount(t, reg, metrics.ReasonDecode); dropped != 4 {
		t.Fatalf("4 frames should be counted as undecodable, got %f", dropped)
	}
}

func droppedCount(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "dagwatch_dropped_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}

	return 0
}
