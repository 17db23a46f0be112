package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RoanBrand/goBuffers"
	"github.com/coder/websocket"
)

// Fake serial wire. The device side writes lines, the bridge side reads them.
type fakeSerial struct {
	device *goBuffers.BlockingReadWriter // device -> bridge
	host   *goBuffers.BlockingReadWriter // bridge -> device
	writes atomic.Int32
	closed atomic.Bool
}

func newFakeSerial() *fakeSerial {
	return &fakeSerial{device: goBuffers.NewBlockingReadWriter(), host: goBuffers.NewBlockingReadWriter()}
}

func (s *fakeSerial) Read(p []byte) (int, error) {
	return s.device.Read(p)
}

func (s *fakeSerial) Write(p []byte) (int, error) {
	s.writes.Add(1)
	return s.host.Write(p)
}

func (s *fakeSerial) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSerial) Flush() error {
	return nil
}

// Device sends one raw line.
func (s *fakeSerial) send(line string) {
	s.device.Write([]byte(line + "\n"))
}

// Serial port whose reads fail.
type brokenSerial struct {
	err    error
	closed atomic.Bool
}

func (s *brokenSerial) Read(p []byte) (int, error) {
	time.Sleep(10 * time.Millisecond)
	return 0, s.err
}

func (s *brokenSerial) Write(p []byte) (int, error) {
	return 0, s.err
}

func (s *brokenSerial) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *brokenSerial) Flush() error {
	return nil
}

var errPeerGone = errors.New("peer gone")

// In-memory WebSocket connection.
type fakeConn struct {
	in         chan []byte
	writes     chan string
	failWrites atomic.Bool
	gone       chan struct{}
	once       sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8), writes: make(chan string, 32), gone: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.gone:
		return nil, errPeerGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, p []byte) error {
	if c.failWrites.Load() {
		return errPeerGone
	}
	select {
	case <-c.gone:
		return errPeerGone
	default:
	}
	c.writes <- string(p)
	return nil
}

func (c *fakeConn) Close() error {
	c.hangUp()
	return nil
}

// Server side drops the connection.
func (c *fakeConn) hangUp() {
	c.once.Do(func() { close(c.gone) })
}

// Dialer handing out a scripted sequence of results. A nil conn means the dial fails.
type fakeDialer struct {
	mu       sync.Mutex
	script   []*fakeConn
	attempts atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.attempts.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.script) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.script[0]
	d.script = d.script[1:]
	if c == nil {
		return nil, errors.New("connection refused")
	}
	return c, nil
}

// Real WebSocket server recording every text frame it receives.
type wsServer struct {
	*httptest.Server
	received chan string
	conns    atomic.Int32

	// Optional. Runs for each accepted connection before reading; n counts from 1.
	onConnect func(n int32, c *websocket.Conn)
	// When > 0, the first connection is closed by the server after this many messages.
	closeFirstAfter int
}

func newWSServer(t *testing.T, configure func(s *wsServer)) *wsServer {
	t.Helper()
	s := &wsServer{received: make(chan string, 64)}
	if configure != nil {
		configure(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()

	n := s.conns.Add(1)
	if s.onConnect != nil {
		s.onConnect(n, c)
	}
	count := 0
	for {
		_, p, err := c.Read(r.Context())
		if err != nil {
			return
		}
		s.received <- string(p)
		count++
		if n == 1 && s.closeFirstAfter > 0 && count == s.closeFirstAfter {
			c.Close(websocket.StatusGoingAway, "restarting")
			return
		}
	}
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// Fast timings so tests don't sit in idle delays.
func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.IdleDelay = 5 * time.Millisecond
	cfg.ReceiveTimeout = 5 * time.Millisecond
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.DialTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	ev := nextEvent(t, events)
	if ev.Kind != kind {
		t.Fatalf("got event %v (%q), want %v", ev.Kind, ev.String(), kind)
	}
	return ev
}

func expectNoEvent(t *testing.T, events <-chan Event, within time.Duration) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v (%q)", ev.Kind, ev.String())
	case <-time.After(within):
	}
}

func nextString(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return ""
}
