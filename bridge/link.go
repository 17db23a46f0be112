package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Link connection states.
const (
	Disconnected LinkState = iota
	Connecting
	Active
)

type LinkState uint8

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	}
	return "unknown"
}

// Conn is one established WebSocket connection carrying text frames.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, p []byte) error
	Close() error
}

// Dialer opens connections to a WebSocket server.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// Message read from the current connection, or the error that ended it.
type inbound struct {
	msg []byte
	err error
}

// Link is the logical connection to one WebSocket server.
// It holds at most one live connection and is owned by a single goroutine.
type Link struct {
	url    string
	dialer Dialer
	cfg    Config
	log    *slog.Logger

	state  LinkState
	id     string
	conn   Conn
	rx     chan inbound
	stopRx context.CancelFunc
}

// NewLink prepares a link in the Disconnected state. Call Connect to open it.
func NewLink(cfg Config, dialer Dialer, log *slog.Logger) *Link {
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Link{url: cfg.URL, dialer: dialer, cfg: cfg, log: log}
}

// Dial connects a new link to cfg.URL.
func Dial(ctx context.Context, cfg Config, dialer Dialer, log *slog.Logger) (*Link, error) {
	l := NewLink(cfg, dialer, log)
	if err := l.Connect(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Link) State() LinkState {
	return l.state
}

// ID of the current connection. Each successful Connect assigns a new one.
func (l *Link) ID() string {
	return l.id
}

func (l *Link) URL() string {
	return l.url
}

// Connect drops any current connection and dials a new one.
func (l *Link) Connect(ctx context.Context) error {
	l.drop()
	l.setState(Connecting)

	dctx, cancel := context.WithTimeout(ctx, l.cfg.DialTimeout)
	defer cancel()
	conn, err := l.dialer.Dial(dctx, l.url)
	if err != nil {
		l.setState(Disconnected)
		return &Error{Op: "bridge.connect", Kind: KindReconnect, Err: err}
	}

	rxCtx, stop := context.WithCancel(context.Background())
	l.conn = conn
	l.id = uuid.NewString()
	l.rx = make(chan inbound, 16)
	l.stopRx = stop
	go rxLink(rxCtx, conn, l.rx)

	l.setState(Active)
	return nil
}

// Send writes p as one text frame.
// Any write failure drops the connection and is reported as KindConnectionClosed.
func (l *Link) Send(ctx context.Context, p []byte) error {
	if l.state != Active {
		return &Error{Op: "bridge.send", Kind: KindConnectionClosed, Err: errors.New("link not active")}
	}
	wctx, cancel := context.WithTimeout(ctx, l.cfg.WriteTimeout)
	defer cancel()
	if err := l.conn.Write(wctx, p); err != nil {
		l.drop()
		return &Error{Op: "bridge.send", Kind: KindConnectionClosed, Err: err}
	}
	return nil
}

// Receive waits up to timeout for the next inbound message.
// Returns KindReceiveTimeout when nothing arrived and KindConnectionClosed when the
// connection is gone.
func (l *Link) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if l.state != Active {
		return nil, &Error{Op: "bridge.receive", Kind: KindConnectionClosed, Err: errors.New("link not active")}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case in := <-l.rx:
		if in.err != nil {
			l.drop()
			return nil, &Error{Op: "bridge.receive", Kind: KindConnectionClosed, Err: in.err}
		}
		return in.msg, nil
	case <-t.C:
		return nil, &Error{Op: "bridge.receive", Kind: KindReceiveTimeout}
	case <-ctx.Done():
		return nil, &Error{Op: "bridge.receive", Kind: KindReceiveTimeout, Err: ctx.Err()}
	}
}

// Close releases the current connection. The link can be connected again afterwards.
func (l *Link) Close() error {
	return l.drop()
}

// End the current connection, if any. Messages still queued from it are discarded
// along with its channel, so a stale close can not trigger a second reconnect.
func (l *Link) drop() error {
	if l.conn == nil {
		l.setState(Disconnected)
		return nil
	}
	err := l.conn.Close()
	l.stopRx()
	l.conn = nil
	l.rx = nil
	l.stopRx = nil
	l.setState(Disconnected)
	return err
}

func (l *Link) setState(s LinkState) {
	if l.state == s {
		return
	}
	l.log.Debug("link state", "from", l.state.String(), "to", s.String(), "link", l.id)
	l.state = s
}

// Receive from the connection until it fails, handing each message to the link.
func rxLink(ctx context.Context, conn Conn, out chan<- inbound) {
	for {
		msg, err := conn.Read(ctx)
		select {
		case out <- inbound{msg: msg, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
