package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var errNotJSON = errors.New("not a JSON document")

// Implementation of the serial to WebSocket Forwarder.
// It owns the serial port and the link for the duration of Run.
type Forwarder struct {
	com  SerialPort // Downstream serial device.
	link *Link      // Upstream WebSocket server.
	cfg  Config
	log  *slog.Logger

	// Called with every event after it is logged.
	Observer Observer

	reconnectTried bool // A reconnect was attempted in the current iteration.
}

func NewForwarder(com SerialPort, link *Link, cfg Config, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Forwarder{com: com, link: link, cfg: cfg, log: log}
}

// Run forwards serial frames to the link and drains inbound messages until ctx is
// cancelled or a fatal error occurs. Cancellation is a clean stop and returns nil.
// The serial port and the link are closed before Run returns.
func (f *Forwarder) Run(ctx context.Context) error {
	rxCtx, stopRx := context.WithCancel(ctx)
	defer func() {
		stopRx()
		if err := f.dropBridge(); err != nil {
			f.log.Debug("release", "err", err)
		}
	}()

	lines := make(chan serialLine, 64)
	go rxSerial(rxCtx, f.com, f.cfg.MaxFrameSize, lines)

	for {
		if ctx.Err() != nil {
			return nil
		}
		f.reconnectTried = false

		if err := f.step(ctx, lines); err != nil {
			if !recoverable(err) {
				return err
			}
			f.log.Warn("Error", "err", err, "kind", string(KindOf(err)))
		}
		if !sleep(ctx, f.cfg.IdleDelay) {
			return nil
		}
	}
}

// One pass: at most one serial line, then one bounded wait on the link.
func (f *Forwarder) step(ctx context.Context, lines <-chan serialLine) error {
	if err := f.pollSerial(ctx, lines); err != nil {
		return err
	}
	return f.pollLink(ctx)
}

// Errors of a known non-fatal kind are logged and the loop carries on.
// Anything else ends Run.
func recoverable(err error) bool {
	k := KindOf(err)
	return k != "" && !k.Fatal()
}

// Take one buffered serial line, if there is one.
func (f *Forwarder) pollSerial(ctx context.Context, lines <-chan serialLine) error {
	select {
	case l := <-lines:
		if l.err != nil {
			return l.err
		}
		return f.handleFrame(ctx, l.raw)
	default:
		return nil
	}
}

// Serial line RX done. Validate and forward it.
func (f *Forwarder) handleFrame(ctx context.Context, raw []byte) error {
	frame, err := decodeFrame(raw)
	if err != nil {
		return err
	}
	if frame.Empty() {
		return nil
	}
	f.log.Debug("serial frame", "bytes", len(raw))

	if !frame.Valid() {
		f.emit(Event{
			Kind:    EventInvalidFrame,
			Payload: frame.Text,
			Err:     &Error{Op: "bridge.validate_frame", Kind: KindMalformedFrame, Err: errNotJSON},
		})
		return nil
	}

	if err := f.link.Send(ctx, []byte(frame.Text)); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			f.log.Debug("frame dropped", "err", err)
			f.reconnect(ctx)
			return nil
		}
		return err
	}
	f.emit(Event{Kind: EventForwarded, Payload: frame.Text, LinkID: f.link.ID()})
	return nil
}

// Wait briefly for a message from the server.
func (f *Forwarder) pollLink(ctx context.Context) error {
	if f.reconnectTried && f.link.State() != Active {
		return nil
	}

	msg, err := f.link.Receive(ctx, f.cfg.ReceiveTimeout)
	switch {
	case err == nil:
		f.emit(Event{Kind: EventReceived, Payload: string(msg), LinkID: f.link.ID()})
		if f.cfg.EchoToSerial {
			return txSerial(f.com, msg)
		}
		return nil
	case errors.Is(err, ErrReceiveTimeout):
		return nil
	case errors.Is(err, ErrConnectionClosed):
		f.log.Debug("link lost", "err", err)
		f.reconnect(ctx)
		return nil
	}
	return err
}

// One attempt to bring the link back. On failure, back off before the loop resumes;
// the next closed signal tries again.
func (f *Forwarder) reconnect(ctx context.Context) {
	f.reconnectTried = true
	f.emit(Event{Kind: EventReconnecting})

	if err := f.link.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		f.emit(Event{Kind: EventReconnectFailed, Err: err, Delay: f.cfg.ReconnectDelay})
		sleep(ctx, f.cfg.ReconnectDelay)
		return
	}
	f.emit(Event{Kind: EventReconnected, LinkID: f.link.ID()})
}

func (f *Forwarder) emit(ev Event) {
	attrs := []any{"event", ev.Kind.String()}
	if ev.LinkID != "" {
		attrs = append(attrs, "link", ev.LinkID)
	}
	if ev.Err != nil {
		f.log.Warn(ev.String(), append(attrs, "err", ev.Err)...)
	} else {
		f.log.Info(ev.String(), attrs...)
	}

	if f.Observer != nil {
		f.Observer(ev)
	}
}

// Stop activity and release both the link and the serial port.
func (f *Forwarder) dropBridge() error {
	return errors.Join(f.link.Close(), f.com.Close())
}

// Pause for d. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
