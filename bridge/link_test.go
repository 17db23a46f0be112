package bridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLinkConnectAndSend(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []*fakeConn{conn}}
	link := NewLink(testConfig("ws://bridge.test"), dialer, nil)

	if link.State() != Disconnected {
		t.Fatalf("new link state %v", link.State())
	}
	if err := link.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if link.State() != Active || link.ID() == "" {
		t.Fatalf("state %v id %q after connect", link.State(), link.ID())
	}

	if err := link.Send(context.Background(), []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if got := nextString(t, conn.writes); got != `{"a":1}` {
		t.Errorf("conn got %q", got)
	}
}

func TestLinkReceiveTimeout(t *testing.T) {
	dialer := &fakeDialer{script: []*fakeConn{newFakeConn()}}
	link, err := Dial(context.Background(), testConfig("ws://bridge.test"), dialer, nil)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = link.Receive(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("got %v, want receive timeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("returned before the timeout")
	}
	if link.State() != Active {
		t.Errorf("timeout changed state to %v", link.State())
	}
}

func TestLinkReceiveClosed(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []*fakeConn{conn}}
	link, err := Dial(context.Background(), testConfig("ws://bridge.test"), dialer, nil)
	if err != nil {
		t.Fatal(err)
	}

	conn.in <- []byte("hello")
	msg, err := link.Receive(context.Background(), time.Second)
	if err != nil || string(msg) != "hello" {
		t.Fatalf("got %q, %v", msg, err)
	}

	conn.hangUp()
	_, err = link.Receive(context.Background(), time.Second)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("got %v, want connection closed", err)
	}
	if !errors.Is(err, errPeerGone) {
		t.Errorf("cause lost: %v", err)
	}
	if link.State() != Disconnected {
		t.Errorf("state %v after close", link.State())
	}

	// Nothing to send on or receive from until reconnected.
	if err := link.Send(context.Background(), []byte("{}")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("send on closed link: %v", err)
	}
	if _, err := link.Receive(context.Background(), time.Second); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("receive on closed link: %v", err)
	}
}

func TestLinkReconnectGetsNewID(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	dialer := &fakeDialer{script: []*fakeConn{first, second}}
	link, err := Dial(context.Background(), testConfig("ws://bridge.test"), dialer, nil)
	if err != nil {
		t.Fatal(err)
	}
	firstID := link.ID()

	if err := link.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if link.ID() == firstID {
		t.Error("id reused across connections")
	}
	select {
	case <-first.gone:
	default:
		t.Error("previous connection left open")
	}

	// The old connection ending must not surface on the new one.
	_, err = link.Receive(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrReceiveTimeout) {
		t.Errorf("got %v, want receive timeout", err)
	}
}

func TestLinkConnectFailure(t *testing.T) {
	dialer := &fakeDialer{}
	_, err := Dial(context.Background(), testConfig("ws://bridge.test"), dialer, nil)
	if !errors.Is(err, ErrReconnect) {
		t.Fatalf("got %v, want reconnect failure", err)
	}
	if KindOf(err) != KindReconnect {
		t.Errorf("kind %q", KindOf(err))
	}
}

func TestLinkWebSocketRoundTrip(t *testing.T) {
	srv := newWSServer(t, nil)
	link, err := Dial(context.Background(), testConfig(srv.wsURL()), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer link.Close()

	if err := link.Send(context.Background(), []byte(`{"temp":22.5}`)); err != nil {
		t.Fatal(err)
	}
	if got := nextString(t, srv.received); got != `{"temp":22.5}` {
		t.Errorf("server got %q", got)
	}
}

func TestDialUnreachableServer(t *testing.T) {
	srv := newWSServer(t, nil)
	url := srv.wsURL()
	srv.Close()

	link := NewLink(testConfig(url), nil, nil)
	if err := link.Connect(context.Background()); !errors.Is(err, ErrReconnect) {
		t.Fatalf("got %v, want reconnect failure", err)
	}
	if link.State() != Disconnected {
		t.Errorf("state %v", link.State())
	}
}
