package bridge

import (
	"context"

	"github.com/coder/websocket"
)

// WebSocketDialer dials real WebSocket servers.
type WebSocketDialer struct {
	Options *websocket.DialOptions
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

// Adapts a websocket.Conn to Conn.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, p, err := w.c.Read(ctx)
	return p, err
}

func (w *wsConn) Write(ctx context.Context, p []byte) error {
	return w.c.Write(ctx, websocket.MessageText, p)
}

func (w *wsConn) Close() error {
	err := w.c.Close(websocket.StatusNormalClosure, "bridge shutting down")
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}
