package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WSTransport exchanges sealed payloads as binary messages over a
// websocket connection, for socket-style syncs against a live peer.
type WSTransport struct {
	conn *websocket.Conn
}

// DialWS connects to a peer's websocket sync endpoint.
func DialWS(ctx context.Context, url string, header http.Header) (*WSTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %v (status %s)", ErrTransport, url, err, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, url, err)
	}
	return &WSTransport{conn: conn}, nil
}

// NewWS wraps an established websocket connection, e.g. server-side after
// an upgrade.
func NewWS(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

// Send writes the payload as one binary message.
func (t *WSTransport) Send(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	return nil
}

// Receive reads the next binary message.
func (t *WSTransport) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}
	mt, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: unexpected message type %d", ErrTransport, mt)
	}
	return data, nil
}

// Close closes the underlying connection.
func (t *WSTransport) Close() error {
	return t.conn.Close()
}
