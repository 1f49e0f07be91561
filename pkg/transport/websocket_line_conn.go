package transport

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

var expectedCloseErrors = []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure}

// websocketLineConn carries one protocol line per text frame, without the
// CRLF terminator.
type websocketLineConn struct {
	conn    *websocket.Conn
	pending [][]byte
}

func dialWebsocket(ctx context.Context, address string) (LineConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return NewWebsocketLineConn(conn), nil
}

func NewWebsocketLineConn(conn *websocket.Conn) LineConn {
	return &websocketLineConn{conn: conn}
}

func (c *websocketLineConn) ReadLine() ([]byte, error) {
	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, expectedCloseErrors...) {
			return nil, io.EOF
		}
		return nil, err
	}

	if msgType != websocket.TextMessage {
		return []byte{}, nil
	}
	return payload, nil
}

func (c *websocketLineConn) WriteLine(line []byte) error {
	c.pending = append(c.pending, bytes.TrimRight(line, "\r\n"))
	return nil
}

func (c *websocketLineConn) Flush() error {
	pending := c.pending
	c.pending = nil

	for _, line := range pending {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return err
		}
	}
	return nil
}

// SetReadDeadline is a no-op: gorilla/websocket treats a read timeout as
// fatal for the connection, so the link never sees a recoverable timeout here.
func (c *websocketLineConn) SetReadDeadline(_ time.Time) error {
	return nil
}

func (c *websocketLineConn) Shutdown() error {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *websocketLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
