/*
Package transport owns the wire side of a connection: it walks a target through
name resolution, TCP connect, the TLS client handshake and the WebSocket upgrade,
and hands back a Transport that moves whole frames over the result.
*/
package transport

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kleeedolinux/wssconn/logger"
)

type MessageType int

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
)

const closeGracePeriod = time.Second

// Transport is a framed duplex connection. At most one ReadMessage may be in
// flight at a time; writes and Close may be called from any goroutine.
type Transport interface {
	ReadMessage(buf *bytes.Buffer) (MessageType, error)
	WriteMessage(messageType MessageType, data []byte) error

	// Close sends a normal-closure close frame and then releases the socket.
	Close() error

	// Release drops the socket without a close frame.
	Release() error
}

type WebSocketTransport struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
	logger  *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

func newWebSocketTransport(conn *websocket.Conn, logger *logger.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		conn:   conn,
		logger: logger,
	}
}

// ReadMessage reads the next complete frame into buf. buf is not reset first.
func (t *WebSocketTransport) ReadMessage(buf *bytes.Buffer) (MessageType, error) {
	messageType, r, err := t.conn.NextReader()
	if err != nil {
		return 0, err
	}

	n, err := buf.ReadFrom(r)
	if err != nil {
		return 0, err
	}

	t.logger.Tracef("Received %d byte message", n)
	return MessageType(messageType), nil
}

func (t *WebSocketTransport) WriteMessage(messageType MessageType, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteMessage(int(messageType), data); err != nil {
		return err
	}

	t.logger.Tracef("Sent %d byte message", len(data))
	return nil
}

func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.logger.Debug("Closing websocket connection")

		err := t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		if err != nil {
			t.logger.Debugf("Error sending close message: %s", err)
			t.closeErr = fmt.Errorf("error sending close frame: %w", err)
		}

		if err := t.conn.Close(); err != nil && t.closeErr == nil {
			t.closeErr = fmt.Errorf("error closing connection: %w", err)
		}
	})
	return t.closeErr
}

func (t *WebSocketTransport) Release() error {
	var err error
	t.closeOnce.Do(func() {
		t.logger.Debug("Releasing websocket connection")
		err = t.conn.Close()
	})
	return err
}

// IsPeerClose reports whether err is the peer closing the connection on purpose.
func IsPeerClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
