package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by ReadFrame once the peer has closed the channel.
var ErrClosed = errors.New("transport closed")

// Transport is a bidirectional, message-oriented channel to one client.
// ReadFrame is called from a single goroutine and WriteFrame from another;
// Close may be called from anywhere and unblocks a pending ReadFrame.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

const writeWait = 10 * time.Second

type websocketTransport struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewWebsocketTransport adapts a gorilla connection.
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	return &websocketTransport{conn: conn}
}

func (t *websocketTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return data, nil
}

func (t *websocketTransport) WriteFrame(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *websocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
