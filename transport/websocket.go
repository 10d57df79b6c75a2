package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocketDialer reaches a peer over WebSocket; each WebSocket message
// carries exactly one frame, so no length prefix is used.
type WebSocketDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	MessageType      int           // websocket.TextMessage (default) or websocket.BinaryMessage
	PingInterval     time.Duration // 0 disables keepalive pings
	MaxFrameSize     uint32
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Channel, error) {
	if d.URL == "" {
		return nil, errors.Wrap(ErrUnavailable, "no websocket url")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket")
	}
	if d.MaxFrameSize > 0 {
		conn.SetReadLimit(int64(d.MaxFrameSize))
	}

	msgType := d.MessageType
	if msgType == 0 {
		msgType = websocket.TextMessage
	}
	ch := &wsChannel{
		conn:    conn,
		msgType: msgType,
		stop:    make(chan struct{}),
	}
	if d.PingInterval > 0 {
		ch.keepalive(d.PingInterval)
	}
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	msgType int

	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (c *wsChannel) Send(frame []byte) error {
	return c.conn.WriteMessage(c.msgType, frame)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// keepalive pings the peer every interval; a peer that misses two pongs in a
// row makes the pending read fail with a timeout.
func (c *wsChannel) keepalive(interval time.Duration) {
	deadline := func() time.Time { return time.Now().Add(2 * interval) }
	_ = c.conn.SetReadDeadline(deadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(deadline())
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				// WriteControl may run concurrently with WriteMessage
				if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
					return
				}
			}
		}
	}()
}
