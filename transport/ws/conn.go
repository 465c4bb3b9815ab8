package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"chat-intel/domain/event"
)

const writeTimeout = 5 * time.Second

// wsConn adapts one websocket connection into an event sink. Events
// are queued on a buffered channel and flushed by a dedicated write
// loop, so a slow client never blocks a room session. When the queue
// is full the event is dropped and Consume reports it.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	out    chan OutEnvelope
	closed chan struct{}
}

func newWsConn(id string, conn *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   conn,
		out:    make(chan OutEnvelope, buffer),
		closed: make(chan struct{}),
	}
}

// Consume queues an event for delivery. It never blocks.
func (c *wsConn) Consume(_ context.Context, evt event.RoomEvent) error {
	env := EncodeEvent(evt)
	select {
	case <-c.closed:
		return fmt.Errorf("connection %s is closed", c.id)
	case c.out <- env:
		return nil
	default:
		return fmt.Errorf("connection %s write queue is full", c.id)
	}
}

func (c *wsConn) writeLoop(log *slog.Logger, pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case env := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Debug("Write failed, closing connection", "conn", c.id, "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}

	return c.conn.Close()
}
