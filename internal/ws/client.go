package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn is the relay.Sink for one websocket. Writes go through a
// bounded queue drained by writePump, so fan-out never waits on a socket.
type clientConn struct {
	id      string
	rawConn *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func newClientConn(id string, raw *websocket.Conn, depth int) *clientConn {
	if depth < 1 {
		depth = 1
	}
	return &clientConn{
		id:      id,
		rawConn: raw,
		send:    make(chan []byte, depth),
		done:    make(chan struct{}),
	}
}

func (c *clientConn) Enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close is safe to call more than once and from any goroutine. The reader
// loop notices the closed socket and runs the disconnect path.
func (c *clientConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.rawConn.Close()
	})
}

func (c *clientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
