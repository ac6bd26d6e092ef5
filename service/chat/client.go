package chat

import (
	"sync"
	"time"

	"Messenger/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pingInterval  = 25 * time.Second
	sendQueueSize = 256
)

// Client is one live transport session belonging to a user. A user may
// hold several at once (two browser tabs ring twice). The user identity is
// pinned at upgrade time by the gateway and never re-derived from payload
// data afterwards.
type Client struct {
	ConnID string
	UserID string
	WS     *websocket.Conn
	Send   chan []byte // drained by the single writer goroutine

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(connID, userID string, ws *websocket.Conn) *Client {
	return &Client{
		ConnID: connID,
		UserID: userID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue hands a payload to the writer without blocking. A closed or
// slow connection drops the payload; delivery is at most once and a
// stale target is never an error for the sender.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		logger.Debugf("[ws] send queue full, drop conn=%s user=%s", c.ConnID, c.UserID)
		return false
	}
}

// Close signals the writer to finish. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WritePump owns all writes to the socket: queued payloads plus the ping
// keepalive. Runs as one goroutine per connection and closes the
// underlying socket on the way out.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.WS.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.WS.Close()
	}()

	for {
		select {
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugf("[ws] write err conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Debugf("[ws] ping err conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
				return
			}
		case <-c.done:
			return
		}
	}
}
