package ws

import (
	"time"

	"task_reminders/internal/logger"
	"task_reminders/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 64
)

// Unregisterer is the registry side a client reports its disconnect to.
type Unregisterer interface {
	Remove(userID int64, connID string)
}

// Client is one push-channel connection. The server only ever writes
// notifications; inbound frames are drained for pong handling and to detect
// the peer going away.
type Client struct {
	UserID int64
	ConnID string
	Conn   *websocket.Conn
	Send   chan []byte

	reg Unregisterer
}

func NewClient(userID int64, connID string, conn *websocket.Conn, reg Unregisterer) *Client {
	return &Client{
		UserID: userID,
		ConnID: connID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		reg:    reg,
	}
}

// Push hands a payload to the write pump without blocking the caller. A
// connection too slow to drain its buffer loses the message; delivery at
// this layer is fire-and-forget.
func (c *Client) Push(msg []byte) {
	select {
	case c.Send <- msg:
	default:
		logger.Warn("push buffer full, dropping notification", "user_id", c.UserID, "conn_id", c.ConnID)
	}
}

func (c *Client) Run() {
	metrics.WSConnections.Inc()
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer c.disconnect()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			logger.Debug("push channel read closed", "user_id", c.UserID, "conn_id", c.ConnID, "error", err)
			break
		}
		// Inbound data frames are ignored; this channel is server->client.
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("push channel write failed", "user_id", c.UserID, "conn_id", c.ConnID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) disconnect() {
	c.reg.Remove(c.UserID, c.ConnID)
	metrics.WSConnections.Dec()
	_ = c.Conn.Close()
}
