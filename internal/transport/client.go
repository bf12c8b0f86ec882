package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum frame size allowed from peer; SDP payloads need headroom.
	maxMessageSize = 8192
)

// Client is a middleman between one websocket connection and the hub.
// Inbound frames go to onFrame; onClose fires exactly once when the read
// pump exits, after the client has left the pool.
type Client struct {
	ID string

	pool      *Pool
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	onFrame   func([]byte)
	onClose   func()
	log       zerolog.Logger
}

// NewClient registers a fresh client in the pool under a generated
// connection ID. Call Start to begin the pumps.
func (p *Pool) NewClient(conn *websocket.Conn, onFrame func([]byte), onClose func()) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		pool:    p,
		conn:    conn,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		onFrame: onFrame,
		onClose: onClose,
		log:     p.log,
	}
	p.add(c)
	return c
}

// Start launches the read and write pumps. Returns immediately.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump pumps frames from the websocket to the onFrame callback.
func (c *Client) readPump() {
	defer func() {
		c.pool.Remove(c.ID)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Str("conn_id", c.ID).Msg("unexpected close")
			}
			break
		}
		if c.onFrame != nil {
			c.onFrame(message)
		}
	}
}

// writePump pumps queued events to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// The pool dropped us.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued events into the same frame batch to cut syscalls.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
