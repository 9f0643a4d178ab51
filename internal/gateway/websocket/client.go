package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"othello-relay/pkg/logger"
)

// ClientOptions tunes the per-viewer pumps. Zero fields fall back to defaults.
type ClientOptions struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration

	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod time.Duration

	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Outbound queue length per viewer.
	SendBuffer int

	// Allowed Origin headers; empty allows all.
	AllowedOrigins []string
}

// DefaultClientOptions returns the defaults used when no options are configured.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

func (o ClientOptions) withDefaults() ClientOptions {
	d := DefaultClientOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait / 2
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	return o
}

func (o ClientOptions) upgrader() websocket.Upgrader {
	allowed := make(map[string]bool, len(o.AllowedOrigins))
	for _, origin := range o.AllowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// Client is a viewer connected over WebSocket.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	opts        ClientOptions
	send        chan []byte
	id          string
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new client.
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		hub:         hub,
		conn:        conn,
		opts:        opts,
		send:        make(chan []byte, opts.SendBuffer),
		id:          uuid.New().String(),
		connectedAt: time.Now(),
	}
}

// ID implements Viewer.
func (c *Client) ID() string { return c.id }

// Send implements Viewer. A full queue counts as a failed send.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrViewerClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close implements Viewer. The write pump sends a close frame and exits.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps commands from the WebSocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Str("viewer_id", c.id).Msg("WebSocket read error")
			}
			return
		}

		logger.Debug().Str("viewer_id", c.id).Bytes("data", message).Msg("Received from viewer")
		_ = c.hub.Relay(c, message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn().Err(err).Str("viewer_id", c.id).Msg("WebSocket write error")
				c.hub.Unregister(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches the new viewer to the hub.
func ServeWs(hub *Hub, opts ClientOptions, w http.ResponseWriter, r *http.Request) {
	upgrader := opts.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(hub, conn, opts)
	go client.writePump()
	hub.Register(client)
	go client.readPump()
}
