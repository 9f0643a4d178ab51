// Package viewer connects a session.Machine to a relay over WebSocket.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"othello-relay/internal/protocol"
	"othello-relay/internal/session"
	"othello-relay/pkg/logger"
)

var (
	// ErrNotConnected is returned by Send while no relay link is open.
	ErrNotConnected = errors.New("not connected to relay")

	// ErrReconnectFailed is returned by Run after the last reconnect attempt.
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
)

// Options configures a Client.
type Options struct {
	// URL of the relay endpoint, e.g. ws://127.0.0.1:8080/ws.
	URL string

	// ReconnectAttempts is how many consecutive failed dials are tolerated
	// after the link drops. Zero disables reconnecting.
	ReconnectAttempts int

	// ReconnectDelay is the wait before each reconnect attempt.
	ReconnectDelay time.Duration

	// WriteWait bounds a single command write.
	WriteWait time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client is the transport under one session.Machine. It implements
// session.Sender.
type Client struct {
	machine *session.Machine
	opts    Options
	log     zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex
}

// New creates a client and installs it as machine's sender.
func New(machine *session.Machine, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	c := &Client{
		machine: machine,
		opts:    opts,
		log:     logger.Component("viewer"),
	}
	machine.SetSender(c)
	return c
}

// Send implements session.Sender.
func (c *Client) Send(cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Run connects and feeds relay messages into the machine until ctx is
// cancelled or the link is lost for good. It returns nil on cancellation
// and on a normal close without reconnecting.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if connected {
			failures = 0
		} else {
			failures++
			c.log.Warn().Err(err).Int("attempt", failures).Str("url", c.opts.URL).Msg("relay dial failed")
		}

		if c.opts.ReconnectAttempts <= 0 {
			if connected && isNormalClose(err) {
				return nil
			}
			return err
		}
		if failures > c.opts.ReconnectAttempts {
			c.machine.ReconnectFailed()
			c.machine.Closed()
			return ErrReconnectFailed
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// session runs one connection. connected reports whether the dial
// succeeded; err is why the connection ended.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		if ctx.Err() == nil && c.opts.ReconnectAttempts <= 0 {
			c.machine.Failed(err)
			c.machine.Closed()
		}
		return false, err
	}

	c.setConn(conn)
	c.log.Info().Str("url", c.opts.URL).Msg("connected to relay")
	c.machine.Opened()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.setConn(nil)
			_ = conn.Close()
			if ctx.Err() == nil && !isNormalClose(err) {
				c.machine.Failed(err)
			}
			c.machine.Closed()
			c.log.Info().Err(err).Msg("relay connection closed")
			return true, err
		}
		c.machine.ApplyLine(data)
	}
}

// Close sends a close frame on the open link, if any. Run then observes a
// normal close.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
