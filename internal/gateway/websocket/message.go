// Package websocket provides the viewer hub and WebSocket viewer connections.
package websocket

import (
	"errors"

	"othello-relay/internal/protocol"
)

// Messages the relay itself sends to viewers.
const (
	MsgConnected         = "Connected to relay."
	MsgEngineNotRunning  = "engine process not running."
	MsgInvalidCommand    = "Invalid command format."
	MsgEngineUnreachable = "Cannot send command to engine process."
)

var (
	// ErrViewerClosed is returned when sending to a viewer that was closed.
	ErrViewerClosed = errors.New("viewer closed")

	// ErrSendBufferFull is returned when a viewer cannot keep up.
	ErrSendBufferFull = errors.New("viewer send buffer full")
)

// Engine is the command sink behind the hub.
type Engine interface {
	Available() bool
	Send(cmd protocol.Command) error
}

// Viewer is one connected endpoint receiving broadcasts.
type Viewer interface {
	ID() string
	// Send queues data for delivery. It must not block.
	Send(data []byte) error
	// Close releases the viewer; it is called at most once by the hub.
	Close()
}

// statusEvent describes engine availability to a newly registered viewer.
func statusEvent(available bool) protocol.Event {
	if available {
		return protocol.InfoEvent(MsgConnected)
	}
	return protocol.ErrorEvent(MsgEngineNotRunning)
}
