package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"othello-relay/internal/protocol"
	"othello-relay/pkg/logger"
)

// Banner texts for transport and command failures.
const (
	MsgInvalidData     = "Received invalid data from server."
	MsgDisconnected    = "Disconnected from server."
	MsgConnectionError = "WebSocket connection error."
	MsgReconnectFailed = "Failed to reconnect to the server."
	MsgNotConnected    = "Cannot send command: Not connected."
	MsgInvalidFormat   = "Failed to send command (invalid format)."
	MsgStartNoRoom     = "Cannot start game: Not in a room."
	MsgPlaceNoRoom     = "Cannot place piece: Not in a room."
	MsgRematchNoRoom   = "Cannot respond to rematch: Not in a room."
	MsgChatNoRoom      = "Cannot send chat message: Not in a room."
	MsgChatEmpty       = "Cannot send an empty chat message."
)

var (
	// ErrNotConnected is returned when a command is issued without a live relay link.
	ErrNotConnected = errors.New("not connected")

	// ErrNoRoom is returned by room-scoped commands when no room is known.
	ErrNoRoom = errors.New("not in a room")

	// ErrEmptyMessage is returned for blank chat messages.
	ErrEmptyMessage = errors.New("empty chat message")
)

// Sender delivers a command to the relay.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Machine owns one viewer's snapshot. It is safe for concurrent use.
type Machine struct {
	mu     sync.RWMutex
	snap   Snapshot
	sender Sender

	// Serializes update and notification so observers see changes in order.
	updateMu  sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewMachine creates a Machine in the Disconnected phase. sender may be nil
// and set later with SetSender.
func NewMachine(sender Sender) *Machine {
	return &Machine{
		snap:      Initial(),
		sender:    sender,
		listeners: make(map[int]func(Snapshot)),
	}
}

// SetSender replaces the command sink.
func (m *Machine) SetSender(sender Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sender = sender
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone()
}

// OnChange registers fn to receive every new snapshot and returns a function
// that removes it. fn runs synchronously and must not issue commands on m.
func (m *Machine) OnChange(fn func(Snapshot)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Machine) update(fn func(Snapshot) Snapshot) Snapshot {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	m.mu.Lock()
	next := fn(m.snap)
	m.snap = next
	listeners := make([]func(Snapshot), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(next.Clone())
	}
	return next.Clone()
}

// Apply folds one event into the snapshot.
func (m *Machine) Apply(ev protocol.Event) Snapshot {
	return m.update(func(s Snapshot) Snapshot { return Fold(s, ev) })
}

// ApplyLine decodes a message from the relay and folds it. Undecodable input
// only sets the error banner.
func (m *Machine) ApplyLine(data []byte) Snapshot {
	ev, err := protocol.Decode(data)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to parse message from relay")
		return m.update(func(s Snapshot) Snapshot {
			s = s.Clone()
			s.LastErrorMessage = str(MsgInvalidData)
			return s
		})
	}
	return m.Apply(ev)
}

// Opened records an established relay link and requests the engine status.
func (m *Machine) Opened() {
	m.update(func(s Snapshot) Snapshot {
		s = s.Clone()
		s.Connection.Connected = true
		s.Connection.Phase = PhaseLobby
		s.LastErrorMessage = nil
		s.derive()
		return s
	})
	_ = m.send(protocol.GetStatus())
}

// Closed resets the session after the relay link went away. A connection
// failure banner already on screen is kept.
func (m *Machine) Closed() {
	m.update(func(s Snapshot) Snapshot {
		next := Initial()
		next.LastInfoMessage = s.LastInfoMessage
		next.Chat = append([]ChatMessage(nil), s.Chat...)
		if s.LastErrorMessage != nil && (*s.LastErrorMessage == MsgConnectionError || *s.LastErrorMessage == MsgReconnectFailed) {
			next.LastErrorMessage = str(*s.LastErrorMessage)
		} else {
			next.LastErrorMessage = str(MsgDisconnected)
		}
		return next
	})
}

// Failed records a transport error. Closed is expected to follow.
func (m *Machine) Failed(err error) {
	logger.Warn().Err(err).Msg("Relay connection error")
	m.update(func(s Snapshot) Snapshot {
		s = s.Clone()
		s.Connection.Connected = false
		s.Connection.ConnectedToServer = false
		s.setError(MsgConnectionError)
		return s
	})
}

// ReconnectFailed records that the viewer gave up reconnecting.
func (m *Machine) ReconnectFailed() {
	m.update(func(s Snapshot) Snapshot {
		s = s.Clone()
		s.setError(MsgReconnectFailed)
		return s
	})
}

func (m *Machine) setError(msg string) {
	m.update(func(s Snapshot) Snapshot {
		s = s.Clone()
		s.setError(msg)
		return s
	})
}

// send validates and delivers cmd. On success both banners are cleared.
func (m *Machine) send(cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		m.setError(MsgInvalidFormat)
		return err
	}

	m.mu.RLock()
	sender := m.sender
	connected := m.snap.Connection.Connected
	m.mu.RUnlock()

	if sender == nil || !connected {
		m.setError(MsgNotConnected)
		return ErrNotConnected
	}
	if err := sender.Send(cmd); err != nil {
		logger.Warn().Err(err).Str("command", cmd.Command).Msg("Failed to send command")
		m.setError(MsgNotConnected)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	m.update(func(s Snapshot) Snapshot {
		s = s.Clone()
		s.clearBanners()
		return s
	})
	return nil
}

// roomID returns the current room or records msg as a local error.
func (m *Machine) roomID(msg string) (int, error) {
	m.mu.RLock()
	id := m.snap.RoomID
	m.mu.RUnlock()

	if id == nil || *id <= 0 {
		m.setError(msg)
		return 0, ErrNoRoom
	}
	return *id, nil
}

// SendCommand delivers an arbitrary command.
func (m *Machine) SendCommand(cmd protocol.Command) error {
	return m.send(cmd)
}

// Connect asks the engine to connect to the game server.
func (m *Machine) Connect(address string, port int) error {
	if err := m.send(protocol.Connect(address, port)); err != nil {
		return err
	}
	m.update(func(s Snapshot) Snapshot {
		s = s.Clone()
		s.Connection.ConnectedToServer = true
		s.Connection.Phase = PhaseConnecting
		s.LastErrorMessage = nil
		s.derive()
		return s
	})
	return nil
}

// CreateRoom creates a room; an empty name uses the default room name.
func (m *Machine) CreateRoom(name string) error {
	return m.send(protocol.Create(name))
}

// JoinRoom joins an existing room.
func (m *Machine) JoinRoom(roomID int) error {
	return m.send(protocol.Join(roomID))
}

// StartGame starts the game in the current room.
func (m *Machine) StartGame() error {
	id, err := m.roomID(MsgStartNoRoom)
	if err != nil {
		return err
	}
	return m.send(protocol.Start(id))
}

// PlacePiece places a piece in the current room.
func (m *Machine) PlacePiece(row, col int) error {
	id, err := m.roomID(MsgPlaceNoRoom)
	if err != nil {
		return err
	}
	return m.send(protocol.Place(id, row, col))
}

// SendRematchResponse accepts or declines a rematch.
func (m *Machine) SendRematchResponse(agree bool) error {
	id, err := m.roomID(MsgRematchNoRoom)
	if err != nil {
		return err
	}
	return m.send(protocol.Rematch(id, agree))
}

// QuitGame leaves the game; the transport close that follows resets the
// session.
func (m *Machine) QuitGame() error {
	return m.send(protocol.Quit())
}

// SendChatMessage sends text to the current room and appends it to the chat
// log without waiting for the engine.
func (m *Machine) SendChatMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		m.setError(MsgChatEmpty)
		return ErrEmptyMessage
	}
	id, err := m.roomID(MsgChatNoRoom)
	if err != nil {
		return err
	}
	if err := m.send(protocol.Chat(id, text)); err != nil {
		return err
	}

	m.update(func(s Snapshot) Snapshot {
		s = s.Clone()
		color := protocol.ColorNone
		if s.MyColor != nil {
			color = *s.MyColor
		}
		s.appendChat(ChatMessage{
			SenderColor: color,
			Message:     text,
			Timestamp:   now().Unix(),
			IsMine:      true,
		})
		s.pendingEcho = append(s.pendingEcho, text)
		return s
	})
	return nil
}
