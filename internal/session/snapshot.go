package session

import (
	"github.com/google/uuid"

	"othello-relay/internal/protocol"
)

// Board is the 8x8 grid; row-major, [row][col].
type Board [protocol.BoardSize][protocol.BoardSize]protocol.Color

// Connection describes the two links a viewer depends on.
type Connection struct {
	// Connected is the viewer's link to the relay.
	Connected bool
	// ConnectedToServer is the engine's link to the game server.
	ConnectedToServer bool
	Phase             Phase
}

// ChatMessage is one entry in the chat log. Entries are never changed once
// appended.
type ChatMessage struct {
	ID                string
	SenderColor       protocol.Color
	SenderDisplayName string
	Message           string
	Timestamp         int64 // unix seconds
	IsMine            bool
}

// SystemSender is the display name of relay and server notices.
const SystemSender = "System"

// IsSystem reports whether the entry came from the server rather than a player.
func (m ChatMessage) IsSystem() bool {
	return !m.IsMine && m.SenderColor == protocol.ColorNone
}

// DisplayName returns the name to render next to the message.
func (m ChatMessage) DisplayName() string {
	switch {
	case m.IsSystem():
		return SystemSender
	case m.SenderDisplayName != "":
		return m.SenderDisplayName
	case m.IsMine:
		return "You"
	case m.SenderColor == protocol.ColorBlack:
		return "Player 1 (Black)"
	default:
		return "Player 2 (White)"
	}
}

// Snapshot is the render-ready session state. Values are immutable once
// published by a Machine; every change produces a new Snapshot.
type Snapshot struct {
	Connection       Connection
	RoomID           *int
	MyColor          *protocol.Color
	Board            Board
	IsMyTurn         bool
	IsGameOver       bool
	RematchOffered   bool
	LastInfoMessage  *string
	LastErrorMessage *string
	Chat             []ChatMessage

	// outgoing chat texts not yet echoed back by the engine
	pendingEcho []string
}

// Initial returns the snapshot of a viewer that has not connected yet.
func Initial() Snapshot {
	return Snapshot{Connection: Connection{Phase: PhaseDisconnected}}
}

// Banner returns the message a UI should display, preferring errors.
func (s Snapshot) Banner() (message string, isError bool) {
	if s.LastErrorMessage != nil {
		return *s.LastErrorMessage, true
	}
	if s.LastInfoMessage != nil {
		return *s.LastInfoMessage, false
	}
	return "", false
}

// Phase is shorthand for s.Connection.Phase.
func (s Snapshot) Phase() Phase { return s.Connection.Phase }

// Clone returns a deep copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.RoomID != nil {
		out.RoomID = protocol.Int(*s.RoomID)
	}
	if s.MyColor != nil {
		out.MyColor = protocol.ColorPtr(*s.MyColor)
	}
	if s.LastInfoMessage != nil {
		out.LastInfoMessage = str(*s.LastInfoMessage)
	}
	if s.LastErrorMessage != nil {
		out.LastErrorMessage = str(*s.LastErrorMessage)
	}
	if s.Chat != nil {
		out.Chat = append([]ChatMessage(nil), s.Chat...)
	}
	if s.pendingEcho != nil {
		out.pendingEcho = append([]string(nil), s.pendingEcho...)
	}
	return out
}

// derive recomputes the flags that are functions of the phase.
func (s *Snapshot) derive() {
	s.IsMyTurn = s.Connection.Phase == PhaseMyTurn
	s.IsGameOver = s.Connection.Phase == PhaseGameOver
}

func (s *Snapshot) setError(msg string) {
	s.LastErrorMessage = str(msg)
	s.LastInfoMessage = nil
}

func (s *Snapshot) clearBanners() {
	s.LastErrorMessage = nil
	s.LastInfoMessage = nil
}

func (s *Snapshot) appendChat(m ChatMessage) {
	if m.ID == "" {
		m.ID = newID()
	}
	s.Chat = append(s.Chat, m)
}

// takeEcho consumes a pending outgoing text, reporting whether it was there.
func (s *Snapshot) takeEcho(text string) bool {
	for i, p := range s.pendingEcho {
		if p == text {
			s.pendingEcho = append(s.pendingEcho[:i], s.pendingEcho[i+1:]...)
			return true
		}
	}
	return false
}

var newID = uuid.NewString

func str(s string) *string { return &s }
