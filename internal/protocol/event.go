// Package protocol defines the line-delimited JSON messages exchanged with the
// engine process and with viewers.
package protocol

import "encoding/json"

// Event types emitted by the engine.
const (
	TypeStateChange   = "stateChange"
	TypeBoardUpdate   = "boardUpdate"
	TypeServerMessage = "serverMessage"
	TypeYourTurn      = "yourTurn"
	TypeGameOver      = "gameOver"
	TypeRematchOffer  = "rematchOffer"
	TypeRematchResult = "rematchResult"
	TypeError         = "error"
	TypeLog           = "log"
	TypeInfo          = "info"
	TypeRawLog        = "rawLog"
	TypeChatMessage   = "chatMessage"
)

var knownTypes = map[string]bool{
	TypeStateChange:   true,
	TypeBoardUpdate:   true,
	TypeServerMessage: true,
	TypeYourTurn:      true,
	TypeGameOver:      true,
	TypeRematchOffer:  true,
	TypeRematchResult: true,
	TypeError:         true,
	TypeLog:           true,
	TypeInfo:          true,
	TypeRawLog:        true,
	TypeChatMessage:   true,
}

// Rematch results.
const (
	RematchAgreed   = "agreed"
	RematchDeclined = "declined"
	RematchTimeout  = "timeout"
)

// Color is a board cell or player color as the engine encodes it.
type Color int

const (
	ColorNone  Color = 0 // empty cell, or the system sender in chat
	ColorBlack Color = 1
	ColorWhite Color = 2
)

func (c Color) String() string {
	switch c {
	case ColorBlack:
		return "black"
	case ColorWhite:
		return "white"
	default:
		return "none"
	}
}

// BoardSize is the edge length of the Othello board.
const BoardSize = 8

// ChatPayload is the body of a chatMessage event.
type ChatPayload struct {
	RoomID            int    `json:"roomId"`
	SenderColor       Color  `json:"senderColor"`
	SenderDisplayName string `json:"senderDisplayName"`
	Message           string `json:"message"`
	Timestamp         int64  `json:"timestamp"`
}

// Event is one message from the engine. Exactly one Type is set; the other
// fields are populated according to it.
type Event struct {
	Type    string       `json:"type"`
	State   string       `json:"state,omitempty"`
	RoomID  *int         `json:"roomId,omitempty"`
	Color   *Color       `json:"color,omitempty"`
	Board   [][]Color    `json:"board,omitempty"`
	Message string       `json:"message,omitempty"`
	Level   string       `json:"level,omitempty"`
	Winner  *Color       `json:"winner,omitempty"`
	Result  string       `json:"result,omitempty"`
	Payload *ChatPayload `json:"payload,omitempty"`

	// raw holds the original line of an event whose type is not known, so it
	// can be forwarded unchanged.
	raw json.RawMessage
}

// Recognized reports whether the event type is one the relay understands.
func (e Event) Recognized() bool {
	return knownTypes[e.Type]
}

// Raw returns the original bytes of an unrecognized event, or nil.
func (e Event) Raw() []byte {
	return e.raw
}

// Int returns a pointer to v, for optional event fields.
func Int(v int) *int { return &v }

// ColorPtr returns a pointer to c, for optional event fields.
func ColorPtr(c Color) *Color { return &c }

// StateChange builds a stateChange event. roomID and color may be nil.
func StateChange(state string, roomID *int, color *Color) Event {
	return Event{Type: TypeStateChange, State: state, RoomID: roomID, Color: color}
}

// BoardUpdate builds a boardUpdate event from a full grid.
func BoardUpdate(board [][]Color) Event {
	return Event{Type: TypeBoardUpdate, Board: board}
}

// ErrorEvent builds an error event.
func ErrorEvent(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// InfoEvent builds an info event.
func InfoEvent(message string) Event {
	return Event{Type: TypeInfo, Message: message}
}

// RawLog wraps a line that failed to decode.
func RawLog(line string) Event {
	return Event{Type: TypeRawLog, Message: line}
}
