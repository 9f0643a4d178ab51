package protocol

import (
	"fmt"
	"strings"
)

// Command names accepted from viewers.
const (
	CmdConnect   = "connect"
	CmdCreate    = "create"
	CmdJoin      = "join"
	CmdStart     = "start"
	CmdPlace     = "place"
	CmdRematch   = "rematch"
	CmdQuit      = "quit"
	CmdGetStatus = "getStatus"
	CmdChat      = "chat"
)

// DefaultRoomName is used when a create command carries no name.
const DefaultRoomName = "DefaultRoom"

// Command is an instruction sent by a viewer and forwarded to the engine.
type Command struct {
	Command    string `json:"command"`
	ServerIP   string `json:"serverIp,omitempty"`
	ServerPort int    `json:"serverPort,omitempty"`
	RoomName   string `json:"roomName,omitempty"`
	RoomID     *int   `json:"roomId,omitempty"`
	Row        *int   `json:"row,omitempty"`
	Col        *int   `json:"col,omitempty"`
	Agree      *bool  `json:"agree,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Validate checks the command is well formed before it reaches the engine.
func (c Command) Validate() error {
	switch c.Command {
	case CmdConnect:
		if strings.TrimSpace(c.ServerIP) == "" {
			return fmt.Errorf("%w: connect requires serverIp", ErrInvalidCommand)
		}
		if c.ServerPort < 1 || c.ServerPort > 65535 {
			return fmt.Errorf("%w: serverPort %d out of range", ErrInvalidCommand, c.ServerPort)
		}
	case CmdCreate, CmdQuit, CmdGetStatus:
	case CmdJoin, CmdStart:
		if err := c.requireRoom(); err != nil {
			return err
		}
	case CmdPlace:
		if err := c.requireRoom(); err != nil {
			return err
		}
		if c.Row == nil || c.Col == nil {
			return fmt.Errorf("%w: place requires row and col", ErrInvalidCommand)
		}
		if !onBoard(*c.Row) || !onBoard(*c.Col) {
			return fmt.Errorf("%w: cell (%d,%d) is off the board", ErrInvalidCommand, *c.Row, *c.Col)
		}
	case CmdRematch:
		if err := c.requireRoom(); err != nil {
			return err
		}
		if c.Agree == nil {
			return fmt.Errorf("%w: rematch requires agree", ErrInvalidCommand)
		}
	case CmdChat:
		if err := c.requireRoom(); err != nil {
			return err
		}
		if strings.TrimSpace(c.Message) == "" {
			return fmt.Errorf("%w: chat message is empty", ErrInvalidCommand)
		}
	case "":
		return fmt.Errorf("%w: missing command", ErrInvalidCommand)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, c.Command)
	}
	return nil
}

func (c Command) requireRoom() error {
	if c.RoomID == nil || *c.RoomID <= 0 {
		return fmt.Errorf("%w: %s requires roomId", ErrInvalidCommand, c.Command)
	}
	return nil
}

func onBoard(v int) bool { return v >= 0 && v < BoardSize }

// Connect builds a connect command.
func Connect(address string, port int) Command {
	return Command{Command: CmdConnect, ServerIP: address, ServerPort: port}
}

// Create builds a create command, substituting DefaultRoomName for an empty name.
func Create(roomName string) Command {
	if strings.TrimSpace(roomName) == "" {
		roomName = DefaultRoomName
	}
	return Command{Command: CmdCreate, RoomName: roomName}
}

// Join builds a join command.
func Join(roomID int) Command {
	return Command{Command: CmdJoin, RoomID: Int(roomID)}
}

// Start builds a start command.
func Start(roomID int) Command {
	return Command{Command: CmdStart, RoomID: Int(roomID)}
}

// Place builds a place command.
func Place(roomID, row, col int) Command {
	return Command{Command: CmdPlace, RoomID: Int(roomID), Row: Int(row), Col: Int(col)}
}

// Rematch builds a rematch response command.
func Rematch(roomID int, agree bool) Command {
	return Command{Command: CmdRematch, RoomID: Int(roomID), Agree: &agree}
}

// Quit builds a quit command.
func Quit() Command { return Command{Command: CmdQuit} }

// GetStatus builds a getStatus command.
func GetStatus() Command { return Command{Command: CmdGetStatus} }

// Chat builds a chat command for a room.
func Chat(roomID int, message string) Command {
	return Command{Command: CmdChat, RoomID: Int(roomID), Message: message}
}
