package session

import (
	"fmt"
	"time"

	"othello-relay/internal/protocol"
	"othello-relay/pkg/logger"
)

// Banner texts produced while folding events.
const (
	MsgYourTurn       = "It's your turn!"
	MsgGameOver       = "Game Over!"
	MsgRematchOffered = "Rematch offered."
	MsgUnknownError   = "An unknown error occurred."
)

var now = time.Now

// Fold applies one event to prev and returns the resulting snapshot. prev is
// never modified.
func Fold(prev Snapshot, ev protocol.Event) Snapshot {
	next := prev.Clone()

	var info, errMsg *string

	switch ev.Type {
	case protocol.TypeStateChange:
		if ev.State != "" {
			next.Connection.Phase = Phase(ev.State)
		}
		// The engine reports roomId -1 and color 0 while outside a room.
		if ev.RoomID != nil {
			if *ev.RoomID > 0 {
				next.RoomID = protocol.Int(*ev.RoomID)
			} else {
				next.RoomID = nil
			}
		}
		if ev.Color != nil {
			if *ev.Color != protocol.ColorNone {
				next.MyColor = protocol.ColorPtr(*ev.Color)
			} else {
				next.MyColor = nil
			}
		}
		next.Connection.ConnectedToServer = true
		if Phase(ev.State) != PhaseGameOver {
			next.RematchOffered = false
		}

	case protocol.TypeBoardUpdate:
		board, err := boardFrom(ev.Board)
		if err != nil {
			logger.Warn().Err(err).Msg("Rejected board update")
			break
		}
		next.Board = board

	case protocol.TypeServerMessage:
		if ev.Message == "" {
			break
		}
		// A sender color marks a relayed player message; without one it is a
		// server notice.
		if ev.Color != nil && *ev.Color != protocol.ColorNone {
			next.receiveChat(*ev.Color, "", ev.Message, now().Unix())
			break
		}
		info = str(ev.Message)
		next.appendChat(ChatMessage{
			SenderColor:       protocol.ColorNone,
			SenderDisplayName: SystemSender,
			Message:           ev.Message,
			Timestamp:         now().Unix(),
		})

	case protocol.TypeYourTurn:
		next.IsMyTurn = true
		info = str(MsgYourTurn)

	case protocol.TypeGameOver:
		next.IsGameOver = true
		next.IsMyTurn = false
		if ev.Message != "" {
			info = str(ev.Message)
		} else {
			info = str(MsgGameOver)
		}

	case protocol.TypeRematchOffer:
		next.RematchOffered = true
		info = str(MsgRematchOffered)

	case protocol.TypeRematchResult:
		next.RematchOffered = false
		info = str(fmt.Sprintf("Rematch %s.", ev.Result))
		if ev.Result != protocol.RematchAgreed {
			next.Connection.Phase = PhaseGameOver
		}

	case protocol.TypeError:
		msg := ev.Message
		if msg == "" {
			msg = MsgUnknownError
		}
		errMsg = str(msg)
		Reconcile(msg).apply(&next)

	case protocol.TypeInfo:
		if ev.Message != "" {
			info = str(ev.Message)
		}

	case protocol.TypeChatMessage:
		if ev.Payload == nil {
			logger.Warn().Msg("chatMessage event without payload")
			break
		}
		p := ev.Payload
		next.receiveChat(p.SenderColor, p.SenderDisplayName, p.Message, p.Timestamp)

	case protocol.TypeLog:
		logger.Debug().Str("level", ev.Level).Str("message", ev.Message).Msg("[engine log]")

	case protocol.TypeRawLog:
		logger.Debug().Str("message", ev.Message).Msg("[engine raw]")

	default:
		logger.Warn().Str("type", ev.Type).Msg("Ignoring unknown event type")
	}

	if errMsg != nil {
		next.setError(*errMsg)
	} else if info != nil {
		next.LastInfoMessage = info
	}

	next.derive()
	return next
}

// receiveChat appends an inbound player message unless it is the engine
// echoing one of ours.
func (s *Snapshot) receiveChat(color protocol.Color, name, text string, ts int64) {
	if s.MyColor != nil && color == *s.MyColor && s.takeEcho(text) {
		return
	}
	s.appendChat(ChatMessage{
		SenderColor:       color,
		SenderDisplayName: name,
		Message:           text,
		Timestamp:         ts,
	})
}

// boardFrom converts a wire grid into a Board. Anything other than an 8x8
// grid of valid colors is rejected whole.
func boardFrom(rows [][]protocol.Color) (Board, error) {
	var b Board
	if len(rows) != protocol.BoardSize {
		return b, fmt.Errorf("board has %d rows, want %d", len(rows), protocol.BoardSize)
	}
	for r, row := range rows {
		if len(row) != protocol.BoardSize {
			return b, fmt.Errorf("board row %d has %d cells, want %d", r, len(row), protocol.BoardSize)
		}
		for c, cell := range row {
			if cell < protocol.ColorNone || cell > protocol.ColorWhite {
				return b, fmt.Errorf("board cell (%d,%d) has invalid value %d", r, c, cell)
			}
			b[r][c] = cell
		}
	}
	return b, nil
}
