package viewer

import (
	"fmt"
	"io"
	"strings"

	"othello-relay/internal/protocol"
	"othello-relay/internal/session"
)

var cellGlyph = map[protocol.Color]string{
	protocol.ColorNone:  ".",
	protocol.ColorBlack: "X",
	protocol.ColorWhite: "O",
}

// Render writes a plain-text view of s: a status line, the board, the
// banner and the newest chat entries.
func Render(w io.Writer, s session.Snapshot, chatLines int) error {
	var b strings.Builder

	fmt.Fprintf(&b, "phase: %s", s.Phase())
	if s.RoomID != nil {
		fmt.Fprintf(&b, "  room: %d", *s.RoomID)
	}
	if s.MyColor != nil {
		fmt.Fprintf(&b, "  color: %s", *s.MyColor)
	}
	switch {
	case s.IsMyTurn:
		b.WriteString("  (your turn)")
	case s.IsGameOver:
		b.WriteString("  (game over)")
	}
	if s.RematchOffered {
		b.WriteString("  (rematch offered)")
	}
	b.WriteString("\n\n ")

	for col := 0; col < protocol.BoardSize; col++ {
		fmt.Fprintf(&b, " %d", col)
	}
	b.WriteString("\n")
	for row, cells := range s.Board {
		fmt.Fprintf(&b, "%d", row)
		for _, cell := range cells {
			b.WriteString(" " + cellGlyph[cell])
		}
		b.WriteString("\n")
	}

	if msg, isErr := s.Banner(); msg != "" {
		tag := "info"
		if isErr {
			tag = "error"
		}
		fmt.Fprintf(&b, "\n[%s] %s\n", tag, msg)
	}

	chat := s.Chat
	if chatLines >= 0 && len(chat) > chatLines {
		chat = chat[len(chat)-chatLines:]
	}
	if len(chat) > 0 {
		b.WriteString("\n")
	}
	for _, m := range chat {
		fmt.Fprintf(&b, "<%s> %s\n", m.DisplayName(), m.Message)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
