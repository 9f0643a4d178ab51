package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileRows(t *testing.T) {
	tests := []struct {
		message string
		want    Effects
	}{
		{"C client process exited unexpectedly (code: 1)", Effects{Phase: PhaseDisconnected}},
		{"engine process exited unexpectedly (code: 1)", Effects{Phase: PhaseDisconnected}},
		{"Join failed: room not found", Effects{ClearRoom: true, Phase: PhaseLobby}},
		{"room full", Effects{ClearRoom: true, Phase: PhaseLobby}},
		{"Waiting for opponent to join", Effects{ClearMyTurn: true, Phase: PhaseWaitingInRoom}},
		{"game already started", Effects{Phase: PhaseGameOver}},
		{"the game over screen", Effects{SetGameOver: true, ClearMyTurn: true, Phase: PhaseGameOver}},
		{"no rematch pending", Effects{ClearRematch: true, Phase: PhaseGameOver}},
		{"not your turn", Effects{ClearMyTurn: true, Phase: PhaseWaitingInRoom}},
		{"invalid move", Effects{ClearMyTurn: true, Phase: PhaseWaitingInRoom}},
		{"you are not in a room", Effects{ClearRoom: true, Phase: PhaseLobby}},
		{"engine not connected", Effects{ClearConnected: true, Phase: PhaseDisconnected}},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := Reconcile(tt.message)
			got.Matched = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcileNoMatch(t *testing.T) {
	for _, msg := range []string{"", "something odd", "Game Over", "Rematch declined", "Not Connected"} {
		eff := Reconcile(msg)
		assert.True(t, eff.Empty(), msg)
		assert.Equal(t, Effects{}, eff, msg)
	}
}

func TestReconcileCompound(t *testing.T) {
	eff := Reconcile("invalid move: not your turn")
	assert.Equal(t, []string{"not your turn", "invalid move"}, eff.Matched)
	assert.Equal(t, PhaseWaitingInRoom, eff.Phase)
	assert.True(t, eff.ClearMyTurn)
	assert.False(t, eff.ClearRoom)

	eff = Reconcile("game over, not in a room")
	assert.True(t, eff.SetGameOver)
	assert.True(t, eff.ClearRoom)
	assert.Equal(t, PhaseLobby, eff.Phase, "later row decides the phase")
}

// Every pair of rows, joined in either order, yields exactly the union of
// the two rows' effects.
func TestReconcileUnionIsOrderIndependent(t *testing.T) {
	for i := range rules {
		for j := range rules {
			if i == j {
				continue
			}
			a, b := rules[i], rules[j]

			want := Effects{
				ClearRoom:      a.effects.ClearRoom || b.effects.ClearRoom,
				ClearMyTurn:    a.effects.ClearMyTurn || b.effects.ClearMyTurn,
				SetGameOver:    a.effects.SetGameOver || b.effects.SetGameOver,
				ClearRematch:   a.effects.ClearRematch || b.effects.ClearRematch,
				ClearConnected: a.effects.ClearConnected || b.effects.ClearConnected,
			}
			if i > j {
				want.Phase = a.effects.Phase
			} else {
				want.Phase = b.effects.Phase
			}

			forward := Reconcile(strings.Join([]string{a.pattern, b.pattern}, " / "))
			reverse := Reconcile(strings.Join([]string{b.pattern, a.pattern}, " / "))
			assert.Equal(t, forward, reverse, "%q + %q", a.pattern, b.pattern)

			assert.Len(t, forward.Matched, 2)
			forward.Matched = nil
			assert.Equal(t, want, forward, "%q + %q", a.pattern, b.pattern)
		}
	}
}
