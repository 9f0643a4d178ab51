package session

import "strings"

// Effects is the state change implied by a free-text engine error.
type Effects struct {
	// Matched lists the patterns that fired, in table order.
	Matched []string

	// Phase is the forced phase, or "" to leave it unchanged.
	Phase Phase

	ClearRoom      bool
	ClearMyTurn    bool
	SetGameOver    bool
	ClearRematch   bool
	ClearConnected bool
}

// Empty reports whether no pattern matched.
func (e Effects) Empty() bool { return len(e.Matched) == 0 }

type rule struct {
	pattern string
	effects Effects
}

// rules is the reconciliation table. Every matching row fires. Flags are
// OR-ed together; when rows disagree on the phase the last row in the table
// wins, so the result never depends on scan order.
var rules = []rule{
	{"client process exited", Effects{Phase: PhaseDisconnected}},
	{"engine process exited", Effects{Phase: PhaseDisconnected}},
	{"room not found", Effects{ClearRoom: true, Phase: PhaseLobby}},
	{"room full", Effects{ClearRoom: true, Phase: PhaseLobby}},
	{"Waiting for opponent", Effects{ClearMyTurn: true, Phase: PhaseWaitingInRoom}},
	{"game already started", Effects{Phase: PhaseGameOver}},
	{"game over", Effects{SetGameOver: true, ClearMyTurn: true, Phase: PhaseGameOver}},
	{"rematch", Effects{ClearRematch: true, Phase: PhaseGameOver}},
	{"not your turn", Effects{ClearMyTurn: true, Phase: PhaseWaitingInRoom}},
	{"invalid move", Effects{ClearMyTurn: true, Phase: PhaseWaitingInRoom}},
	{"not in a room", Effects{ClearRoom: true, Phase: PhaseLobby}},
	{"not connected", Effects{ClearConnected: true, Phase: PhaseDisconnected}},
}

// Reconcile maps an engine error message onto the union of the effects of
// every table row whose pattern occurs in it. Matching is case sensitive.
func Reconcile(message string) Effects {
	var out Effects
	for _, r := range rules {
		if !strings.Contains(message, r.pattern) {
			continue
		}
		out.Matched = append(out.Matched, r.pattern)
		if r.effects.Phase != "" {
			out.Phase = r.effects.Phase
		}
		out.ClearRoom = out.ClearRoom || r.effects.ClearRoom
		out.ClearMyTurn = out.ClearMyTurn || r.effects.ClearMyTurn
		out.SetGameOver = out.SetGameOver || r.effects.SetGameOver
		out.ClearRematch = out.ClearRematch || r.effects.ClearRematch
		out.ClearConnected = out.ClearConnected || r.effects.ClearConnected
	}
	return out
}

// apply writes the effects onto s. IsMyTurn and IsGameOver are set here but
// get recomputed from the phase at the end of the fold step.
func (e Effects) apply(s *Snapshot) {
	if e.Phase != "" {
		s.Connection.Phase = e.Phase
	}
	if e.ClearRoom {
		s.RoomID = nil
	}
	if e.ClearMyTurn {
		s.IsMyTurn = false
	}
	if e.SetGameOver {
		s.IsGameOver = true
	}
	if e.ClearRematch {
		s.RematchOffered = false
	}
	if e.ClearConnected {
		s.Connection.Connected = false
	}
}
