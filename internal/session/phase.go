// Package session folds the relay's event stream into a render-ready
// snapshot for one viewer and issues viewer commands.
package session

// Phase is the session phase reported by the engine.
type Phase string

const (
	PhaseDisconnected     Phase = "Disconnected"
	PhaseConnecting       Phase = "Connecting"
	PhaseLobby            Phase = "Lobby"
	PhaseCreatingRoom     Phase = "CreatingRoom"
	PhaseJoiningRoom      Phase = "JoiningRoom"
	PhaseWaitingInRoom    Phase = "WaitingInRoom"
	PhaseStartingGame     Phase = "StartingGame"
	PhaseMyTurn           Phase = "MyTurn"
	PhaseOpponentTurn     Phase = "OpponentTurn"
	PhasePlacingPiece     Phase = "PlacingPiece"
	PhaseGameOver         Phase = "GameOver"
	PhaseSendingRematch   Phase = "SendingRematch"
	PhaseQuitting         Phase = "Quitting"
	PhaseConnectionClosed Phase = "ConnectionClosed"
	PhaseUnknown          Phase = "Unknown"
)

var knownPhases = map[Phase]bool{
	PhaseDisconnected:     true,
	PhaseConnecting:       true,
	PhaseLobby:            true,
	PhaseCreatingRoom:     true,
	PhaseJoiningRoom:      true,
	PhaseWaitingInRoom:    true,
	PhaseStartingGame:     true,
	PhaseMyTurn:           true,
	PhaseOpponentTurn:     true,
	PhasePlacingPiece:     true,
	PhaseGameOver:         true,
	PhaseSendingRematch:   true,
	PhaseQuitting:         true,
	PhaseConnectionClosed: true,
	PhaseUnknown:          true,
}

func (p Phase) String() string { return string(p) }

// Known reports whether p is one of the phases the engine documents. The
// machine still accepts unknown phases since the engine is authoritative.
func (p Phase) Known() bool { return knownPhases[p] }

// InRoom reports whether the phase implies room membership.
func (p Phase) InRoom() bool {
	switch p {
	case PhaseWaitingInRoom, PhaseStartingGame, PhaseMyTurn, PhaseOpponentTurn,
		PhasePlacingPiece, PhaseGameOver, PhaseSendingRematch:
		return true
	}
	return false
}
