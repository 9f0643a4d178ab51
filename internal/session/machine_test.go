package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"othello-relay/internal/protocol"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []protocol.Command
	err  error
}

func (f *fakeSender) Send(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeSender) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, c := range f.sent {
		out[i] = c.Command
	}
	return out
}

func (f *fakeSender) last() protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func openMachine(t *testing.T) (*Machine, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	m := NewMachine(sender)
	m.Opened()
	return m, sender
}

func TestMachineOpened(t *testing.T) {
	m, sender := openMachine(t)

	s := m.Snapshot()
	assert.True(t, s.Connection.Connected)
	assert.Equal(t, PhaseLobby, s.Phase())
	assert.Nil(t, s.LastErrorMessage)
	assert.Equal(t, []string{protocol.CmdGetStatus}, sender.commands())
}

func TestMachineSendWithoutConnection(t *testing.T) {
	sender := &fakeSender{}
	m := NewMachine(sender)

	err := m.CreateRoom("")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, sender.commands())
	assert.Equal(t, MsgNotConnected, *m.Snapshot().LastErrorMessage)
}

func TestMachineSendFailure(t *testing.T) {
	m, sender := openMachine(t)
	sender.err = errors.New("socket closed")

	err := m.JoinRoom(3)
	assert.ErrorIs(t, err, ErrNotConnected)
	msg, isErr := m.Snapshot().Banner()
	assert.True(t, isErr)
	assert.Equal(t, MsgNotConnected, msg)
}

func TestMachineSendClearsBanners(t *testing.T) {
	m, sender := openMachine(t)
	m.Apply(protocol.InfoEvent("hello"))
	m.Apply(protocol.ErrorEvent("room full"))

	require.NoError(t, m.CreateRoom(""))
	s := m.Snapshot()
	assert.Nil(t, s.LastInfoMessage)
	assert.Nil(t, s.LastErrorMessage)
	assert.Equal(t, protocol.DefaultRoomName, sender.last().RoomName)
}

func TestMachineRoomGuards(t *testing.T) {
	tests := []struct {
		name string
		call func(m *Machine) error
		msg  string
	}{
		{"start", func(m *Machine) error { return m.StartGame() }, MsgStartNoRoom},
		{"place", func(m *Machine) error { return m.PlacePiece(2, 4) }, MsgPlaceNoRoom},
		{"rematch", func(m *Machine) error { return m.SendRematchResponse(true) }, MsgRematchNoRoom},
		{"chat", func(m *Machine) error { return m.SendChatMessage("hi") }, MsgChatNoRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, sender := openMachine(t)
			before := len(sender.commands())

			err := tt.call(m)
			assert.ErrorIs(t, err, ErrNoRoom)
			assert.Len(t, sender.commands(), before, "nothing may reach the relay")
			assert.Equal(t, tt.msg, *m.Snapshot().LastErrorMessage)
		})
	}
}

func TestMachineRoomGuardsAfterEngineLobby(t *testing.T) {
	m, sender := openMachine(t)
	m.ApplyLine([]byte(`{"type":"stateChange","state":"WaitingInRoom","roomId":3,"color":1}`))
	m.ApplyLine([]byte(`{"type":"stateChange","state":"Lobby","roomId":-1,"color":0}`))
	require.Nil(t, m.Snapshot().RoomID)
	before := len(sender.commands())

	assert.ErrorIs(t, m.StartGame(), ErrNoRoom)
	assert.Equal(t, MsgStartNoRoom, *m.Snapshot().LastErrorMessage)
	assert.ErrorIs(t, m.PlacePiece(0, 0), ErrNoRoom)
	assert.Equal(t, MsgPlaceNoRoom, *m.Snapshot().LastErrorMessage)
	assert.ErrorIs(t, m.SendRematchResponse(true), ErrNoRoom)
	assert.ErrorIs(t, m.SendChatMessage("hi"), ErrNoRoom)
	assert.Equal(t, MsgChatNoRoom, *m.Snapshot().LastErrorMessage)
	assert.Len(t, sender.commands(), before)
}

func TestMachineRoomCommands(t *testing.T) {
	m, sender := openMachine(t)
	m.Apply(protocol.StateChange("WaitingInRoom", protocol.Int(3), protocol.ColorPtr(protocol.ColorBlack)))

	require.NoError(t, m.StartGame())
	assert.Equal(t, protocol.Start(3), sender.last())

	require.NoError(t, m.PlacePiece(2, 4))
	assert.Equal(t, protocol.Place(3, 2, 4), sender.last())

	require.NoError(t, m.SendRematchResponse(false))
	assert.Equal(t, protocol.Rematch(3, false), sender.last())

	require.NoError(t, m.QuitGame())
	assert.Equal(t, protocol.Quit(), sender.last())
}

func TestMachinePlaceOffBoard(t *testing.T) {
	m, sender := openMachine(t)
	m.Apply(protocol.StateChange("MyTurn", protocol.Int(3), nil))
	before := len(sender.commands())

	err := m.PlacePiece(8, 0)
	assert.ErrorIs(t, err, protocol.ErrInvalidCommand)
	assert.Len(t, sender.commands(), before)
	assert.Equal(t, MsgInvalidFormat, *m.Snapshot().LastErrorMessage)
}

func TestMachineConnect(t *testing.T) {
	m, sender := openMachine(t)

	require.NoError(t, m.Connect("127.0.0.1", 10000))
	s := m.Snapshot()
	assert.True(t, s.Connection.ConnectedToServer)
	assert.Equal(t, PhaseConnecting, s.Phase())
	assert.Equal(t, protocol.Connect("127.0.0.1", 10000), sender.last())
}

func TestMachineApplyLine(t *testing.T) {
	m, _ := openMachine(t)

	s := m.ApplyLine([]byte(`{"type":"stateChange","state":"MyTurn","roomId":3}`))
	assert.True(t, s.IsMyTurn)

	s = m.ApplyLine([]byte(`not json`))
	assert.Equal(t, MsgInvalidData, *s.LastErrorMessage)
	assert.Equal(t, PhaseMyTurn, s.Phase(), "invalid data changes nothing else")
}

func TestMachineClosed(t *testing.T) {
	t.Run("plain close", func(t *testing.T) {
		m, _ := openMachine(t)
		m.Apply(protocol.StateChange("MyTurn", protocol.Int(3), protocol.ColorPtr(protocol.ColorWhite)))

		m.Closed()
		s := m.Snapshot()
		assert.False(t, s.Connection.Connected)
		assert.False(t, s.Connection.ConnectedToServer)
		assert.Equal(t, PhaseDisconnected, s.Phase())
		assert.Nil(t, s.RoomID)
		assert.Nil(t, s.MyColor)
		assert.False(t, s.IsMyTurn)
		assert.Equal(t, MsgDisconnected, *s.LastErrorMessage)
	})

	t.Run("after failure", func(t *testing.T) {
		m, _ := openMachine(t)
		m.Failed(errors.New("reset by peer"))
		m.Closed()
		assert.Equal(t, MsgConnectionError, *m.Snapshot().LastErrorMessage)
	})

	t.Run("after giving up", func(t *testing.T) {
		m, _ := openMachine(t)
		m.ReconnectFailed()
		m.Closed()
		assert.Equal(t, MsgReconnectFailed, *m.Snapshot().LastErrorMessage)
	})
}

func TestMachineChat(t *testing.T) {
	m, sender := openMachine(t)
	m.Apply(protocol.StateChange("MyTurn", protocol.Int(1), protocol.ColorPtr(protocol.ColorBlack)))

	assert.ErrorIs(t, m.SendChatMessage("   "), ErrEmptyMessage)

	require.NoError(t, m.SendChatMessage(" good luck "))
	assert.Equal(t, protocol.Chat(1, "good luck"), sender.last())

	s := m.Snapshot()
	require.Len(t, s.Chat, 1)
	assert.True(t, s.Chat[0].IsMine)
	assert.Equal(t, protocol.ColorBlack, s.Chat[0].SenderColor)
	assert.Equal(t, "You", s.Chat[0].DisplayName())

	// The engine echoing our own message does not duplicate it.
	m.Apply(protocol.Event{Type: protocol.TypeChatMessage, Payload: &protocol.ChatPayload{
		RoomID: 1, SenderColor: protocol.ColorBlack, Message: "good luck", Timestamp: 1,
	}})
	assert.Len(t, m.Snapshot().Chat, 1)

	m.Apply(protocol.Event{Type: protocol.TypeChatMessage, Payload: &protocol.ChatPayload{
		RoomID: 1, SenderColor: protocol.ColorWhite, SenderDisplayName: "Bob", Message: "you too", Timestamp: 2,
	}})
	s = m.Snapshot()
	require.Len(t, s.Chat, 2)
	assert.False(t, s.Chat[1].IsMine)
	assert.Equal(t, "Bob", s.Chat[1].DisplayName())
}

func TestMachineOnChange(t *testing.T) {
	m := NewMachine(&fakeSender{})

	var mu sync.Mutex
	var phases []Phase
	cancel := m.OnChange(func(s Snapshot) {
		mu.Lock()
		phases = append(phases, s.Phase())
		mu.Unlock()
	})

	m.Apply(protocol.StateChange("Lobby", nil, nil))
	m.Apply(protocol.StateChange("WaitingInRoom", protocol.Int(1), nil))
	cancel()
	m.Apply(protocol.StateChange("MyTurn", nil, nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseLobby, PhaseWaitingInRoom}, phases)
}

func TestMachineSnapshotIsolation(t *testing.T) {
	m, _ := openMachine(t)
	m.Apply(protocol.StateChange("WaitingInRoom", protocol.Int(5), nil))

	s := m.Snapshot()
	*s.RoomID = 99
	assert.Equal(t, 5, *m.Snapshot().RoomID)
}

func TestMachineConcurrentUse(t *testing.T) {
	m, _ := openMachine(t)
	m.Apply(protocol.StateChange("MyTurn", protocol.Int(1), protocol.ColorPtr(protocol.ColorBlack)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.Apply(protocol.StateChange("OpponentTurn", nil, nil))
		}()
		go func() {
			defer wg.Done()
			_ = m.SendChatMessage("hi")
		}()
		go func() {
			defer wg.Done()
			_ = m.Snapshot()
		}()
	}
	wg.Wait()

	assert.Len(t, m.Snapshot().Chat, 10)
}
