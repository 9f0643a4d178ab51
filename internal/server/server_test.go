package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"othello-relay/internal/config"
	"othello-relay/internal/gateway/handlers"
	"othello-relay/internal/gateway/websocket"
	"othello-relay/internal/procmgr"
	"othello-relay/internal/protocol"
	"othello-relay/internal/session"
	"othello-relay/internal/storage"
	"othello-relay/internal/viewer"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Gateway.Port = 0
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.RateLimit.Enabled = false
	return cfg
}

func startRelay(t *testing.T, launcher *fakeLauncher) *Server {
	t.Helper()
	srv, err := New(testConfig(), WithLauncher(launcher), WithVersion("test"))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func dialViewer(t *testing.T, srv *Server) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *gws.Conn) protocol.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := protocol.Decode(data)
	require.NoError(t, err)
	return ev
}

func assertSilent(t *testing.T, conn *gws.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected message %s", data)
}

func sendCommand(t *testing.T, conn *gws.Conn, cmd protocol.Command) {
	t.Helper()
	data, err := protocol.EncodeCommand(cmd)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, data))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Engine.Path = ""
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestViewerGreeting(t *testing.T) {
	srv := startRelay(t, &fakeLauncher{})
	conn := dialViewer(t, srv)

	ev := readEvent(t, conn)
	assert.Equal(t, protocol.TypeInfo, ev.Type)
	assert.Equal(t, websocket.MsgConnected, ev.Message)

	require.Eventually(t, func() bool { return srv.ViewerCount() == 1 }, time.Second, 10*time.Millisecond)
}

// Two viewers; the first places a piece and both see the same events once.
func TestBroadcastToAllViewers(t *testing.T) {
	srv := startRelay(t, &fakeLauncher{})
	first := dialViewer(t, srv)
	second := dialViewer(t, srv)
	readEvent(t, first)
	readEvent(t, second)

	sendCommand(t, first, protocol.Place(3, 2, 4))

	for _, conn := range []*gws.Conn{first, second} {
		board := readEvent(t, conn)
		require.Equal(t, protocol.TypeBoardUpdate, board.Type)
		assert.Equal(t, protocol.ColorBlack, board.Board[2][4])

		state := readEvent(t, conn)
		assert.Equal(t, protocol.TypeStateChange, state.Type)
		assert.Equal(t, "OpponentTurn", state.State)

		assertSilent(t, conn)
	}
}

// The engine crashes; every viewer hears about it and a fresh engine takes
// commands.
func TestEngineCrashRestarts(t *testing.T) {
	launcher := &fakeLauncher{}
	srv := startRelay(t, launcher)
	first := dialViewer(t, srv)
	second := dialViewer(t, srv)
	readEvent(t, first)
	readEvent(t, second)

	launcher.last().exit(1)

	for _, conn := range []*gws.Conn{first, second} {
		ev := readEvent(t, conn)
		assert.Equal(t, protocol.TypeError, ev.Type)
		assert.Equal(t, "engine process exited unexpectedly (code: 1)", ev.Message)
	}

	require.Eventually(t, func() bool {
		st := srv.EngineStatus()
		return st.Running && st.Pid == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.EngineStatus().Restarts)

	sendCommand(t, second, protocol.GetStatus())
	for _, conn := range []*gws.Conn{first, second} {
		ev := readEvent(t, conn)
		assert.Equal(t, protocol.TypeStateChange, ev.Type)
		assert.Equal(t, "Lobby", ev.State)
	}
}

func TestEngineSpawnFailure(t *testing.T) {
	srv := startRelay(t, &fakeLauncher{err: errNoBinary})
	conn := dialViewer(t, srv)

	ev := readEvent(t, conn)
	assert.Equal(t, protocol.TypeError, ev.Type)
	assert.Equal(t, websocket.MsgEngineNotRunning, ev.Message)

	sendCommand(t, conn, protocol.GetStatus())
	ev = readEvent(t, conn)
	assert.Equal(t, protocol.TypeError, ev.Type)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health handlers.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestRestartEndpoint(t *testing.T) {
	launcher := &fakeLauncher{}
	srv := startRelay(t, launcher)
	conn := dialViewer(t, srv)
	readEvent(t, conn)

	resp, err := http.Post("http://"+srv.Addr()+"/api/v1/engine/restart", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev := readEvent(t, conn)
	assert.Equal(t, protocol.TypeInfo, ev.Type)
	assert.Equal(t, procmgr.MsgEngineRestarted, ev.Message)

	require.Eventually(t, func() bool {
		st := srv.EngineStatus()
		return st.Running && st.Pid == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.EngineStatus().Restarts)
}

// A session machine driven through the viewer client follows the engine.
func TestSessionThroughRelay(t *testing.T) {
	launcher := &fakeLauncher{}
	srv := startRelay(t, launcher)

	m := session.NewMachine(nil)
	c := viewer.New(m, viewer.Options{URL: fmt.Sprintf("ws://%s/ws", srv.Addr())})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.Connection.Connected && s.Connection.ConnectedToServer && s.Phase() == session.PhaseLobby
	}, 2*time.Second, 10*time.Millisecond)

	launcher.last().exit(1)

	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.Phase() == session.PhaseDisconnected && s.LastErrorMessage != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "engine process exited unexpectedly (code: 1)", *m.Snapshot().LastErrorMessage)
	assert.True(t, m.Snapshot().Connection.Connected, "the relay link itself stays up")
}

func TestStopIsIdempotent(t *testing.T) {
	var states []bool
	srv, err := New(testConfig(), WithLauncher(&fakeLauncher{}), WithOnStateChange(func(r bool) { states = append(states, r) }))
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	assert.False(t, srv.StartedAt().IsZero())

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	assert.False(t, srv.IsRunning())
	assert.Equal(t, []bool{true, false}, states)
}

func TestJournalRecordsEngineEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")

	launcher := &fakeLauncher{}
	srv, err := New(cfg, WithLauncher(launcher))
	require.NoError(t, err)
	require.NotNil(t, srv.Journal())
	require.NoError(t, srv.Start())

	conn := dialViewer(t, srv)
	readEvent(t, conn)
	sendCommand(t, conn, protocol.Place(3, 2, 4))
	readEvent(t, conn)
	readEvent(t, conn)

	require.NoError(t, srv.Stop(context.Background()))

	db, err := storage.Open(cfg.Journal.Path)
	require.NoError(t, err)
	defer db.Close()

	records, err := db.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, protocol.TypeBoardUpdate, records[0].Type)
	assert.Equal(t, protocol.TypeStateChange, records[1].Type)
}

func TestJournalDisabledByDefault(t *testing.T) {
	srv := startRelay(t, &fakeLauncher{})
	assert.Nil(t, srv.Journal())

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
