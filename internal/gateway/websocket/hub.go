package websocket

import (
	"sync"

	"othello-relay/internal/procmgr"
	"othello-relay/internal/protocol"
	"othello-relay/pkg/logger"
)

// Hub maintains the set of live viewers, fans engine events out to all of
// them and funnels viewer commands into the engine.
type Hub struct {
	// Registered viewers.
	viewers map[Viewer]struct{}

	// Guards viewers and engine.
	mu sync.RWMutex

	// Serializes broadcasts so every viewer sees the same order.
	publishMu sync.Mutex

	engine Engine
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		viewers: make(map[Viewer]struct{}),
	}
}

// SetEngine sets the command sink.
func (h *Hub) SetEngine(engine Engine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.engine = engine
}

func (h *Hub) getEngine() Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// Register adds a viewer and immediately tells it whether the engine is up.
// Registering a viewer that is already present is a no-op apart from the
// status message.
func (h *Hub) Register(v Viewer) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.Lock()
	h.viewers[v] = struct{}{}
	count := len(h.viewers)
	h.mu.Unlock()

	logger.Info().Str("viewer_id", v.ID()).Int("viewers", count).Msg("Viewer connected")

	engine := h.getEngine()
	available := engine != nil && engine.Available()
	if err := v.Send(protocol.MustEncode(statusEvent(available))); err != nil {
		logger.Warn().Err(err).Str("viewer_id", v.ID()).Msg("Failed to send status to viewer")
		h.Unregister(v)
	}
}

// Unregister removes a viewer. It is idempotent and safe to call
// concurrently with Publish.
func (h *Hub) Unregister(v Viewer) {
	h.mu.Lock()
	_, ok := h.viewers[v]
	delete(h.viewers, v)
	count := len(h.viewers)
	h.mu.Unlock()

	if !ok {
		return
	}
	v.Close()
	logger.Info().Str("viewer_id", v.ID()).Int("viewers", count).Msg("Viewer disconnected")
}

// Publish implements procmgr.Publisher: the event is encoded once and sent
// to every registered viewer.
func (h *Hub) Publish(ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		logger.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode event")
		return
	}
	h.Broadcast(data)
}

// Broadcast sends data to all viewers. A viewer whose send fails is removed.
func (h *Hub) Broadcast(data []byte) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.RLock()
	viewers := make([]Viewer, 0, len(h.viewers))
	for v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		if err := v.Send(data); err != nil {
			logger.Warn().Err(err).Str("viewer_id", v.ID()).Msg("Dropping viewer after failed send")
			h.Unregister(v)
		}
	}
}

// Relay validates a command from v and forwards it to the engine. Failures
// are reported to v only.
func (h *Hub) Relay(v Viewer, data []byte) error {
	cmd, err := protocol.ParseCommand(data)
	if err != nil {
		logger.Warn().Err(err).Str("viewer_id", v.ID()).Bytes("data", data).Msg("Invalid command from viewer")
		h.reply(v, protocol.ErrorEvent(MsgInvalidCommand))
		return err
	}

	engine := h.getEngine()
	if engine == nil {
		h.reply(v, protocol.ErrorEvent(MsgEngineUnreachable))
		return procmgr.ErrEngineUnavailable
	}
	if err := engine.Send(cmd); err != nil {
		logger.Error().Err(err).Str("viewer_id", v.ID()).Str("command", cmd.Command).Msg("Cannot send command to engine")
		h.reply(v, protocol.ErrorEvent(MsgEngineUnreachable))
		return err
	}

	logger.Debug().Str("viewer_id", v.ID()).Str("command", cmd.Command).Msg("Relayed command to engine")
	return nil
}

func (h *Hub) reply(v Viewer, ev protocol.Event) {
	if err := v.Send(protocol.MustEncode(ev)); err != nil {
		h.Unregister(v)
	}
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// CloseAll unregisters every viewer, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	viewers := make([]Viewer, 0, len(h.viewers))
	for v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		h.Unregister(v)
	}
}
