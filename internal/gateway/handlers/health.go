package handlers

import (
	"net/http"
	"time"

	"othello-relay/internal/procmgr"
)

// Relay is the state the health and status endpoints report on.
type Relay interface {
	EngineStatus() procmgr.Status
	ViewerCount() int
	RestartEngine() error
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
	Engine  bool   `json:"engine"`
}

// StatusResponse is returned by /api/v1/status.
type StatusResponse struct {
	Engine  procmgr.Status `json:"engine"`
	Viewers int            `json:"viewers"`
	Uptime  int64          `json:"uptime"`
}

// Handlers serves the HTTP API of one relay.
type Handlers struct {
	relay     Relay
	events    EventLog
	version   string
	startTime time.Time
}

// New creates the handlers. The uptime clock starts now.
func New(relay Relay, version string) *Handlers {
	return &Handlers{relay: relay, version: version, startTime: time.Now()}
}

func (h *Handlers) uptime() int64 {
	return int64(time.Since(h.startTime).Seconds())
}

// Health reports "ok" while the engine runs and "degraded" otherwise. The
// relay itself is up in both cases, so the status code is always 200.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	running := h.relay.EngineStatus().Running
	status := "ok"
	if !running {
		status = "degraded"
	}
	SendJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: h.version,
		Uptime:  h.uptime(),
		Engine:  running,
	})
}

// Status reports engine process details and the viewer count.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, StatusResponse{
		Engine:  h.relay.EngineStatus(),
		Viewers: h.relay.ViewerCount(),
		Uptime:  h.uptime(),
	})
}

// RestartEngine kills the engine so the supervisor starts a fresh one, or
// starts it if it is not running.
func (h *Handlers) RestartEngine(w http.ResponseWriter, r *http.Request) {
	if err := h.relay.RestartEngine(); err != nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
