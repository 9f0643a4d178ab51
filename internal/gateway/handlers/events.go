package handlers

import (
	"net/http"
	"strconv"

	"othello-relay/internal/storage"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventLog is the journal the events endpoint reads from.
type EventLog interface {
	RecentEvents(limit int) ([]storage.EventRecord, error)
	EventsSince(seq int64, limit int) ([]storage.EventRecord, error)
}

// EventsResponse is returned by /api/v1/events.
type EventsResponse struct {
	Events []storage.EventRecord `json:"events"`
}

// SetEventLog enables the events endpoint. A nil log disables it.
func (h *Handlers) SetEventLog(l EventLog) {
	h.events = l
}

// Events lists journaled engine events. Without "since" it returns the newest
// "limit" events; with it, the events after that sequence number.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "event journal disabled")
		return
	}

	q := r.URL.Query()
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			SendError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	var (
		records []storage.EventRecord
		err     error
	)
	if v := q.Get("since"); v != "" {
		seq, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || seq < 0 {
			SendError(w, http.StatusBadRequest, ErrCodeBadRequest, "since must be a non-negative integer")
			return
		}
		records, err = h.events.EventsSince(seq, limit)
	} else {
		records, err = h.events.RecentEvents(limit)
	}
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if records == nil {
		records = []storage.EventRecord{}
	}
	SendJSON(w, http.StatusOK, EventsResponse{Events: records})
}
