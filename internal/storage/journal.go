package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"othello-relay/internal/protocol"
	"othello-relay/pkg/logger"
)

const (
	defaultJournalBuffer = 1024
	journalBatch         = 64
)

// Journal records published events in the background. It implements
// procmgr.Publisher so it can sit next to the hub; Publish never blocks and
// drops events when the buffer is full.
type Journal struct {
	db  *DB
	ch  chan protocol.Event
	log zerolog.Logger
	now func() time.Time

	done chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewJournal starts a journal writing to db. bufferSize <= 0 uses a default.
func NewJournal(db *DB, bufferSize int) *Journal {
	if bufferSize <= 0 {
		bufferSize = defaultJournalBuffer
	}
	j := &Journal{
		db:   db,
		ch:   make(chan protocol.Event, bufferSize),
		log:  logger.Component("journal"),
		now:  time.Now,
		done: make(chan struct{}),
	}
	go j.run()
	return j
}

// Publish queues ev for writing. Events published after Close are ignored.
func (j *Journal) Publish(ev protocol.Event) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	select {
	case j.ch <- ev:
		j.mu.Unlock()
		return
	default:
	}
	j.dropped++
	n := j.dropped
	j.mu.Unlock()

	if n == 1 || n%100 == 0 {
		j.log.Warn().Int64("dropped", n).Msg("journal buffer full, dropping events")
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Close flushes queued events and stops the writer.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	<-j.done
}

func (j *Journal) run() {
	defer close(j.done)

	batch := make([]protocol.Event, 0, journalBatch)
	for ev := range j.ch {
		batch = append(batch[:0], ev)
	fill:
		for len(batch) < journalBatch {
			select {
			case next, ok := <-j.ch:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}

		if err := j.db.AppendEvents(batch, j.now()); err != nil {
			j.log.Error().Err(err).Int("events", len(batch)).Msg("failed to write journal batch")
		}
	}
}

// RecentEvents implements handlers.EventLog.
func (j *Journal) RecentEvents(limit int) ([]EventRecord, error) {
	return j.db.RecentEvents(limit)
}

// EventsSince implements handlers.EventLog.
func (j *Journal) EventsSince(seq int64, limit int) ([]EventRecord, error) {
	return j.db.EventsSince(seq, limit)
}
