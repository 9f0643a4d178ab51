package storage

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"othello-relay/pkg/logger"
)

// Pruner deletes journal events older than a retention window on a cron
// schedule.
type Pruner struct {
	db        *DB
	retention time.Duration
	cron      *cron.Cron
	log       zerolog.Logger
	now       func() time.Time
}

// NewPruner parses schedule (standard five-field spec or a descriptor such
// as "@hourly") and prepares a pruner. It does not run until Start.
func NewPruner(db *DB, schedule string, retention time.Duration) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("journal retention must be positive, got %s", retention)
	}

	p := &Pruner{
		db:        db,
		retention: retention,
		cron:      cron.New(),
		log:       logger.Component("journal"),
		now:       time.Now,
	}
	if _, err := p.cron.AddFunc(schedule, func() { _, _ = p.Prune() }); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start runs the schedule in the background.
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

// Prune deletes events older than the retention window now.
func (p *Pruner) Prune() (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.db.PruneEvents(cutoff)
	if err != nil {
		p.log.Error().Err(err).Msg("journal prune failed")
		return 0, err
	}
	if n > 0 {
		p.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned journal")
	}
	return n, nil
}
