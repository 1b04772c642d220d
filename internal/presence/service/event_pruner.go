package service

import (
	"context"
	"log"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
)

// EventPruner periodically deletes audit events older than a retention
// period. Visits and loans are never pruned.
//
// A retention of 0 disables pruning entirely.
type EventPruner struct {
	store     store.PresenceEventStore
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

type PrunerConfig struct {
	// RetentionDays is how many days of audit history to keep; 0 keeps all.
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewEventPruner creates a pruner but does not start it.
func NewEventPruner(s store.PresenceEventStore, cfg PrunerConfig, logger *log.Logger) *EventPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &EventPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start prunes once immediately, then on every interval until ctx is
// cancelled or Stop is called.
func (p *EventPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Printf("event pruner disabled (retention=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Printf("event pruner started (retention=%dd, interval=%s)",
		int(p.retention.Hours()/24), p.interval)
}

// Stop signals the pruner to exit and waits for it. Safe to call repeatedly.
func (p *EventPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *EventPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.PruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

// PruneOnce deletes events older than the retention and returns how many
// went. Errors are logged.
func (p *EventPruner) PruneOnce(ctx context.Context) int64 {
	if p.retention <= 0 {
		return 0
	}
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Printf("event prune error: %v", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Printf("event prune: deleted %d rows older than %s",
			deleted, cutoff.Format(time.RFC3339))
	}
	return deleted
}
