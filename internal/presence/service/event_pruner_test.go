package service_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/service"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store/memory"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestEventPruner_DisabledWhenRetentionZero(t *testing.T) {
	es := memory.NewPresenceEventStore()
	_ = es.RecordEvent(context.Background(), store.PresenceEventRecord{
		Reason:    types.ReasonEntered,
		DecidedAt: time.Now().UTC().AddDate(-1, 0, 0),
	})

	pruner := service.NewEventPruner(es, service.PrunerConfig{RetentionDays: 0, IntervalHours: 1}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	pruner.Stop()

	if n := pruner.PruneOnce(ctx); n != 0 {
		t.Errorf("disabled pruner deleted %d rows", n)
	}
	if len(es.Events()) != 1 {
		t.Error("disabled pruner must keep everything")
	}
}

func TestEventPruner_PrunesOldEvents(t *testing.T) {
	es := memory.NewPresenceEventStore()
	ctx := context.Background()

	_ = es.RecordEvent(ctx, store.PresenceEventRecord{
		Reason:    types.ReasonEntered,
		DecidedAt: time.Now().UTC().AddDate(0, 0, -40),
	})
	_ = es.RecordEvent(ctx, store.PresenceEventRecord{
		Reason:    types.ReasonExited,
		DecidedAt: time.Now().UTC().AddDate(0, 0, -1),
	})

	pruner := service.NewEventPruner(es, service.PrunerConfig{RetentionDays: 30}, silentLogger())
	if deleted := pruner.PruneOnce(ctx); deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}

	left := es.Events()
	if len(left) != 1 || left[0].Reason != types.ReasonExited {
		t.Errorf("expected the recent event to survive, got %+v", left)
	}
}

func TestEventPruner_StopIsIdempotent(t *testing.T) {
	pruner := service.NewEventPruner(memory.NewPresenceEventStore(), service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)

	cancel()
	pruner.Stop()
	pruner.Stop()
}
