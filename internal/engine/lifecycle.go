package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"engram/internal/config"
	"engram/internal/store"
	"engram/internal/vector"
)

const maintenanceJob = "daily_maintenance"

// Lifecycle applies activity decay, reinforcement on recall, and pruning
// of cold memories to the archival-only state.
type Lifecycle struct {
	db     *store.DB
	index  *vector.Index
	cfg    config.MemoryConfig
	logger *log.Logger
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(db *store.DB, index *vector.Index, cfg config.MemoryConfig, logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.New(log.Writer(), "[lifecycle] ", log.LstdFlags)
	}
	return &Lifecycle{db: db, index: index, cfg: cfg, logger: logger}
}

// Reinforce bumps the activity score of the given records by the
// configured bonus. Archival-only records are never resurrected.
func (l *Lifecycle) Reinforce(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.db.BulkReinforce(ids, l.cfg.ReinforceBonus); err != nil {
		return fmt.Errorf("reinforce: %w", err)
	}
	return nil
}

// RunDaily runs the maintenance pass at most once per calendar day:
// decay first, then pruning, so a freshly decayed record can cross the
// threshold in the same pass. The last-run guard makes restarts and
// duplicate scheduler fires harmless.
func (l *Lifecycle) RunDaily(ctx context.Context, now time.Time) error {
	day := now.Format("2006-01-02")
	last, err := l.db.LastMaintenanceRun(maintenanceJob)
	if err != nil {
		return fmt.Errorf("maintenance last-run: %w", err)
	}
	if last == day {
		return nil
	}

	decayed, pruned, err := l.RunOnce(ctx)
	if err != nil {
		return err
	}

	if err := l.db.SetMaintenanceRun(maintenanceJob, day); err != nil {
		return fmt.Errorf("maintenance mark run: %w", err)
	}
	l.logger.Printf("daily maintenance: decayed %d records, pruned %d", decayed, pruned)
	return nil
}

// RunOnce performs one decay+prune pass unconditionally. The decay
// update commits before pruning begins.
func (l *Lifecycle) RunOnce(ctx context.Context) (decayed int64, pruned int, err error) {
	if l.cfg.EnableDecay {
		decayed, err = l.db.BulkDecay(l.cfg.DecayRate)
		if err != nil {
			return 0, 0, fmt.Errorf("decay: %w", err)
		}
	}
	if l.cfg.EnablePrune {
		pruned, err = l.PruneCold(ctx)
		if err != nil {
			return decayed, 0, err
		}
	}
	return decayed, pruned, nil
}

// PruneCold moves records at or below the prune threshold to the
// archival-only state. The vector entry is removed first; the flag flips
// only after the index no longer holds the record, so a failed delete
// leaves the record fully indexed and retried on the next pass.
func (l *Lifecycle) PruneCold(ctx context.Context) (int, error) {
	ids, err := l.db.ColdRecordIDs(l.cfg.PruneThreshold)
	if err != nil {
		return 0, fmt.Errorf("prune scan: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if l.index != nil {
		if err := l.index.Delete(ctx, ids...); err != nil {
			return 0, fmt.Errorf("prune index delete: %w", err)
		}
	}
	if err := l.db.MarkArchivalOnly(ids); err != nil {
		return 0, fmt.Errorf("prune mark: %w", err)
	}
	return len(ids), nil
}
