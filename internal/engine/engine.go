// Package engine implements the memory pipeline: intent gating, fused
// retrieval, daily summarization, lifecycle maintenance and guarded
// profile updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"engram/internal/config"
	"engram/internal/llm"
	"engram/internal/profile"
	"engram/internal/scheduler"
	"engram/internal/store"
	"engram/internal/vector"
)

// ErrNotFound is returned when a memory lookup by id matches nothing.
var ErrNotFound = errors.New("memory not found")

// Engine owns the full memory pipeline for one daemon instance.
type Engine struct {
	DB         *store.DB
	Index      *vector.Index
	Gate       *Gate
	Retriever  *Retriever
	Lifecycle  *Lifecycle
	Summarizer *Summarizer
	Profile    *ProfileUpdater

	embedder Embedder
	cfg      config.Config
	logger   *log.Logger
	sched    *scheduler.Scheduler
	debounce *scheduler.Debouncer

	mu          sync.Mutex
	lastDeleted map[string]*store.MemoryRecord // per-user single-slot undo
}

// New wires the engine from its parts. client and embedder may be nil for
// degraded offline operation; summarization and profile updates then skip
// their LLM steps with logged errors rather than failing ingest.
func New(db *store.DB, index *vector.Index, client llm.Client, embedder Embedder, cfg config.Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[engine] ", log.LstdFlags)
	}
	guardian := profile.NewGuardian(db, cfg.Profile)
	lifecycle := NewLifecycle(db, index, cfg.Memory, logger)
	e := &Engine{
		DB:          db,
		Index:       index,
		Gate:        NewGate(cfg.Intent, client, logger),
		Retriever:   NewRetriever(db, index, embedder, lifecycle, cfg.Memory, logger),
		Lifecycle:   lifecycle,
		Summarizer:  NewSummarizer(db, index, embedder, client, cfg.Summarize, logger),
		Profile:     NewProfileUpdater(db, client, guardian, cfg.Profile, logger),
		embedder:    embedder,
		cfg:         cfg,
		logger:      logger,
		sched:       scheduler.New(),
		debounce:    scheduler.NewDebouncer(scheduler.RealClock(), time.Duration(cfg.Profile.UpdateDelaySecs)*time.Second),
		lastDeleted: make(map[string]*store.MemoryRecord),
	}

	// fresh summaries schedule a debounced profile update for the user, so
	// a burst of idle sweeps runs extraction once
	e.Summarizer.OnSummarized = func(userID string) {
		e.debounce.Trigger(userID, func() {
			now := time.Now()
			dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			if err := e.Profile.UpdateUser(context.Background(), userID, dayStart, dayStart.AddDate(0, 0, 1)); err != nil {
				logger.Printf("profile update after summarize %s: %v", userID, err)
			}
		})
	}
	return e
}

// Start launches the background loops: an idle-check sweep every minute
// and the daily maintenance pass (decay, prune, profile updates).
func (e *Engine) Start(ctx context.Context) {
	e.sched.Every(time.Minute, func() {
		e.Summarizer.CheckIdle(ctx)
	})
	e.sched.DailyAt(e.cfg.Memory.MaintenanceHour, 0, func() {
		e.RunDailyMaintenance(ctx, time.Now())
	})
	e.logger.Printf("background loops started (maintenance at %02d:00)", e.cfg.Memory.MaintenanceHour)
}

// Stop halts the background loops and cancels pending debounced updates.
func (e *Engine) Stop() {
	e.sched.Stop()
	e.debounce.Flush()
}

// RunDailyMaintenance runs the lifecycle pass and then profile extraction
// over the previous day's memories. Each half logs and continues on
// failure; a broken LLM must not block decay.
func (e *Engine) RunDailyMaintenance(ctx context.Context, now time.Time) {
	if err := e.Lifecycle.RunDaily(ctx, now); err != nil {
		e.logger.Printf("daily lifecycle: %v", err)
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := e.Profile.UpdateAll(ctx, dayStart.AddDate(0, 0, -1), dayStart); err != nil {
		e.logger.Printf("daily profile pass: %v", err)
	}
}

// Ingest stores one raw conversation message.
func (e *Engine) Ingest(m *store.RawMessage) error {
	return e.Summarizer.RecordMessage(m)
}

// Search gates the query through the intent classifier and, when it
// passes, runs fused retrieval. gated reports whether retrieval ran.
func (e *Engine) Search(ctx context.Context, userID, query string, topK int) (results []Scored, gated bool, err error) {
	if !e.Gate.ShouldRetrieve(ctx, query) {
		return nil, true, nil
	}
	results, err = e.Retriever.Retrieve(ctx, userID, query, topK)
	return results, false, err
}

// DeleteMemory removes a record by full id or unique short prefix. The
// deleted record is held in a per-user slot so the last deletion can be
// undone; source messages return to the summarizable pool.
func (e *Engine) DeleteMemory(ctx context.Context, userID, idOrPrefix string) (*store.MemoryRecord, error) {
	rec, err := e.DB.GetRecord(idOrPrefix)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UserID != userID {
		rec, err = e.DB.GetRecordByPrefix(userID, idOrPrefix)
		if err != nil {
			return nil, err
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	}

	if e.Index != nil {
		if err := e.Index.Delete(ctx, rec.ID); err != nil {
			return nil, fmt.Errorf("unindex memory: %w", err)
		}
	}
	if err := e.DB.DeleteRecord(rec.ID); err != nil {
		return nil, err
	}
	if err := e.DB.MarkUnarchived(rec.RefIDs); err != nil {
		e.logger.Printf("unarchive sources of %.8s: %v", rec.ID, err)
	}

	e.mu.Lock()
	e.lastDeleted[userID] = rec
	e.mu.Unlock()
	return rec, nil
}

// UndoDelete restores the user's most recently deleted record, re-embeds
// it into the index and re-archives its source messages. Only one level
// of undo is kept per user.
func (e *Engine) UndoDelete(ctx context.Context, userID string) (*store.MemoryRecord, error) {
	e.mu.Lock()
	rec := e.lastDeleted[userID]
	delete(e.lastDeleted, userID)
	e.mu.Unlock()
	if rec == nil {
		return nil, fmt.Errorf("%w: nothing to undo", ErrNotFound)
	}

	if err := e.DB.CreateRecord(rec); err != nil {
		return nil, fmt.Errorf("restore memory: %w", err)
	}
	if e.Index != nil && e.embedder != nil {
		emb, err := e.embedder.Embed(ctx, rec.Summary)
		if err != nil {
			e.logger.Printf("re-embed restored %.8s: %v", rec.ID, err)
		} else if err := e.Index.Upsert(ctx, rec.ID, userID, rec.Summary, emb); err != nil {
			e.logger.Printf("re-index restored %.8s: %v", rec.ID, err)
		}
	}
	if err := e.DB.MarkArchived(rec.RefIDs); err != nil {
		e.logger.Printf("re-archive sources of %.8s: %v", rec.ID, err)
	}
	return rec, nil
}

// ForgetUser wipes everything known about a user: raw messages, memory
// records, vector entries and the profile.
func (e *Engine) ForgetUser(ctx context.Context, userID string) error {
	recs, err := e.DB.ListIndexed(userID, 0)
	if err != nil {
		return err
	}
	if e.Index != nil && len(recs) > 0 {
		if err := e.Index.DeleteUser(ctx, userID); err != nil {
			return fmt.Errorf("unindex user: %w", err)
		}
	}
	all, err := e.DB.RecordsInRange(userID, 0, time.Now().AddDate(1, 0, 0).UnixMilli())
	if err != nil {
		return err
	}
	for _, r := range all {
		if err := e.DB.DeleteRecord(r.ID); err != nil {
			return err
		}
	}
	if err := e.DB.DeleteUserMessages(userID); err != nil {
		return err
	}
	if err := e.DB.ClearUserProfile(userID); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.lastDeleted, userID)
	e.mu.Unlock()
	return nil
}
