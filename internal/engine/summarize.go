package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"engram/internal/config"
	"engram/internal/llm"
	"engram/internal/store"
	"engram/internal/vector"
)

// Summarizer condenses a user's unarchived raw messages into first-person
// memory records, one per calendar day, after the conversation goes idle.
type Summarizer struct {
	db       *store.DB
	index    *vector.Index
	embedder Embedder
	llm      llm.Client
	cfg      config.SummarizeConfig
	logger   *log.Logger
	now      func() time.Time

	// OnSummarized, when set, is invoked after new records are created
	// for a user. The engine uses it to schedule a profile update.
	OnSummarized func(userID string)

	mu       sync.Mutex
	lastChat map[string]time.Time // userID -> last message time
	pending  map[string]int       // userID -> unarchived count since last pass
}

// NewSummarizer creates a summarizer.
func NewSummarizer(db *store.DB, index *vector.Index, embedder Embedder, client llm.Client, cfg config.SummarizeConfig, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[summarize] ", log.LstdFlags)
	}
	return &Summarizer{
		db:       db,
		index:    index,
		embedder: embedder,
		llm:      client,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		lastChat: make(map[string]time.Time),
		pending:  make(map[string]int),
	}
}

// RecordMessage persists an incoming raw message and tracks the user's
// conversation activity for the idle trigger.
func (s *Summarizer) RecordMessage(m *store.RawMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := s.db.SaveMessage(m); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastChat[m.UserID] = s.now()
	s.pending[m.UserID]++
	s.mu.Unlock()
	return nil
}

// CheckIdle summarizes every tracked user whose conversation has been idle
// past the configured timeout with enough pending messages.
func (s *Summarizer) CheckIdle(ctx context.Context) {
	idle := time.Duration(s.cfg.IdleTimeoutSecs) * time.Second
	now := s.now()

	s.mu.Lock()
	var due []string
	for userID, last := range s.lastChat {
		if now.Sub(last) >= idle && s.pending[userID] >= s.cfg.MinMessages {
			due = append(due, userID)
		}
	}
	s.mu.Unlock()

	for _, userID := range due {
		if err := s.SummarizeUser(ctx, userID); err != nil {
			s.logger.Printf("summarize %s: %v", userID, err)
		}
	}
}

// SummarizeUser condenses the user's unarchived messages into memory
// records, one per day. Filtered-out messages (commands, trivial noise)
// are archived without contributing to any summary. Each new record links
// to the user's previous record, is embedded into the vector index, and
// archives its source messages; archiving happens last so a failure
// leaves the messages eligible for the next pass.
func (s *Summarizer) SummarizeUser(ctx context.Context, userID string) error {
	msgs, err := s.db.UnarchivedMessages(userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.pending, userID)
	delete(s.lastChat, userID)
	s.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}

	var usable []store.RawMessage
	var noise []string
	cutoff := int64(0)
	if s.cfg.MaxHistoryDays > 0 {
		cutoff = s.now().AddDate(0, 0, -s.cfg.MaxHistoryDays).UnixMilli()
	}
	for _, m := range msgs {
		if m.CreatedAt < cutoff || !summarizable(&m) {
			noise = append(noise, m.ID)
			continue
		}
		usable = append(usable, m)
	}
	if err := s.db.MarkArchived(noise); err != nil {
		return err
	}
	if len(usable) < s.cfg.MinMessages {
		return nil
	}

	for _, batch := range groupByDay(usable) {
		if err := s.summarizeBatch(ctx, userID, batch); err != nil {
			return err
		}
	}
	if s.OnSummarized != nil {
		s.OnSummarized(userID)
	}
	return nil
}

func (s *Summarizer) summarizeBatch(ctx context.Context, userID string, batch []store.RawMessage) error {
	summary, err := s.complete(ctx, llm.SummaryPrompt(renderChat(batch)))
	if err != nil {
		return fmt.Errorf("summarize batch: %w", err)
	}
	summary = strings.TrimSpace(llm.TrimFences(summary))
	if summary == "" {
		return fmt.Errorf("summarize batch: empty summary")
	}

	prevID := ""
	if prev, err := s.db.LastRecord(userID); err == nil && prev != nil {
		prevID = prev.ID
	}

	ids := make([]string, len(batch))
	for i, m := range batch {
		ids[i] = m.ID
	}
	rec := &store.MemoryRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Summary:    summary,
		RefIDs:     ids,
		PrevID:     prevID,
		SourceType: "private",
		StartedAt:  batch[0].CreatedAt,
		EndedAt:    batch[len(batch)-1].CreatedAt,
	}
	if err := s.db.CreateRecord(rec); err != nil {
		return err
	}

	if s.index != nil && s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, summary)
		if err != nil {
			s.logger.Printf("embed summary %s: %v", rec.ID, err)
		} else if err := s.index.Upsert(ctx, rec.ID, userID, summary, emb); err != nil {
			s.logger.Printf("index summary %s: %v", rec.ID, err)
		}
	}

	if err := s.db.MarkArchived(ids); err != nil {
		return err
	}
	s.logger.Printf("user %s: summarized %d messages into record %.8s", userID, len(batch), rec.ID)
	return nil
}

// complete calls the LLM with retries; transient provider errors should
// not drop a day of conversation.
func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	retries := s.cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		resp, err := s.llm.Complete(ctx, prompt)
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

var internalCommandRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// summarizable filters out bot commands and trivial noise. A message
// counts when it has at least two Han characters or ten runes total.
func summarizable(m *store.RawMessage) bool {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return false
	}
	switch content[0] {
	case '/', '#', '~', '!', '&', '*':
		return false
	}
	if strings.HasPrefix(content, "！") {
		return false
	}
	if strings.Contains(content, "_") && internalCommandRE.MatchString(content) {
		return false
	}

	han := 0
	for _, r := range content {
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	return han >= 2 || len([]rune(content)) >= 10
}

// groupByDay splits messages into per-calendar-day batches, oldest day
// first, preserving message order within each day.
func groupByDay(msgs []store.RawMessage) [][]store.RawMessage {
	byDay := make(map[string][]store.RawMessage)
	for _, m := range msgs {
		day := time.UnixMilli(m.CreatedAt).Format("2006-01-02")
		byDay[day] = append(byDay[day], m)
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([][]store.RawMessage, 0, len(days))
	for _, day := range days {
		out = append(out, byDay[day])
	}
	return out
}

func renderChat(msgs []store.RawMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		name := m.UserName
		if name == "" {
			name = m.Role
		}
		if m.Role == "assistant" {
			name = "me"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n",
			time.UnixMilli(m.CreatedAt).Format("15:04"), name, m.Content)
	}
	return sb.String()
}
