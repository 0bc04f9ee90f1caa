package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"engram/internal/config"
	"engram/internal/llm"
	"engram/internal/profile"
	"engram/internal/store"
)

// FactCandidate is one profile fact extracted from a day's memories.
type FactCandidate struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Explicit bool   `json:"explicit"`
}

// ParseFacts decodes an LLM fact-extraction response. Fences and
// surrounding chatter are tolerated; the first JSON array in the content
// is what gets parsed.
func ParseFacts(content string) ([]FactCandidate, error) {
	content = llm.TrimFences(content)
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var facts []FactCandidate
	if err := json.Unmarshal([]byte(content[start:end+1]), &facts); err != nil {
		return nil, fmt.Errorf("parse facts: %w", err)
	}

	out := facts[:0]
	for _, f := range facts {
		f.Key = strings.TrimSpace(f.Key)
		f.Value = strings.TrimSpace(f.Value)
		if f.Key != "" && f.Value != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// First-person statements that count as strong evidence for sensitive
// fields. Model-inferred facts never satisfy these.
var strongEvidencePatterns = map[string][]*regexp.Regexp{
	"basic_info.gender": {
		regexp.MustCompile(`我是(男|女)(生|的|性)?`),
		regexp.MustCompile(`(?i)\bi('m| am) a (man|woman|guy|girl|male|female)\b`),
	},
	"basic_info.age": {
		regexp.MustCompile(`我(今年)?\d{1,3}岁`),
		regexp.MustCompile(`(?i)\bi('m| am) \d{1,3}( years old)?\b`),
	},
	"basic_info.location": {
		regexp.MustCompile(`我(住|家)在`),
		regexp.MustCompile(`我是.{1,6}人`),
		regexp.MustCompile(`(?i)\bi live in\b`),
		regexp.MustCompile(`(?i)\bi('m| am) from\b`),
	},
	"basic_info.occupation": {
		regexp.MustCompile(`我(是|做|干).{0,10}(工作|程序员|老师|学生|医生|设计师|工程师)`),
		regexp.MustCompile(`(?i)\bi work (as|at|in)\b`),
		regexp.MustCompile(`(?i)\bmy job is\b`),
	},
}

// ExplicitStatement reports whether the text contains a first-person
// statement for the given sensitive field.
func ExplicitStatement(field, text string) bool {
	for _, p := range strongEvidencePatterns[field] {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ProfileUpdater extracts profile facts from new memories and routes them
// through the guardian.
type ProfileUpdater struct {
	db       *store.DB
	llm      llm.Client
	guardian *profile.Guardian
	cfg      config.ProfileConfig
	logger   *log.Logger

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// NewProfileUpdater creates a profile updater.
func NewProfileUpdater(db *store.DB, client llm.Client, guardian *profile.Guardian, cfg config.ProfileConfig, logger *log.Logger) *ProfileUpdater {
	if logger == nil {
		logger = log.New(log.Writer(), "[profile] ", log.LstdFlags)
	}
	return &ProfileUpdater{db: db, llm: client, guardian: guardian, cfg: cfg, logger: logger, users: make(map[string]*sync.Mutex)}
}

// userLock returns the mutex serializing profile updates for one user.
func (u *ProfileUpdater) userLock(userID string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.users[userID]
	if !ok {
		l = &sync.Mutex{}
		u.users[userID] = l
	}
	return l
}

// UpdateAll runs the daily profile pass over every user that gained
// memories in [from, to). Users are processed concurrently up to the
// configured cap, with a small stagger so a burst never hammers the LLM
// provider.
func (u *ProfileUpdater) UpdateAll(ctx context.Context, from, to time.Time) error {
	users, err := u.db.UsersWithRecordsInRange(from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	limit := u.cfg.UpdateMaxConcurrent
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	delay := time.Duration(u.cfg.UpdateDelaySecs) * time.Second

	var wg sync.WaitGroup
	for i, userID := range users {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := u.UpdateUser(ctx, userID, from, to); err != nil {
				u.logger.Printf("update %s: %v", userID, err)
			}
		}(userID)
	}
	wg.Wait()
	return ctx.Err()
}

// UpdateUser extracts facts from one user's memories in [from, to) and
// applies them through the guardian. Updates for the same user are
// serialized: the debounced post-summary trigger and the daily pass may
// fire together, and guardian staging is read-modify-write. Users with
// too few new memories are skipped; one day of thin conversation is not
// evidence of anything.
func (u *ProfileUpdater) UpdateUser(ctx context.Context, userID string, from, to time.Time) error {
	lock := u.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	memories, err := u.db.RecordsInRange(userID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return err
	}
	if len(memories) < u.cfg.MinMemories {
		return nil
	}

	attrs, err := u.db.ListAttributes(userID)
	if err != nil {
		return err
	}

	var texts strings.Builder
	for _, m := range memories {
		texts.WriteString(m.Summary)
		texts.WriteString("\n\n")
	}

	resp, err := u.llm.Complete(ctx, llm.FactExtractionPrompt(renderProfile(attrs), texts.String()))
	if err != nil {
		return fmt.Errorf("extract facts: %w", err)
	}
	facts, err := ParseFacts(resp.Content)
	if err != nil {
		return fmt.Errorf("extract facts: %w", err)
	}

	// all facts in this pass share one source: the newest memory of the
	// batch, so re-running a day cannot double-confirm
	sourceID := memories[len(memories)-1].ID

	for _, f := range facts {
		explicit := f.Explicit || ExplicitStatement(f.Key, texts.String())
		decision, err := u.guardian.Apply(userID, f.Key, f.Value, sourceID, explicit)
		if err != nil {
			return err
		}
		u.logger.Printf("user %s: %s=%q -> %s", userID, f.Key, f.Value, decision)
	}
	return nil
}

func renderProfile(attrs []store.ProfileAttribute) string {
	if len(attrs) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for _, a := range attrs {
		fmt.Fprintf(&sb, "%s: %s\n", a.Key, a.Value)
	}
	return sb.String()
}
