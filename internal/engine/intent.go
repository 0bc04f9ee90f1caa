package engine

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"

	"engram/internal/config"
	"engram/internal/llm"
)

// YesNo is the tolerant parse result of an LLM intent answer.
type YesNo int

const (
	Unparsable YesNo = iota
	Yes
	No
)

var affirmativeWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "true": true,
	"need": true, "needed": true,
	"是": true, "需要": true, "要": true, "对": true,
}

var negativeWords = map[string]bool{
	"no": true, "n": true, "nope": true, "false": true,
	"否": true, "不": true, "不要": true, "不需要": true, "不用": true,
}

// ParseYesNo interprets an LLM yes/no answer, tolerating punctuation,
// casing, filler and Chinese responses. Anything it cannot classify is
// Unparsable so the caller can apply its configured fallback.
func ParseYesNo(content string) YesNo {
	cleaned := strings.ToLower(strings.TrimSpace(content))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, cleaned)

	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return Unparsable
	}

	// negation dominates: "no need" must not parse as Yes
	for _, f := range fields {
		if negativeWords[f] || strings.HasPrefix(f, "不") {
			return No
		}
	}
	for _, f := range fields {
		if affirmativeWords[f] {
			return Yes
		}
	}
	return Unparsable
}

// Gate decides whether a message should trigger memory retrieval. Three
// modes: "disabled" always retrieves, "keyword" scores trigger phrases,
// "llm" asks a model and falls back per configuration.
type Gate struct {
	mode        string
	minLength   int
	threshold   int
	weak        []string
	llm         llm.Client
	llmFallback bool // true = retrieve when the LLM fails or is unparsable
	logger      *log.Logger
}

// Phrases whose presence almost certainly means the user wants recall.
var strongTriggers = []string{
	"remember", "last time", "you said", "told you", "we talked",
	"记得", "还记得", "上次", "之前说", "以前说", "说过", "提到过", "聊过",
}

var defaultWeakTriggers = []string{
	"before", "earlier", "previously", "again", "past",
	"之前", "以前", "当时", "那时", "后来", "曾经",
}

// First-person recall patterns ("what did I say I liked").
var selfRecallPatterns = []*regexp.Regexp{
	regexp.MustCompile(`我.{0,6}(喜欢|讨厌|说过|提过|做过|去过)`),
	regexp.MustCompile(`(?i)\b(what|who|where|when) (did|do|was|am) i\b`),
	regexp.MustCompile(`(?i)\bdo you know (what|who|where) i\b`),
}

// strips whitespace, punctuation and symbols before measuring length, so
// "？？？！" never counts as a four-character message
var compactRE = regexp.MustCompile(`[\s\p{P}\p{S}]+`)

// NewGate builds an intent gate from config. The LLM client may be nil,
// in which case "llm" mode degrades to keyword scoring.
func NewGate(cfg config.IntentConfig, client llm.Client, logger *log.Logger) *Gate {
	weak := cfg.WeakTriggers
	if len(weak) == 0 {
		weak = defaultWeakTriggers
	}
	return &Gate{
		mode:        cfg.Mode,
		minLength:   config.ParseIntDefault(cfg.MinLength, 4),
		threshold:   config.ParseIntDefault(cfg.TriggerThreshold, 2),
		weak:        weak,
		llm:         client,
		llmFallback: cfg.LLMFallback != "skip",
		logger:      logger,
	}
}

// ShouldRetrieve reports whether the message warrants a memory lookup.
func (g *Gate) ShouldRetrieve(ctx context.Context, message string) bool {
	if g.mode == "disabled" || g.mode == "" {
		return true
	}

	compact := compactRE.ReplaceAllString(message, "")
	if len([]rune(compact)) < g.minLength {
		return false
	}

	switch g.mode {
	case "llm":
		return g.askLLM(ctx, message)
	default:
		return g.keywordScore(message) >= g.threshold
	}
}

func (g *Gate) keywordScore(message string) int {
	lower := strings.ToLower(message)
	score := 0
	for _, t := range strongTriggers {
		if strings.Contains(lower, t) {
			score += 2
			break
		}
	}
	for _, t := range g.weak {
		if strings.Contains(lower, strings.ToLower(t)) {
			score++
			break
		}
	}
	for _, p := range selfRecallPatterns {
		if p.MatchString(message) {
			score++
			break
		}
	}
	return score
}

func (g *Gate) askLLM(ctx context.Context, message string) bool {
	if g.llm == nil {
		return g.keywordScore(message) >= g.threshold
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := g.llm.Complete(ctx, llm.IntentPrompt(message))
	if err != nil {
		g.logf("intent llm error, using fallback: %v", err)
		return g.llmFallback
	}

	switch ParseYesNo(resp.Content) {
	case Yes:
		return true
	case No:
		return false
	default:
		g.logf("intent answer unparsable (%q), using fallback", resp.Content)
		return g.llmFallback
	}
}

func (g *Gate) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}
