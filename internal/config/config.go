package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all engram configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Vector    VectorConfig    `toml:"vector"`
	LLM       LLMConfig       `toml:"llm"`
	Intent    IntentConfig    `toml:"intent"`
	Memory    MemoryConfig    `toml:"memory"`
	Profile   ProfileConfig   `toml:"profile"`
	Summarize SummarizeConfig `toml:"summarize"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type VectorConfig struct {
	Path string `toml:"path"` // empty = in-memory index
}

type LLMConfig struct {
	Provider       string `toml:"provider"` // "anthropic", "ollama"
	Model          string `toml:"model"`
	OllamaURL      string `toml:"ollama_url"`
	OllamaModel    string `toml:"ollama_model"`
	EmbeddingModel string `toml:"embedding_model"`
	AnthropicKey   string `toml:"anthropic_key"`
	TimeoutSecs    int    `toml:"timeout_secs"`
}

// IntentConfig controls the retrieval gate.
//
// MinLength and TriggerThreshold stay strings because host configs have
// historically shipped them as free text; they are parsed defensively with
// ParseIntDefault.
type IntentConfig struct {
	Mode             string   `toml:"mode"` // "disabled", "keyword", "llm"
	MinLength        string   `toml:"min_length"`
	TriggerThreshold string   `toml:"trigger_threshold"`
	WeakTriggers     []string `toml:"weak_triggers"`
	LLMFallback      string   `toml:"llm_fallback"` // "retrieve" or "skip" on unparsable/timeout
}

type MemoryConfig struct {
	DecayRate       float64 `toml:"decay_rate"`
	ReinforceBonus  float64 `toml:"reinforce_bonus"`
	PruneThreshold  float64 `toml:"prune_threshold"`
	EnableDecay     bool    `toml:"enable_decay"`
	EnablePrune     bool    `toml:"enable_prune"`
	LexicalFallback bool    `toml:"lexical_fallback"`
	MaintenanceHour int     `toml:"maintenance_hour"` // local hour for the daily pass
	TopK            int     `toml:"top_k"`
}

type ProfileConfig struct {
	ConfidenceThreshold  int  `toml:"confidence_threshold"`
	EnableConfidence     bool `toml:"enable_confidence"`
	EnableConflicts      bool `toml:"enable_conflict_detection"`
	EnableStrongEvidence bool `toml:"enable_strong_evidence_protection"`
	UpdateMaxConcurrent  int  `toml:"update_max_concurrent"`
	UpdateDelaySecs      int  `toml:"update_delay_secs"`
	MinMemories          int  `toml:"min_memories"`
}

type SummarizeConfig struct {
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`
	MinMessages     int `toml:"min_messages"`
	MaxRetries      int `toml:"max_retries"`
	MaxHistoryDays  int `toml:"max_history_days"` // 0 = unlimited lookback
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-haiku-4-5-20251001",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2",
			TimeoutSecs: 60,
		},
		Intent: IntentConfig{
			Mode:             "keyword",
			MinLength:        "4",
			TriggerThreshold: "2",
			LLMFallback:      "retrieve",
		},
		Memory: MemoryConfig{
			DecayRate:       1,
			ReinforceBonus:  20,
			PruneThreshold:  0,
			EnableDecay:     true,
			EnablePrune:     true,
			LexicalFallback: true,
			MaintenanceHour: 0,
			TopK:            3,
		},
		Profile: ProfileConfig{
			ConfidenceThreshold:  2,
			EnableConfidence:     true,
			EnableConflicts:      true,
			EnableStrongEvidence: true,
			UpdateMaxConcurrent:  3,
			UpdateDelaySecs:      5,
			MinMemories:          3,
		},
		Summarize: SummarizeConfig{
			IdleTimeoutSecs: 1800,
			MinMessages:     3,
			MaxRetries:      3,
		},
	}
}

// Load reads a TOML config file and merges it over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// ParseIntDefault parses a possibly-empty numeric string, falling back to
// def on empty or malformed input. Host configs have shipped these values
// as "", "4" and "4 "; none of them may crash a comparison downstream.
func ParseIntDefault(raw string, def int) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
