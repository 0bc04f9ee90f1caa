// Package export renders a user's conversation history in formats for
// backup and fine-tuning datasets.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"engram/internal/store"
)

// Formats lists the supported export formats.
var Formats = []string{"jsonl", "json", "txt", "alpaca", "sharegpt"}

type exportedMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type alpacaSample struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

type shareGPTTurn struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

type shareGPTSample struct {
	Conversations []shareGPTTurn `json:"conversations"`
}

// Messages renders the given messages in the named format.
func Messages(msgs []store.RawMessage, format string) ([]byte, error) {
	switch format {
	case "jsonl":
		return renderJSONL(msgs)
	case "json":
		return json.MarshalIndent(toExported(msgs), "", "  ")
	case "txt":
		return renderText(msgs), nil
	case "alpaca":
		return json.MarshalIndent(toAlpaca(msgs), "", "  ")
	case "sharegpt":
		return json.MarshalIndent(toShareGPT(msgs), "", "  ")
	default:
		return nil, fmt.Errorf("unknown export format %q (supported: %s)",
			format, strings.Join(Formats, ", "))
	}
}

func toExported(msgs []store.RawMessage) []exportedMessage {
	out := make([]exportedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = exportedMessage{
			ID:        m.ID,
			SessionID: m.SessionID,
			UserName:  m.UserName,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: time.UnixMilli(m.CreatedAt).Format(time.RFC3339),
		}
	}
	return out
}

func renderJSONL(msgs []store.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range toExported(msgs) {
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func renderText(msgs []store.RawMessage) []byte {
	var sb strings.Builder
	lastDay := ""
	for _, m := range msgs {
		t := time.UnixMilli(m.CreatedAt)
		if day := t.Format("2006-01-02"); day != lastDay {
			fmt.Fprintf(&sb, "=== %s ===\n", day)
			lastDay = day
		}
		name := m.UserName
		if name == "" {
			name = m.Role
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", t.Format("15:04:05"), name, m.Content)
	}
	return []byte(sb.String())
}

// toAlpaca pairs each user message with the assistant reply that follows
// it. Unpaired messages are dropped; a training sample needs both sides.
func toAlpaca(msgs []store.RawMessage) []alpacaSample {
	samples := []alpacaSample{}
	for i := 0; i+1 < len(msgs); i++ {
		if msgs[i].Role == "user" && msgs[i+1].Role == "assistant" {
			samples = append(samples, alpacaSample{
				Instruction: msgs[i].Content,
				Output:      msgs[i+1].Content,
			})
			i++
		}
	}
	return samples
}

// toShareGPT groups messages into one conversation per session, falling
// back to one per day when session ids are absent.
func toShareGPT(msgs []store.RawMessage) []shareGPTSample {
	samples := []shareGPTSample{}
	var cur shareGPTSample
	curKey := ""
	flush := func() {
		if len(cur.Conversations) > 0 {
			samples = append(samples, cur)
		}
		cur = shareGPTSample{}
	}

	for _, m := range msgs {
		key := m.SessionID
		if key == "" {
			key = time.UnixMilli(m.CreatedAt).Format("2006-01-02")
		}
		if key != curKey {
			flush()
			curKey = key
		}
		from := "human"
		if m.Role == "assistant" {
			from = "gpt"
		}
		cur.Conversations = append(cur.Conversations, shareGPTTurn{From: from, Value: m.Content})
	}
	flush()
	return samples
}
