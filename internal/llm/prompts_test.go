package llm

import (
	"strings"
	"testing"
)

func TestTrimFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"```\nbody\n```", "body"},
		{"```json\n[1,2]\n```", "[1,2]"},
		{"```json\n[1,2]", "[1,2]"}, // unterminated fence
		{"  ```\nbody\n```  ", "body"},
	}
	for _, c := range cases {
		if got := TrimFences(c.in); got != c.want {
			t.Errorf("TrimFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPromptsEmbedInputs(t *testing.T) {
	p := IntentPrompt("do you remember my cat")
	if !strings.Contains(p, "do you remember my cat") {
		t.Error("intent prompt missing query")
	}
	p = SummaryPrompt("user: hello")
	if !strings.Contains(p, "user: hello") {
		t.Error("summary prompt missing chat text")
	}
	p = FactExtractionPrompt("(empty)", "went hiking")
	if !strings.Contains(p, "went hiking") || !strings.Contains(p, "(empty)") {
		t.Error("fact prompt missing sections")
	}
}
