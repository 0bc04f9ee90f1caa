package llm

import (
	"fmt"
	"strings"
)

// IntentPrompt asks a small model whether a message needs long-term memory.
// The answer is parsed tolerantly; see engine.ParseYesNo.
func IntentPrompt(query string) string {
	return fmt.Sprintf(`Decide whether answering the following user message requires recalling long-term memory (past conversations, the user's stated preferences, past events).

Only recall is needed when the user asks about the past, references an earlier conversation, or the question cannot be answered correctly without the user's history. Greetings, small talk and immediate questions (weather, time) do not need it.

User message: %s

Answer with exactly one word: yes or no.`, query)
}

// SummaryPrompt asks for a first-person narrative diary entry over one day
// of conversation. Details the user volunteered (likes, dislikes, names)
// must be preserved verbatim in the summary.
func SummaryPrompt(chatText string) string {
	return fmt.Sprintf(`Write a first-person diary entry summarizing the conversation below.

- Voice: first person ("I"), warm and conversational.
- Record what happened and the mood of the exchange.
- Keep concrete details: if the user said what they like, dislike, or who they mentioned, write it down explicitly. Do not omit specifics.
- Plain text only, no markdown.

Conversation:
%s`, chatText)
}

// FactExtractionPrompt asks for structured profile facts from a day's
// memory summaries. The response must be a JSON array of objects with
// "key", "value" and "explicit" fields; see engine.ParseFacts.
func FactExtractionPrompt(currentProfile, memoryTexts string) string {
	return fmt.Sprintf(`You are a meticulous archivist maintaining a user profile. Extract profile facts from today's new memories.

Current profile:
%s

Today's memories:
%s

Rules:
1. Strictly objective: extract only facts the memories state. No psychoanalysis, no invented details.
2. Mark "explicit": true only when the user stated the fact about themselves in the first person ("I am...", "I live in..."), not when it is inferred.
3. Keys use dotted paths: basic_info.gender, basic_info.age, basic_info.location, basic_info.occupation, attributes.hobbies, attributes.skills, attributes.personality_tags, preferences.likes, preferences.dislikes, social_graph.important_people, dev_metadata.tech_stack.

Return ONLY a JSON array, no markdown fences, no commentary:
[{"key": "preferences.likes", "value": "watermelon", "explicit": true}]`,
		currentProfile, memoryTexts)
}

// TrimFences strips markdown code fences from an LLM response, tolerating
// a language tag on the opening fence.
func TrimFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
