package engine

import (
	"testing"
)

func contains(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func TestTokenizeEnglish(t *testing.T) {
	tokens := Tokenize("I really love Watermelon, don't you?")
	for _, want := range []string{"really", "love", "watermelon", "don't"} {
		if !contains(tokens, want) {
			t.Errorf("missing token %q in %v", want, tokens)
		}
	}
	if contains(tokens, "i") || contains(tokens, "you") {
		t.Errorf("stopwords not removed: %v", tokens)
	}
}

func TestTokenizeChineseGrams(t *testing.T) {
	tokens := Tokenize("今天吃西瓜")
	for _, want := range []string{"西瓜", "吃西瓜", "今天"} {
		if !contains(tokens, want) {
			t.Errorf("missing gram %q in %v", want, tokens)
		}
	}
}

func TestTokenizeMixedScript(t *testing.T) {
	tokens := Tokenize("我在学Go语言")
	if !contains(tokens, "go") {
		t.Errorf("missing protected short token go: %v", tokens)
	}
	if !contains(tokens, "语言") {
		t.Errorf("missing gram 语言: %v", tokens)
	}
}

func TestLexicalRankPrefersMatch(t *testing.T) {
	docs := []string{
		"went hiking in the mountains",
		"ate watermelon at the beach, loved the watermelon",
		"watched a movie about space",
	}
	scorer := newLexicalScorer(docs)
	ranked := scorer.Rank(Tokenize("watermelon"))

	if len(ranked) != 1 || ranked[0] != 1 {
		t.Fatalf("rank = %v, want [1]", ranked)
	}
}

func TestLexicalRankChineseSubstring(t *testing.T) {
	docs := []string{
		"今天和朋友去爬山了",
		"今天吃了西瓜，很甜",
	}
	scorer := newLexicalScorer(docs)
	ranked := scorer.Rank(Tokenize("我想吃西瓜"))

	if len(ranked) == 0 || ranked[0] != 1 {
		t.Fatalf("rank = %v, want doc 1 first", ranked)
	}
}

func TestLexicalScoreZeroForNoOverlap(t *testing.T) {
	scorer := newLexicalScorer([]string{"completely unrelated text"})
	if s := scorer.Score(Tokenize("西瓜"), 0); s != 0 {
		t.Errorf("score = %f, want 0", s)
	}
}

func TestLexicalTFSaturation(t *testing.T) {
	scorer := newLexicalScorer([]string{
		"watermelon",
		"watermelon watermelon watermelon watermelon watermelon watermelon watermelon watermelon",
	})
	q := Tokenize("watermelon")
	s1 := scorer.Score(q, 0)
	s2 := scorer.Score(q, 1)
	if s2 <= s1 {
		t.Fatalf("repeated term should score higher: %f vs %f", s1, s2)
	}
	if s2 > s1*3 {
		t.Errorf("term frequency not saturating: %f vs %f", s1, s2)
	}
}
