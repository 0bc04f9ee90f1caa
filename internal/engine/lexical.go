package engine

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Mixed-script tokenization is regexp-based rather than per-character
// substitution passes: one scan extracts English word tokens, one extracts
// CJK blocks that are then sliced into 2..4-grams.
var (
	englishWordRE = regexp.MustCompile(`[a-z0-9]+(?:'[a-z0-9]+)?`)
	hanBlockRE    = regexp.MustCompile(`\p{Han}+`)
)

const (
	minGram = 2
	maxGram = 4

	bm25K1    = 1.2
	bm25B     = 0.75
	avgDocLen = 80
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "is": true, "are": true, "i": true, "you": true,
	"he": true, "she": true, "it": true,
	"我": true, "你": true, "他": true, "她": true, "它": true, "这": true,
	"那": true, "了": true, "啊": true, "呀": true, "吗": true, "呢": true,
	"吧": true, "和": true, "与": true, "就": true, "也": true,
}

// short but meaningful tokens exempt from the single-char filter
var protectedTokens = map[string]bool{
	"ai": true, "ml": true, "db": true, "go": true, "c": true, "r": true,
}

// Tokenize splits mixed-script text into English word tokens and CJK
// 2..4-grams, lowercased, with stopwords removed.
func Tokenize(text string) []string {
	var tokens []string
	seen := make(map[string]bool)
	add := func(tok string) {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}

	for _, tok := range englishWordRE.FindAllString(strings.ToLower(text), -1) {
		if len(tok) <= 1 && !protectedTokens[tok] {
			continue
		}
		if stopwords[tok] {
			continue
		}
		add(tok)
	}

	for _, block := range hanBlockRE.FindAllString(text, -1) {
		runes := []rune(block)
		for n := minGram; n <= maxGram; n++ {
			for i := 0; i+n <= len(runes); i++ {
				gram := string(runes[i : i+n])
				if stopwords[gram] {
					continue
				}
				add(gram)
			}
		}
	}

	return tokens
}

// lexDoc is a pre-tokenized document: term frequencies for boundary-aware
// matching plus an approximate length for BM25 normalization.
type lexDoc struct {
	tf     map[string]int
	length int
}

func analyzeDoc(text string) lexDoc {
	tf := make(map[string]int)

	for _, tok := range englishWordRE.FindAllString(strings.ToLower(text), -1) {
		tf[tok]++
	}
	for _, block := range hanBlockRE.FindAllString(text, -1) {
		runes := []rune(block)
		for n := minGram; n <= maxGram; n++ {
			for i := 0; i+n <= len(runes); i++ {
				tf[string(runes[i:i+n])]++
			}
		}
	}

	length := 0
	for _, c := range tf {
		length += c
	}
	if length == 0 {
		length = 1
	}
	return lexDoc{tf: tf, length: length}
}

// lexicalScorer ranks candidate documents against a query with a BM25-style
// score: term-frequency saturation, document-length normalization, and a
// term weight that boosts longer and rarer tokens while flooring short
// tokens at 1.0 so they are never zeroed out.
type lexicalScorer struct {
	docs      []lexDoc
	df        map[string]int
	totalDocs int
}

func newLexicalScorer(texts []string) *lexicalScorer {
	s := &lexicalScorer{
		docs:      make([]lexDoc, len(texts)),
		df:        make(map[string]int),
		totalDocs: len(texts),
	}
	for i, text := range texts {
		s.docs[i] = analyzeDoc(text)
		for term := range s.docs[i].tf {
			s.df[term]++
		}
	}
	return s
}

// Score computes the lexical relevance of document i for the query tokens.
func (s *lexicalScorer) Score(queryTokens []string, i int) float64 {
	if i < 0 || i >= len(s.docs) || len(queryTokens) == 0 {
		return 0
	}
	doc := s.docs[i]

	var score float64
	for _, term := range queryTokens {
		tf := doc.tf[term]
		if tf == 0 {
			continue
		}

		// TF saturation with length normalization
		normTF := (float64(tf) * (bm25K1 + 1)) /
			(float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgDocLen))

		// longer tokens carry more signal; floor at 1.0 so short tokens
		// still count
		weight := float64(utf8.RuneCountInString(term)) / 2.0
		if weight < 1.0 {
			weight = 1.0
		}
		if weight > 3.0 {
			weight = 3.0
		}

		// approximate IDF over the candidate set, capped
		idf := 1.0 + (float64(s.totalDocs)+1.0)/(float64(s.df[term])+1.0)
		if idf > 4.0 {
			idf = 4.0
		}

		score += normTF * weight * idf
	}
	return score
}

// Rank returns document indices with positive scores, best first, ties
// broken by index for determinism.
func (s *lexicalScorer) Rank(queryTokens []string) []int {
	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i := range s.docs {
		if sc := s.Score(queryTokens, i); sc > 0 {
			hits = append(hits, scored{idx: i, score: sc})
		}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].idx < hits[b].idx
	})

	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.idx
	}
	return out
}
