package profile

import (
	"regexp"
	"strings"
)

// Paired contradictory concepts. Two values conflict when one side of a
// pair appears in each and both mention the same referent, so "likes
// cats" and "allergic to cats" conflict while "likes cats" and "allergic
// to pollen" do not.
var conflictPairs = []struct {
	pos []string
	neg []string
}{
	{
		pos: []string{"喜欢", "喜愛", "爱", "最爱", "超爱", "like", "likes", "love", "loves", "favorite", "enjoy", "enjoys"},
		neg: []string{"讨厌", "不喜欢", "恨", "反感", "厌恶", "过敏", "dislike", "dislikes", "hate", "hates", "allergic", "allergy"},
	},
	{
		pos: []string{"外向", "活泼", "开朗", "健谈", "extrovert", "extroverted", "outgoing", "sociable"},
		neg: []string{"内向", "安静", "害羞", "寡言", "introvert", "introverted", "shy", "reserved"},
	},
	{
		pos: []string{"严谨", "认真", "细心", "meticulous", "careful", "thorough"},
		neg: []string{"粗心", "随意", "马虎", "careless", "sloppy"},
	},
	{
		pos: []string{"吃肉", "肉食", "无肉不欢", "meat"},
		neg: []string{"素食", "吃素", "vegetarian", "vegan"},
	},
}

var referentWordRE = regexp.MustCompile(`[a-z0-9]+`)
var referentHanRE = regexp.MustCompile(`\p{Han}`)

// sentimentTerms is every pair term, used to strip sentiment words before
// comparing referents.
var sentimentTerms = func() map[string]bool {
	m := make(map[string]bool)
	for _, pair := range conflictPairs {
		for _, t := range pair.pos {
			m[t] = true
		}
		for _, t := range pair.neg {
			m[t] = true
		}
	}
	return m
}()

// Contradicts reports whether two free-text values take opposite sides of
// a conflict pair about the same referent.
func Contradicts(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range conflictPairs {
		aPos, aNeg := containsAny(la, pair.pos), containsAny(la, pair.neg)
		bPos, bNeg := containsAny(lb, pair.pos), containsAny(lb, pair.neg)
		if !(aPos && bNeg) && !(aNeg && bPos) {
			continue
		}
		// pure sentiment values ("外向" vs "内向") have no referent to
		// compare; they conflict outright
		ra, rb := referents(la), referents(lb)
		if len(ra) == 0 || len(rb) == 0 {
			return true
		}
		if overlap(ra, rb) {
			return true
		}
	}
	return false
}

// SharesReferent reports whether two values mention a common concrete
// token, ignoring sentiment words. Used for cross-field checks such as a
// like and a dislike of the same thing.
func SharesReferent(a, b string) bool {
	return overlap(referents(strings.ToLower(a)), referents(strings.ToLower(b)))
}

// referents extracts the concrete tokens of a value: English words and
// individual Han characters, minus sentiment vocabulary.
func referents(s string) map[string]bool {
	for term := range sentimentTerms {
		s = strings.ReplaceAll(s, term, " ")
	}
	out := make(map[string]bool)
	for _, w := range referentWordRE.FindAllString(s, -1) {
		if len(w) > 1 {
			out[w] = true
		}
	}
	for _, h := range referentHanRE.FindAllString(s, -1) {
		out[h] = true
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func overlap(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
