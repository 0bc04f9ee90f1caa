package profile

import (
	"strings"

	"engram/internal/store"
)

// BondLevel describes how well the agent knows a user, derived from
// profile coverage and accumulated chat history.
type BondLevel struct {
	Level int    `json:"level"` // 1..7
	Name  string `json:"name"`
	Depth int    `json:"depth"` // 0..100 profile coverage score
}

var bondNames = []string{
	"Strangers",
	"Acquainted",
	"Familiar",
	"Friendly",
	"Confidant",
	"Close Friend",
	"Kindred Spirits",
}

// field weights and caps for the depth score; knowing three important
// people says more than knowing three hobbies
var depthWeights = map[string]struct {
	weight float64
	cap    int
}{
	"basic_info":   {weight: 2.0, cap: 4},
	"attributes":   {weight: 1.0, cap: 8},
	"preferences":  {weight: 0.5, cap: 8},
	"social_graph": {weight: 2.0, cap: 3},
	"dev_metadata": {weight: 0.5, cap: 4},
}

// Depth scores profile coverage 0..100 from the accepted attributes.
func Depth(attrs []store.ProfileAttribute) int {
	counts := make(map[string]int)
	for _, a := range attrs {
		group := a.Key
		if i := strings.IndexByte(group, '.'); i >= 0 {
			group = group[:i]
		}
		counts[group]++
	}

	var score, max float64
	for group, w := range depthWeights {
		n := counts[group]
		if n > w.cap {
			n = w.cap
		}
		score += float64(n) * w.weight
		max += float64(w.cap) * w.weight
	}
	if max == 0 {
		return 0
	}
	pct := int(score / max * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Bond maps profile depth and memory count to one of seven levels.
func Bond(attrs []store.ProfileAttribute, memoryCount int) BondLevel {
	depth := Depth(attrs)

	// memories carry the early levels, depth the later ones
	score := depth
	switch {
	case memoryCount >= 60:
		score += 30
	case memoryCount >= 30:
		score += 20
	case memoryCount >= 10:
		score += 10
	case memoryCount >= 3:
		score += 5
	}

	level := 1
	for _, threshold := range []int{10, 25, 45, 65, 85, 105} {
		if score >= threshold {
			level++
		}
	}
	if level > len(bondNames) {
		level = len(bondNames)
	}
	return BondLevel{Level: level, Name: bondNames[level-1], Depth: depth}
}
