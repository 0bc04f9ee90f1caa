// Package profile guards writes to the structured user profile: sensitive
// fields require explicit first-person evidence, contradictory values are
// rejected in favor of the accepted one, and new values accumulate
// confidence across distinct source memories before promotion.
package profile

import (
	"fmt"
	"strings"
	"time"

	"engram/internal/config"
	"engram/internal/store"
)

// Decision is the guardian's verdict on one proposed profile fact.
type Decision int

const (
	// Applied means the value is now (or was already) the accepted value.
	Applied Decision = iota
	// Staged means the value is recorded as a proposal awaiting more
	// distinct supporting memories.
	Staged
	// RejectedConflict means the value contradicts the accepted value or
	// an established proposal; the existing data wins.
	RejectedConflict
	// RejectedInsufficientEvidence means a sensitive field was proposed
	// without an explicit first-person statement.
	RejectedInsufficientEvidence
)

func (d Decision) String() string {
	switch d {
	case Applied:
		return "applied"
	case Staged:
		return "staged"
	case RejectedConflict:
		return "rejected_conflict"
	case RejectedInsufficientEvidence:
		return "rejected_insufficient_evidence"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Fields that may only be written from an explicit first-person statement.
var sensitiveFields = map[string]bool{
	"basic_info.gender":     true,
	"basic_info.age":        true,
	"basic_info.location":   true,
	"basic_info.occupation": true,
}

// Fields that hold a set of values rather than a single one. Accepted
// values for these are stored under "field:value" keys.
var multiValuedFields = map[string]bool{
	"attributes.hobbies":            true,
	"attributes.skills":             true,
	"attributes.personality_tags":   true,
	"preferences.likes":             true,
	"preferences.dislikes":          true,
	"social_graph.important_people": true,
	"dev_metadata.tech_stack":       true,
}

// Fields whose values are mutually opposed; a new value in one conflicts
// with an accepted value in the other when both name the same referent.
var opposedFields = map[string]string{
	"preferences.likes":    "preferences.dislikes",
	"preferences.dislikes": "preferences.likes",
}

// Guardian validates and stages profile writes.
type Guardian struct {
	db  *store.DB
	cfg config.ProfileConfig
	now func() time.Time
}

// NewGuardian creates a guardian over the given store.
func NewGuardian(db *store.DB, cfg config.ProfileConfig) *Guardian {
	return &Guardian{db: db, cfg: cfg, now: time.Now}
}

// Apply runs one proposed fact through the guardian pipeline and returns
// the verdict. sourceID identifies the memory the fact was extracted
// from; re-submitting the same fact from the same memory never inflates
// confidence.
func (g *Guardian) Apply(userID, field, value, sourceID string, explicit bool) (Decision, error) {
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return RejectedInsufficientEvidence, nil
	}

	if g.cfg.EnableStrongEvidence && sensitiveFields[field] && !explicit {
		return RejectedInsufficientEvidence, nil
	}

	if g.cfg.EnableConflicts {
		conflict, err := g.conflicts(userID, field, value)
		if err != nil {
			return RejectedConflict, err
		}
		if conflict {
			return RejectedConflict, nil
		}
	}

	// an already-accepted identical value is a confirmation, not a change
	confirmed, err := g.confirmExisting(userID, field, value)
	if err != nil {
		return Staged, err
	}
	if confirmed {
		return Applied, nil
	}

	if !g.cfg.EnableConfidence || g.cfg.ConfidenceThreshold <= 1 {
		return Applied, g.promote(userID, field, value, 1)
	}
	return g.stage(userID, field, value, sourceID)
}

// attrKey maps a (field, value) pair to its storage key: multi-valued
// fields keep one attribute row per value.
func attrKey(field, value string) string {
	if multiValuedFields[field] {
		return field + ":" + value
	}
	return field
}

// conflicts reports whether the value contradicts accepted attributes or
// established proposals. The accepted value always wins; the newcomer is
// rejected and must out-confirm it through fresh explicit evidence.
func (g *Guardian) conflicts(userID, field, value string) (bool, error) {
	attrs, err := g.db.ListAttributes(userID)
	if err != nil {
		return false, err
	}
	opposed := opposedFields[field]
	for _, a := range attrs {
		aField := a.Key
		if i := strings.IndexByte(a.Key, ':'); i >= 0 {
			aField = a.Key[:i]
		}
		switch {
		case aField == field:
			if a.Value != value && Contradicts(a.Value, value) {
				return true, nil
			}
			// single-valued field: a different non-contradictory value is
			// a change, handled by staging, not a conflict
		case opposed != "" && aField == opposed:
			if SharesReferent(a.Value, value) || Contradicts(a.Value, value) {
				return true, nil
			}
		}
	}

	// a proposal that is already ahead in confirmations also blocks
	props, err := g.db.ProposalsForKey(userID, field)
	if err != nil {
		return false, err
	}
	for _, p := range props {
		if p.Value != value && Contradicts(p.Value, value) && p.Confirmations > 1 {
			return true, nil
		}
	}
	return false, nil
}

func (g *Guardian) confirmExisting(userID, field, value string) (bool, error) {
	a, err := g.db.GetAttribute(userID, attrKey(field, value))
	if err != nil {
		return false, err
	}
	if a == nil || a.Value != value {
		return false, nil
	}
	a.Confirmations++
	a.LastConfirmed = g.now().UnixMilli()
	return true, g.db.SetAttribute(a)
}

func (g *Guardian) stage(userID, field, value, sourceID string) (Decision, error) {
	now := g.now().UnixMilli()
	p, err := g.db.GetProposal(userID, field, value)
	if err != nil {
		return Staged, err
	}
	if p == nil {
		p = &store.ProfileProposal{
			UserID:        userID,
			Key:           field,
			Value:         value,
			Confirmations: 1,
			FirstSeen:     now,
			LastSeen:      now,
			SourceIDs:     []string{sourceID},
		}
	} else {
		for _, id := range p.SourceIDs {
			if id == sourceID {
				return Staged, nil // same memory cannot confirm twice
			}
		}
		p.Confirmations++
		p.LastSeen = now
		p.SourceIDs = append(p.SourceIDs, sourceID)
	}

	if p.Confirmations >= g.cfg.ConfidenceThreshold {
		if err := g.promote(userID, field, value, p.Confirmations); err != nil {
			return Staged, err
		}
		if err := g.db.DeleteProposal(userID, field, value); err != nil {
			return Applied, err
		}
		return Applied, nil
	}
	return Staged, g.db.UpsertProposal(p)
}

func (g *Guardian) promote(userID, field, value string, confirmations int) error {
	return g.db.SetAttribute(&store.ProfileAttribute{
		UserID:        userID,
		Key:           attrKey(field, value),
		Value:         value,
		Confirmations: confirmations,
		LastConfirmed: g.now().UnixMilli(),
	})
}
