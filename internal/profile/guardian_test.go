package profile

import (
	"testing"

	"engram/internal/config"
	"engram/internal/store"
)

func testGuardian(t *testing.T) (*store.DB, *Guardian) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, NewGuardian(db, config.Default().Profile)
}

func TestPromotionAtExactThreshold(t *testing.T) {
	db, g := testGuardian(t)

	d, err := g.Apply("u1", "preferences.likes", "cats", "mem-1", false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d != Staged {
		t.Fatalf("first sighting = %v, want staged", d)
	}

	// second distinct memory hits the threshold of 2 exactly
	d, err = g.Apply("u1", "preferences.likes", "cats", "mem-2", false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d != Applied {
		t.Fatalf("second sighting = %v, want applied", d)
	}

	a, _ := db.GetAttribute("u1", "preferences.likes:cats")
	if a == nil || a.Value != "cats" {
		t.Fatalf("attribute not promoted: %+v", a)
	}
	if p, _ := db.GetProposal("u1", "preferences.likes", "cats"); p != nil {
		t.Error("promoted proposal not cleaned up")
	}
}

func TestSameSourceCannotConfirmTwice(t *testing.T) {
	db, g := testGuardian(t)

	g.Apply("u1", "preferences.likes", "cats", "mem-1", false)
	d, err := g.Apply("u1", "preferences.likes", "cats", "mem-1", false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d != Staged {
		t.Fatalf("repeat source = %v, want staged", d)
	}

	p, _ := db.GetProposal("u1", "preferences.likes", "cats")
	if p.Confirmations != 1 {
		t.Errorf("confirmations = %d, want 1", p.Confirmations)
	}
}

func TestConflictKeepsAcceptedValue(t *testing.T) {
	db, g := testGuardian(t)

	// promote "likes cats" with two sightings
	g.Apply("u1", "preferences.likes", "cats", "mem-1", false)
	g.Apply("u1", "preferences.likes", "cats", "mem-2", false)

	// a contradictory dislike of the same referent is rejected
	d, err := g.Apply("u1", "preferences.dislikes", "allergic to cats", "mem-3", false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d != RejectedConflict {
		t.Fatalf("conflicting proposal = %v, want rejected_conflict", d)
	}

	// the accepted value is untouched and no proposal was staged
	a, _ := db.GetAttribute("u1", "preferences.likes:cats")
	if a == nil {
		t.Fatal("accepted value lost after conflict")
	}
	if p, _ := db.GetProposal("u1", "preferences.dislikes", "allergic to cats"); p != nil {
		t.Error("conflicting value was staged anyway")
	}

	// an unrelated dislike sails through
	d, _ = g.Apply("u1", "preferences.dislikes", "loud music", "mem-3", false)
	if d != Staged {
		t.Errorf("unrelated dislike = %v, want staged", d)
	}
}

func TestStrongEvidenceGate(t *testing.T) {
	db, g := testGuardian(t)

	d, err := g.Apply("u1", "basic_info.gender", "female", "mem-1", false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d != RejectedInsufficientEvidence {
		t.Fatalf("inferred sensitive fact = %v, want rejected_insufficient_evidence", d)
	}
	if p, _ := db.GetProposal("u1", "basic_info.gender", "female"); p != nil {
		t.Error("rejected fact was staged")
	}

	// explicit statement passes the gate and stages normally
	d, _ = g.Apply("u1", "basic_info.gender", "female", "mem-1", true)
	if d != Staged {
		t.Errorf("explicit sensitive fact = %v, want staged", d)
	}

	// non-sensitive fields never need the gate
	d, _ = g.Apply("u1", "attributes.hobbies", "hiking", "mem-1", false)
	if d != Staged {
		t.Errorf("hobby = %v, want staged", d)
	}
}

func TestIdenticalValueIsConfirmation(t *testing.T) {
	db, g := testGuardian(t)

	g.Apply("u1", "basic_info.location", "Chengdu", "mem-1", true)
	g.Apply("u1", "basic_info.location", "Chengdu", "mem-2", true)

	// accepted now; a third sighting bumps confirmations in place
	d, err := g.Apply("u1", "basic_info.location", "Chengdu", "mem-3", true)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d != Applied {
		t.Fatalf("re-confirmation = %v, want applied", d)
	}

	a, _ := db.GetAttribute("u1", "basic_info.location")
	if a.Confirmations != 3 {
		t.Errorf("confirmations = %d, want 3", a.Confirmations)
	}
}

func TestSingleValuedChangeNeedsFreshEvidence(t *testing.T) {
	db, g := testGuardian(t)

	g.Apply("u1", "basic_info.location", "Chengdu", "mem-1", true)
	g.Apply("u1", "basic_info.location", "Chengdu", "mem-2", true)

	// a move: the new city stages without touching the accepted value
	d, _ := g.Apply("u1", "basic_info.location", "Shanghai", "mem-3", true)
	if d != Staged {
		t.Fatalf("new location = %v, want staged", d)
	}
	a, _ := db.GetAttribute("u1", "basic_info.location")
	if a.Value != "Chengdu" {
		t.Errorf("accepted value flipped early: %q", a.Value)
	}

	// second distinct memory promotes the move
	d, _ = g.Apply("u1", "basic_info.location", "Shanghai", "mem-4", true)
	if d != Applied {
		t.Fatalf("confirmed move = %v, want applied", d)
	}
	a, _ = db.GetAttribute("u1", "basic_info.location")
	if a.Value != "Shanghai" {
		t.Errorf("accepted value = %q, want Shanghai", a.Value)
	}
}

func TestGuardianTogglesOff(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	cfg := config.Default().Profile
	cfg.EnableConfidence = false
	cfg.EnableStrongEvidence = false
	g := NewGuardian(db, cfg)

	// with confidence off, the first sighting applies directly
	d, err := g.Apply("u1", "basic_info.gender", "female", "mem-1", false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d != Applied {
		t.Errorf("decision = %v, want applied with toggles off", d)
	}
}
