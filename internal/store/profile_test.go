package store

import (
	"testing"
)

func TestAttributeUpsert(t *testing.T) {
	db := testDB(t)

	a := &ProfileAttribute{UserID: "u1", Key: "basic_info.location", Value: "Berlin"}
	if err := db.SetAttribute(a); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}

	a.Value = "Hamburg"
	a.Confirmations = 3
	if err := db.SetAttribute(a); err != nil {
		t.Fatalf("SetAttribute update: %v", err)
	}

	got, err := db.GetAttribute("u1", "basic_info.location")
	if err != nil {
		t.Fatalf("GetAttribute: %v", err)
	}
	if got.Value != "Hamburg" || got.Confirmations != 3 {
		t.Errorf("attribute = %+v", got)
	}
}

func TestProposalSourceIDs(t *testing.T) {
	db := testDB(t)

	p := &ProfileProposal{
		UserID:        "u1",
		Key:           "preferences.likes",
		Value:         "coffee",
		Confirmations: 1,
		FirstSeen:     100,
		LastSeen:      100,
		SourceIDs:     []string{"mem-a"},
	}
	if err := db.UpsertProposal(p); err != nil {
		t.Fatalf("UpsertProposal: %v", err)
	}

	p.Confirmations = 2
	p.SourceIDs = append(p.SourceIDs, "mem-b")
	if err := db.UpsertProposal(p); err != nil {
		t.Fatalf("UpsertProposal update: %v", err)
	}

	got, err := db.GetProposal("u1", "preferences.likes", "coffee")
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if got.Confirmations != 2 || len(got.SourceIDs) != 2 {
		t.Errorf("proposal = %+v", got)
	}
}

func TestClearUserProfile(t *testing.T) {
	db := testDB(t)

	db.SetAttribute(&ProfileAttribute{UserID: "u1", Key: "k", Value: "v"})
	db.UpsertProposal(&ProfileProposal{UserID: "u1", Key: "k", Value: "w", Confirmations: 1})

	if err := db.ClearUserProfile("u1"); err != nil {
		t.Fatalf("ClearUserProfile: %v", err)
	}
	attrs, _ := db.ListAttributes("u1")
	props, _ := db.ListProposals("u1")
	if len(attrs) != 0 || len(props) != 0 {
		t.Errorf("profile not cleared: %d attrs, %d proposals", len(attrs), len(props))
	}
}
