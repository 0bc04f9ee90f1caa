package store

import (
	"testing"
)

func mkMessage(t *testing.T, db *DB, id, userID, role, content string, createdAt int64) {
	t.Helper()
	err := db.SaveMessage(&RawMessage{
		ID:        id,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("SaveMessage %s: %v", id, err)
	}
}

func TestUnarchivedMessages(t *testing.T) {
	db := testDB(t)

	mkMessage(t, db, "m1", "u1", "user", "hello", 100)
	mkMessage(t, db, "m2", "u1", "assistant", "hi", 200)
	mkMessage(t, db, "m3", "u2", "user", "other user", 300)

	msgs, err := db.UnarchivedMessages("u1")
	if err != nil {
		t.Fatalf("UnarchivedMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = %s,%s, want m1,m2", msgs[0].ID, msgs[1].ID)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	db := testDB(t)

	mkMessage(t, db, "m1", "u1", "user", "hello", 100)
	if err := db.MarkArchived([]string{"m1"}); err != nil {
		t.Fatalf("MarkArchived: %v", err)
	}

	msgs, _ := db.UnarchivedMessages("u1")
	if len(msgs) != 0 {
		t.Errorf("archived message still unarchived")
	}

	archived, err := db.ArchivedMessages("u1", 0, 0, 0)
	if err != nil {
		t.Fatalf("ArchivedMessages: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("got %d archived, want 1", len(archived))
	}

	if err := db.MarkUnarchived([]string{"m1"}); err != nil {
		t.Fatalf("MarkUnarchived: %v", err)
	}
	msgs, _ = db.UnarchivedMessages("u1")
	if len(msgs) != 1 {
		t.Errorf("unarchive did not restore message")
	}
}

func TestArchivedMessagesRange(t *testing.T) {
	db := testDB(t)

	mkMessage(t, db, "m1", "u1", "user", "early", 100)
	mkMessage(t, db, "m2", "u1", "user", "mid", 200)
	mkMessage(t, db, "m3", "u1", "user", "late", 300)
	db.MarkArchived([]string{"m1", "m2", "m3"})

	msgs, err := db.ArchivedMessages("u1", 150, 300, 0)
	if err != nil {
		t.Fatalf("ArchivedMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m2" {
		t.Errorf("range query = %v, want only m2", msgs)
	}
}

func TestInvalidRoleRejected(t *testing.T) {
	db := testDB(t)

	err := db.SaveMessage(&RawMessage{ID: "m1", UserID: "u1", Role: "system", Content: "x"})
	if err == nil {
		t.Error("expected CHECK constraint failure for role=system")
	}
}
