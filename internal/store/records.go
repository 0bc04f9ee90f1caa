package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// MemoryRecord is a durable unit of remembered content: a narrative summary
// over a range of raw messages, linked to the user's previous record so the
// records form a singly-linked timeline.
//
// Indexed records are searchable; once pruned a record becomes archival-only
// (indexed = false) and the relational row is retained for export/audit.
type MemoryRecord struct {
	ID          string
	UserID      string
	Summary     string
	RefIDs      []string // raw message ids this summary was derived from
	PrevID      string   // previous record in the user's timeline, "" = head
	SourceType  string
	StartedAt   int64
	EndedAt     int64
	ActiveScore float64
	Indexed     bool
	CreatedAt   int64
}

// CreateRecord inserts a memory record. If PrevID is set it must reference
// an existing record, and the link must not close a cycle; the store cannot
// enforce acyclicity, so it is checked here before writing.
func (db *DB) CreateRecord(rec *MemoryRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	if rec.SourceType == "" {
		rec.SourceType = "private"
	}
	if rec.ActiveScore == 0 {
		rec.ActiveScore = 100
	}

	if rec.PrevID != "" {
		ok, err := db.linkable(rec.ID, rec.PrevID)
		if err != nil {
			return err
		}
		if !ok {
			rec.PrevID = ""
		}
	}

	refs, err := json.Marshal(rec.RefIDs)
	if err != nil {
		return fmt.Errorf("marshal ref ids: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO memory_records (id, user_id, summary, ref_ids, prev_id, source_type,
			started_at, ended_at, active_score, indexed, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, 1, ?)
	`, rec.ID, rec.UserID, rec.Summary, string(refs), rec.PrevID, rec.SourceType,
		rec.StartedAt, rec.EndedAt, rec.ActiveScore, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	rec.Indexed = true
	return nil
}

// linkable reports whether prev exists and linking id -> prev keeps the
// timeline acyclic. Walks the chain from prev; hitting id means a cycle.
func (db *DB) linkable(id, prevID string) (bool, error) {
	seen := make(map[string]bool)
	cur := prevID
	for cur != "" {
		if cur == id || seen[cur] {
			return false, nil
		}
		seen[cur] = true

		var next sql.NullString
		err := db.QueryRow("SELECT prev_id FROM memory_records WHERE id = ?", cur).Scan(&next)
		if err == sql.ErrNoRows {
			// dangling link — refuse, the caller clears PrevID
			return cur != prevID, nil
		}
		if err != nil {
			return false, fmt.Errorf("walk timeline: %w", err)
		}
		cur = next.String
	}
	return true, nil
}

// GetRecord returns a record by id, or nil if not found.
func (db *DB) GetRecord(id string) (*MemoryRecord, error) {
	rec, err := db.queryRecords("WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, nil
	}
	return &rec[0], nil
}

// GetRecordByPrefix returns the record whose id starts with the given short
// prefix, or nil if none (or more than one) matches.
func (db *DB) GetRecordByPrefix(userID, prefix string) (*MemoryRecord, error) {
	recs, err := db.queryRecords("WHERE user_id = ? AND id LIKE ?", userID, prefix+"%")
	if err != nil {
		return nil, err
	}
	if len(recs) != 1 {
		return nil, nil
	}
	return &recs[0], nil
}

// LastRecord returns the user's most recently created record (any lifecycle
// state), used to link a new summary into the timeline.
func (db *DB) LastRecord(userID string) (*MemoryRecord, error) {
	recs, err := db.queryRecords("WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1", userID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// ListIndexed returns the user's searchable records, newest first.
// A limit <= 0 means no limit.
func (db *DB) ListIndexed(userID string, limit int) ([]MemoryRecord, error) {
	if limit > 0 {
		return db.queryRecords("WHERE user_id = ? AND indexed = 1 ORDER BY created_at DESC, rowid DESC LIMIT ?", userID, limit)
	}
	return db.queryRecords("WHERE user_id = ? AND indexed = 1 ORDER BY created_at DESC, rowid DESC", userID)
}

// RecordsInRange returns a user's records created within [from, to),
// oldest first.
func (db *DB) RecordsInRange(userID string, from, to int64) ([]MemoryRecord, error) {
	return db.queryRecords(
		"WHERE user_id = ? AND created_at >= ? AND created_at < ? ORDER BY created_at ASC",
		userID, from, to)
}

// UsersWithRecordsInRange returns the distinct users that gained records
// within [from, to).
func (db *DB) UsersWithRecordsInRange(from, to int64) ([]string, error) {
	rows, err := db.Query(
		"SELECT DISTINCT user_id FROM memory_records WHERE created_at >= ? AND created_at < ?",
		from, to)
	if err != nil {
		return nil, fmt.Errorf("users in range: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// BulkDecay decrements active_score of every indexed record by rate, as a
// single arithmetic UPDATE so concurrent reinforcement is never lost.
func (db *DB) BulkDecay(rate float64) (int64, error) {
	res, err := db.Exec("UPDATE memory_records SET active_score = active_score - ? WHERE indexed = 1", rate)
	if err != nil {
		return 0, fmt.Errorf("bulk decay: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// BulkReinforce increments active_score for the given records. Archival-only
// records are skipped: there is no resurrection path.
func (db *DB) BulkReinforce(ids []string, bonus float64) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{bonus}, toAny(ids)...)
	query := fmt.Sprintf(
		"UPDATE memory_records SET active_score = active_score + ? WHERE indexed = 1 AND id IN (%s)",
		placeholders(len(ids)))
	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("bulk reinforce: %w", err)
	}
	return nil
}

// ColdRecordIDs returns indexed records whose score has fallen to or below
// the prune threshold.
func (db *DB) ColdRecordIDs(threshold float64) ([]string, error) {
	rows, err := db.Query("SELECT id FROM memory_records WHERE indexed = 1 AND active_score <= ?", threshold)
	if err != nil {
		return nil, fmt.Errorf("cold record ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cold id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkArchivalOnly flips records out of the searchable tier. The relational
// row is retained; only the indexed flag changes. One-way: CreateRecord is
// the only writer that sets indexed = 1.
func (db *DB) MarkArchivalOnly(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE memory_records SET indexed = 0 WHERE id IN (%s)", placeholders(len(ids)))
	if _, err := db.Exec(query, toAny(ids)...); err != nil {
		return fmt.Errorf("mark archival-only: %w", err)
	}
	return nil
}

// DeleteRecord removes a record row. Successor timeline links are re-pointed
// at the deleted record's predecessor so the chain never dangles.
func (db *DB) DeleteRecord(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete record: %w", err)
	}
	var prev sql.NullString
	if err := tx.QueryRow("SELECT prev_id FROM memory_records WHERE id = ?", id).Scan(&prev); err != nil {
		tx.Rollback()
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("delete record lookup: %w", err)
	}
	if _, err := tx.Exec("UPDATE memory_records SET prev_id = ? WHERE prev_id = ?", prev, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("relink timeline: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM memory_records WHERE id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete record: %w", err)
	}
	return tx.Commit()
}

// LastMaintenanceRun returns the recorded last-run marker for a named pass,
// or "" if it has never run.
func (db *DB) LastMaintenanceRun(name string) (string, error) {
	var day string
	err := db.QueryRow("SELECT last_run FROM maintenance_runs WHERE name = ?", name).Scan(&day)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last maintenance run: %w", err)
	}
	return day, nil
}

// SetMaintenanceRun records the last-run marker for a named pass.
func (db *DB) SetMaintenanceRun(name, day string) error {
	_, err := db.Exec(`
		INSERT INTO maintenance_runs (name, last_run) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_run = ?
	`, name, day, day)
	if err != nil {
		return fmt.Errorf("set maintenance run: %w", err)
	}
	return nil
}

func (db *DB) queryRecords(where string, args ...any) ([]MemoryRecord, error) {
	rows, err := db.Query(`
		SELECT id, user_id, summary, ref_ids, prev_id, source_type,
			started_at, ended_at, active_score, indexed, created_at
		FROM memory_records `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []MemoryRecord
	for rows.Next() {
		var r MemoryRecord
		var refs string
		var prev sql.NullString
		var indexed int
		if err := rows.Scan(&r.ID, &r.UserID, &r.Summary, &refs, &prev, &r.SourceType,
			&r.StartedAt, &r.EndedAt, &r.ActiveScore, &indexed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.PrevID = prev.String
		r.Indexed = indexed != 0
		if refs != "" {
			if err := json.Unmarshal([]byte(refs), &r.RefIDs); err != nil {
				r.RefIDs = nil
			}
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
