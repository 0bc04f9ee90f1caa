package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ProfileAttribute is one accepted field of a user's structured profile,
// e.g. "basic_info.location" or "preferences.likes:coffee".
type ProfileAttribute struct {
	UserID        string
	Key           string
	Value         string
	Confirmations int
	LastConfirmed int64
}

// ProfileProposal is a candidate value awaiting enough distinct supporting
// memories before it may replace (or become) the accepted value.
type ProfileProposal struct {
	UserID        string
	Key           string
	Value         string
	Confirmations int
	FirstSeen     int64
	LastSeen      int64
	SourceIDs     []string // distinct memory ids that confirmed this value
}

// GetAttribute returns the accepted value for a key, or nil.
func (db *DB) GetAttribute(userID, key string) (*ProfileAttribute, error) {
	var a ProfileAttribute
	err := db.QueryRow(`
		SELECT user_id, attr_key, value, confirmations, last_confirmed
		FROM profile_attributes WHERE user_id = ? AND attr_key = ?
	`, userID, key).Scan(&a.UserID, &a.Key, &a.Value, &a.Confirmations, &a.LastConfirmed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attribute: %w", err)
	}
	return &a, nil
}

// SetAttribute upserts the accepted value for a key.
func (db *DB) SetAttribute(a *ProfileAttribute) error {
	if a.LastConfirmed == 0 {
		a.LastConfirmed = time.Now().UnixMilli()
	}
	if a.Confirmations == 0 {
		a.Confirmations = 1
	}
	_, err := db.Exec(`
		INSERT INTO profile_attributes (user_id, attr_key, value, confirmations, last_confirmed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, attr_key) DO UPDATE SET
			value = excluded.value,
			confirmations = excluded.confirmations,
			last_confirmed = excluded.last_confirmed
	`, a.UserID, a.Key, a.Value, a.Confirmations, a.LastConfirmed)
	if err != nil {
		return fmt.Errorf("set attribute: %w", err)
	}
	return nil
}

// ListAttributes returns all accepted attributes for a user.
func (db *DB) ListAttributes(userID string) ([]ProfileAttribute, error) {
	rows, err := db.Query(`
		SELECT user_id, attr_key, value, confirmations, last_confirmed
		FROM profile_attributes WHERE user_id = ? ORDER BY attr_key
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	defer rows.Close()

	var attrs []ProfileAttribute
	for rows.Next() {
		var a ProfileAttribute
		if err := rows.Scan(&a.UserID, &a.Key, &a.Value, &a.Confirmations, &a.LastConfirmed); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}

// GetProposal returns the staged proposal for (key, value), or nil.
func (db *DB) GetProposal(userID, key, value string) (*ProfileProposal, error) {
	props, err := db.queryProposals("WHERE user_id = ? AND attr_key = ? AND value = ?", userID, key, value)
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, nil
	}
	return &props[0], nil
}

// ProposalsForKey returns every outstanding proposal for an attribute key.
func (db *DB) ProposalsForKey(userID, key string) ([]ProfileProposal, error) {
	return db.queryProposals("WHERE user_id = ? AND attr_key = ?", userID, key)
}

// ListProposals returns all outstanding proposals for a user.
func (db *DB) ListProposals(userID string) ([]ProfileProposal, error) {
	return db.queryProposals("WHERE user_id = ? ORDER BY attr_key, value", userID)
}

// UpsertProposal stores or replaces a proposal row.
func (db *DB) UpsertProposal(p *ProfileProposal) error {
	sources, err := json.Marshal(p.SourceIDs)
	if err != nil {
		return fmt.Errorf("marshal source ids: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO profile_proposals (user_id, attr_key, value, confirmations, first_seen, last_seen, source_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, attr_key, value) DO UPDATE SET
			confirmations = excluded.confirmations,
			last_seen = excluded.last_seen,
			source_ids = excluded.source_ids
	`, p.UserID, p.Key, p.Value, p.Confirmations, p.FirstSeen, p.LastSeen, string(sources))
	if err != nil {
		return fmt.Errorf("upsert proposal: %w", err)
	}
	return nil
}

// DeleteProposal removes a single staged proposal.
func (db *DB) DeleteProposal(userID, key, value string) error {
	_, err := db.Exec(
		"DELETE FROM profile_proposals WHERE user_id = ? AND attr_key = ? AND value = ?",
		userID, key, value)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	return nil
}

// ClearUserProfile removes all accepted attributes and staged proposals.
func (db *DB) ClearUserProfile(userID string) error {
	if _, err := db.Exec("DELETE FROM profile_attributes WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clear attributes: %w", err)
	}
	if _, err := db.Exec("DELETE FROM profile_proposals WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clear proposals: %w", err)
	}
	return nil
}

func (db *DB) queryProposals(where string, args ...any) ([]ProfileProposal, error) {
	rows, err := db.Query(`
		SELECT user_id, attr_key, value, confirmations, first_seen, last_seen, source_ids
		FROM profile_proposals `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query proposals: %w", err)
	}
	defer rows.Close()

	var props []ProfileProposal
	for rows.Next() {
		var p ProfileProposal
		var sources string
		if err := rows.Scan(&p.UserID, &p.Key, &p.Value, &p.Confirmations,
			&p.FirstSeen, &p.LastSeen, &sources); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		if sources != "" {
			if err := json.Unmarshal([]byte(sources), &p.SourceIDs); err != nil {
				p.SourceIDs = nil
			}
		}
		props = append(props, p)
	}
	return props, rows.Err()
}
