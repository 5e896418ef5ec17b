package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const groupColumns = `id, account_id, jid, subject, owner, description, participants_json, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (*Group, error) {
	var (
		g            Group
		participants sql.NullString
	)
	err := row.Scan(&g.ID, &g.AccountID, &g.JID, &g.Subject, &g.Owner, &g.Description, &participants, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if participants.Valid && participants.String != "" {
		if err := json.Unmarshal([]byte(participants.String), &g.Participants); err != nil {
			return nil, fmt.Errorf("decode participants of %q: %w", g.JID, err)
		}
	}
	return &g, nil
}

// UpsertGroup inserts a group or merges it into the stored row. The
// participant list is only replaced when g carries at least one participant.
func (db *DB) UpsertGroup(g *Group) error {
	var participants *string
	if len(g.Participants) > 0 {
		b, err := json.Marshal(g.Participants)
		if err != nil {
			return fmt.Errorf("encode participants of %q: %w", g.JID, err)
		}
		s := string(b)
		participants = &s
	}

	ts := now()
	_, err := db.Exec(`
		INSERT INTO "groups" (account_id, jid, subject, owner, description, participants_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, jid) DO UPDATE SET
			subject = COALESCE(excluded.subject, subject),
			owner = COALESCE(excluded.owner, owner),
			description = COALESCE(excluded.description, description),
			participants_json = COALESCE(excluded.participants_json, participants_json),
			updated_at = excluded.updated_at`,
		g.AccountID, g.JID, g.Subject, g.Owner, g.Description, participants, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert group %q: %w", g.JID, err)
	}
	return nil
}

// GetGroups lists an account's groups ordered by subject.
func (db *DB) GetGroups(accountID string) ([]Group, error) {
	rows, err := db.Query(`SELECT `+groupColumns+` FROM "groups" WHERE account_id = ? ORDER BY subject, jid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// GetGroup returns nil, nil when no group matches.
func (db *DB) GetGroup(accountID, jid string) (*Group, error) {
	g, err := scanGroup(db.QueryRow(`SELECT `+groupColumns+` FROM "groups" WHERE account_id = ? AND jid = ?`, accountID, jid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}
