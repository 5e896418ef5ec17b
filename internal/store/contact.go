package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const contactColumns = `id, account_id, jid, lid, phone_number, name, notify_name,
	verified_name, img_url, status, is_local, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.AccountID, &c.JID, &c.LID, &c.PhoneNumber, &c.Name, &c.NotifyName,
		&c.VerifiedName, &c.ImgURL, &c.Status, &c.IsLocal, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertContact inserts a contact or merges it into the stored row: non-nil
// fields overwrite, nil fields keep what is stored.
func (db *DB) UpsertContact(c *Contact) error {
	ts := now()
	_, err := db.Exec(`
		INSERT INTO contacts (account_id, jid, lid, phone_number, name, notify_name,
			verified_name, img_url, status, is_local, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, jid) DO UPDATE SET
			lid = COALESCE(excluded.lid, lid),
			phone_number = COALESCE(excluded.phone_number, phone_number),
			name = COALESCE(excluded.name, name),
			notify_name = COALESCE(excluded.notify_name, notify_name),
			verified_name = COALESCE(excluded.verified_name, verified_name),
			img_url = COALESCE(excluded.img_url, img_url),
			status = COALESCE(excluded.status, status),
			is_local = excluded.is_local,
			updated_at = excluded.updated_at`,
		c.AccountID, c.JID, c.LID, c.PhoneNumber, c.Name, c.NotifyName,
		c.VerifiedName, c.ImgURL, c.Status, c.IsLocal, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert contact %q: %w", c.JID, err)
	}
	return nil
}

// GetContacts lists an account's contacts ordered by name.
func (db *DB) GetContacts(accountID string) ([]Contact, error) {
	rows, err := db.Query(`SELECT `+contactColumns+` FROM contacts WHERE account_id = ? ORDER BY name, jid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// GetContact returns nil, nil when no contact matches.
func (db *DB) GetContact(accountID, jid string) (*Contact, error) {
	c, err := scanContact(db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE account_id = ? AND jid = ?`, accountID, jid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
