package store

import (
	"fmt"

	"github.com/ry-diffusion/Tina/internal/wa"
)

// GetChats returns the JIDs of every chat with at least one message, most
// recently active first.
func (db *DB) GetChats(accountID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT chat_jid FROM messages
		WHERE account_id = ?
		GROUP BY chat_jid
		ORDER BY MAX(timestamp) DESC, chat_jid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("get chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []string
	for rows.Next() {
		var jid string
		if err := rows.Scan(&jid); err != nil {
			return nil, err
		}
		chats = append(chats, jid)
	}
	return chats, rows.Err()
}

// ChatPreviews returns the latest message of each chat with its display
// name, most recently active first. A non-positive limit means no limit.
//
// The name falls back through contact name, notify name, verified name,
// phone number and group subject before using the JID itself.
func (db *DB) ChatPreviews(accountID string, limit int) ([]ChatPreview, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		WITH latest AS (
			SELECT chat_jid, content, message_type, timestamp, is_from_me,
				ROW_NUMBER() OVER (PARTITION BY chat_jid ORDER BY timestamp DESC, id DESC) AS rn
			FROM messages
			WHERE account_id = ?
		)
		SELECT l.chat_jid,
			COALESCE(c.name, c.notify_name, c.verified_name, c.phone_number, g.subject, l.chat_jid),
			g.jid IS NOT NULL,
			l.content, l.message_type, l.timestamp, l.is_from_me
		FROM latest l
		LEFT JOIN contacts c ON c.account_id = ? AND c.jid = l.chat_jid
		LEFT JOIN "groups" g ON g.account_id = ? AND g.jid = l.chat_jid
		WHERE l.rn = 1
		ORDER BY l.timestamp DESC, l.chat_jid
		LIMIT ?`, accountID, accountID, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat previews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var previews []ChatPreview
	for rows.Next() {
		var p ChatPreview
		var knownGroup bool
		if err := rows.Scan(&p.ChatJID, &p.Name, &knownGroup, &p.LastMessage, &p.LastMessageType,
			&p.LastMessageAt, &p.FromMe); err != nil {
			return nil, err
		}
		p.IsGroup = knownGroup || wa.IsGroup(p.ChatJID)
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// ChatName resolves a chat JID to a display name: contact name, then notify
// name, then phone number, then group subject. It returns nil when nothing is
// known about the chat.
func (db *DB) ChatName(accountID, chatJID string) (*string, error) {
	c, err := db.GetContact(accountID, chatJID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		for _, v := range []*string{c.Name, c.NotifyName, c.PhoneNumber} {
			if v != nil {
				return v, nil
			}
		}
	}

	g, err := db.GetGroup(accountID, chatJID)
	if err != nil {
		return nil, err
	}
	if g != nil && g.Subject != nil {
		return g.Subject, nil
	}
	return nil, nil
}

// Counts returns how many contacts, groups and messages an account holds.
func (db *DB) Counts(accountID string) (*Counts, error) {
	var c Counts
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM contacts WHERE account_id = ?),
			(SELECT COUNT(*) FROM "groups" WHERE account_id = ?),
			(SELECT COUNT(*) FROM messages WHERE account_id = ?)`,
		accountID, accountID, accountID).Scan(&c.Contacts, &c.Groups, &c.Messages)
	if err != nil {
		return nil, fmt.Errorf("counts: %w", err)
	}
	return &c, nil
}
