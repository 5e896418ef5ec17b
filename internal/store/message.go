package store

import "fmt"

const messageColumns = `id, account_id, message_id, chat_jid, sender_jid, content, message_type,
	timestamp, is_from_me, raw_json, created_at`

// InsertMessage stores m unless a message with the same id already exists for
// the account. It reports whether a row was created; a duplicate is not an
// error and never overwrites the stored row.
func (db *DB) InsertMessage(m *Message) (bool, error) {
	messageType := m.MessageType
	if messageType == "" {
		messageType = "text"
	}
	res, err := db.Exec(`
		INSERT INTO messages (account_id, message_id, chat_jid, sender_jid, content, message_type,
			timestamp, is_from_me, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, message_id) DO NOTHING`,
		m.AccountID, m.MessageID, m.ChatJID, m.SenderJID, m.Content, messageType,
		m.Timestamp, m.IsFromMe, m.RawJSON, now())
	if err != nil {
		return false, fmt.Errorf("insert message %q: %w", m.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetMessages returns messages newest first, optionally limited to one chat.
// A non-positive limit means no limit.
func (db *DB) GetMessages(accountID string, chatJID *string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE account_id = ?`
	args := []any{accountID}
	if chatJID != nil {
		query += ` AND chat_jid = ?`
		args = append(args, *chatJID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AccountID, &m.MessageID, &m.ChatJID, &m.SenderJID, &m.Content, &m.MessageType,
			&m.Timestamp, &m.IsFromMe, &m.RawJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
