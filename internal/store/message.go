package store

import (
	"database/sql"
	"time"

	"github.com/lcrispim/hush/internal/status"
)

// UpsertMessage creates a message or merges fields into the existing row.
// Merging never regresses status: the stored status is re-read inside the
// transaction immediately before writing and the higher-ranked one wins.
// Empty incoming fields (body, seq, parent, category, sender) leave the
// stored value in place.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cur Message
	err = tx.QueryRow(`
		SELECT status, seq, body_ciphertext, parent_message_id, category, sender
		FROM messages WHERE chat_id = ? AND message_id = ?`, m.ChatID, m.MessageID).
		Scan(&cur.Status, &cur.Seq, &cur.BodyCiphertext, &cur.ParentMessageID, &cur.Category, &cur.Sender)
	if err == sql.ErrNoRows {
		createdAt := m.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (chat_id, message_id, parent_message_id, role, status, seq, body_ciphertext, category, sender, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ChatID, m.MessageID, m.ParentMessageID, m.Role, m.Status, m.Seq, m.BodyCiphertext, m.Category, m.Sender, createdAt, now); err != nil {
			return err
		}
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	merged := status.Merge(cur.Status, m.Status)
	body := m.BodyCiphertext
	if len(body) == 0 {
		body = cur.BodyCiphertext
	}
	seq := m.Seq
	if seq == 0 {
		seq = cur.Seq
	}
	parent := m.ParentMessageID
	if parent == "" {
		parent = cur.ParentMessageID
	}
	category := m.Category
	if category == "" {
		category = cur.Category
	}
	sender := m.Sender
	if sender == "" {
		sender = cur.Sender
	}

	if _, err := tx.Exec(`
		UPDATE messages SET parent_message_id = ?, status = ?, seq = ?, body_ciphertext = ?, category = ?, sender = ?, updated_at = ?
		WHERE chat_id = ? AND message_id = ?`,
		parent, merged, seq, body, category, sender, now, m.ChatID, m.MessageID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMessage returns a single message, or nil if absent.
func (db *DB) GetMessage(chatID, messageID string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT chat_id, message_id, parent_message_id, role, status, seq, body_ciphertext, category, sender, created_at, updated_at
		FROM messages WHERE chat_id = ? AND message_id = ?`, chatID, messageID).
		Scan(&m.ChatID, &m.MessageID, &m.ParentMessageID, &m.Role, &m.Status, &m.Seq, &m.BodyCiphertext, &m.Category, &m.Sender, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a chat's messages in display order: server sequence
// number first, creation time as a tiebreak for not-yet-sequenced local sends.
func (db *DB) ListMessages(chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT chat_id, message_id, parent_message_id, role, status, seq, body_ciphertext, category, sender, created_at, updated_at
		FROM messages WHERE chat_id = ?
		ORDER BY seq ASC, created_at ASC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ChatID, &m.MessageID, &m.ParentMessageID, &m.Role, &m.Status, &m.Seq, &m.BodyCiphertext, &m.Category, &m.Sender, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LastMessage returns the chat's tail message, or nil for an empty chat.
func (db *DB) LastMessage(chatID string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT chat_id, message_id, parent_message_id, role, status, seq, body_ciphertext, category, sender, created_at, updated_at
		FROM messages WHERE chat_id = ?
		ORDER BY seq DESC, created_at DESC
		LIMIT 1`, chatID).
		Scan(&m.ChatID, &m.MessageID, &m.ParentMessageID, &m.Role, &m.Status, &m.Seq, &m.BodyCiphertext, &m.Category, &m.Sender, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RequeueWaiting flips every waiting_for_internet message back to sending.
// Called on reconnect.
func (db *DB) RequeueWaiting() (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE messages SET status = ?, updated_at = ? WHERE status = ?`,
		status.Sending, now, status.WaitingForInternet)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkWaiting flips every in-flight sending message to waiting_for_internet.
// Called on disconnect.
func (db *DB) MarkWaiting() (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE messages SET status = ?, updated_at = ? WHERE status = ?`,
		status.WaitingForInternet, now, status.Sending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReplaceMessages swaps a chat's entire message list inside one transaction,
// used when the relay delivers a full authoritative replacement.
func (db *DB) ReplaceMessages(chatID string, msgs []Message) error {
	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	for _, m := range msgs {
		createdAt := m.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (chat_id, message_id, parent_message_id, role, status, seq, body_ciphertext, category, sender, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chatID, m.MessageID, m.ParentMessageID, m.Role, m.Status, m.Seq, m.BodyCiphertext, m.Category, m.Sender, createdAt, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}
