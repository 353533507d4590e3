package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record. An update carrying a
// metadata_rev older than the stored one is discarded: revisions only move
// forward, so a slow server echo can never clobber newer local state.
// Content blobs (draft, follow-ups) are managed by their own methods and are
// not touched here.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (id, title, last_opened_at, unread_count, scroll_message_id, metadata_rev, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			last_opened_at = MAX(chats.last_opened_at, excluded.last_opened_at),
			unread_count = excluded.unread_count,
			scroll_message_id = excluded.scroll_message_id,
			metadata_rev = excluded.metadata_rev,
			updated_at = excluded.updated_at
		WHERE excluded.metadata_rev >= chats.metadata_rev`,
		c.ID, c.Title, c.LastOpenedAt, c.UnreadCount, c.ScrollMessageID, c.MetadataRev, now, now)
	return err
}

// GetChat returns a single chat by id, or nil if absent.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, title, last_opened_at, unread_count, scroll_message_id,
			draft_version, draft_ciphertext, followups_ciphertext, metadata_rev, created_at, updated_at
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.LastOpenedAt, &c.UnreadCount, &c.ScrollMessageID,
			&c.DraftVersion, &c.DraftCiphertext, &c.FollowupsCiphertext, &c.MetadataRev, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns chats sorted by most recently opened. Rows holding only a
// draft (no metadata revision yet, no messages) are not part of the chat list;
// they exist because a draft may precede its chat's first sync.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, title, last_opened_at, unread_count, scroll_message_id,
			draft_version, draft_ciphertext, followups_ciphertext, metadata_rev, created_at, updated_at
		FROM chats
		WHERE metadata_rev > 0
			OR EXISTS (SELECT 1 FROM messages WHERE messages.chat_id = chats.id)
		ORDER BY last_opened_at DESC, updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.LastOpenedAt, &c.UnreadCount, &c.ScrollMessageID,
			&c.DraftVersion, &c.DraftCiphertext, &c.FollowupsCiphertext, &c.MetadataRev, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and everything hanging off it.
func (db *DB) DeleteChat(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chat_keys WHERE chat_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chats WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// TouchChatOpened records that a chat was opened now.
func (db *DB) TouchChatOpened(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chats SET last_opened_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// UpdateScrollBookmark records the message the chat is scrolled to.
func (db *DB) UpdateScrollBookmark(chatID, messageID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chats SET scroll_message_id = ?, updated_at = ? WHERE id = ?`, messageID, now, chatID)
	return err
}

// UpdateUnreadCount sets the unread counter for a chat.
func (db *DB) UpdateUnreadCount(chatID string, count int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chats SET unread_count = ?, updated_at = ? WHERE id = ?`, count, now, chatID)
	return err
}

// ReplaceFollowups replaces the chat's encrypted follow-up suggestion blob
// wholesale, as delivered after each completed response.
func (db *DB) ReplaceFollowups(chatID string, ciphertext []byte) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chats SET followups_ciphertext = ?, updated_at = ? WHERE id = ?`, ciphertext, now, chatID)
	return err
}
