package store

import (
	"database/sql"
	"time"
)

// SaveDraft writes a chat's encrypted draft if version is not older than the
// stored one (last-writer-wins by version). Returns whether the write was
// applied. The chat row is created if it does not exist yet, so a draft can
// precede the chat's first sync.
func (db *DB) SaveDraft(chatID string, ciphertext []byte, version int64) (bool, error) {
	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var cur int64
	err = tx.QueryRow(`SELECT draft_version FROM chats WHERE id = ?`, chatID).Scan(&cur)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`
			INSERT INTO chats (id, draft_ciphertext, draft_version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`, chatID, ciphertext, version, now, now); err != nil {
			return false, err
		}
		return true, tx.Commit()
	}
	if err != nil {
		return false, err
	}
	if version < cur {
		return false, nil
	}
	if _, err := tx.Exec(`
		UPDATE chats SET draft_ciphertext = ?, draft_version = ?, updated_at = ? WHERE id = ?`,
		ciphertext, version, now, chatID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// LoadDraft returns a chat's encrypted draft, or nil if none is stored.
func (db *DB) LoadDraft(chatID string) (*Draft, error) {
	var d Draft
	err := db.QueryRow(`SELECT id, draft_ciphertext, draft_version FROM chats WHERE id = ?`, chatID).
		Scan(&d.ChatID, &d.Ciphertext, &d.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d.Ciphertext == nil {
		return nil, nil
	}
	return &d, nil
}

// ClearDraft removes a chat's draft, bumping the version so a stale echo of
// the cleared content cannot resurrect it.
func (db *DB) ClearDraft(chatID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE chats SET draft_ciphertext = NULL, draft_version = draft_version + 1, updated_at = ?
		WHERE id = ?`, now, chatID)
	return err
}

// ClearAllDrafts removes every stored draft.
func (db *DB) ClearAllDrafts() error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE chats SET draft_ciphertext = NULL, draft_version = draft_version + 1, updated_at = ?
		WHERE draft_ciphertext IS NOT NULL`, now)
	return err
}
