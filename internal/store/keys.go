package store

import (
	"database/sql"
	"time"
)

// GetChatKey returns the wrapped key for a chat, or nil if none is stored.
func (db *DB) GetChatKey(chatID string) ([]byte, error) {
	var wrapped []byte
	err := db.QueryRow(`SELECT wrapped_key FROM chat_keys WHERE chat_id = ?`, chatID).Scan(&wrapped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// PutChatKey stores a wrapped chat key. First writer wins: key derivation is
// deterministic, so racing writers carry the same key and INSERT OR IGNORE
// keeps them convergent.
func (db *DB) PutChatKey(chatID string, wrapped []byte) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT OR IGNORE INTO chat_keys (chat_id, wrapped_key, created_at)
		VALUES (?, ?, ?)`, chatID, wrapped, now)
	return err
}
