package store

// Wipe deletes all persisted state (logout). The schema stays in place so the
// store can be reused by the next session on this profile.
func (db *DB) Wipe() error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "chat_keys", "suggestions", "sync_state", "chats"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
	}
	return tx.Commit()
}
