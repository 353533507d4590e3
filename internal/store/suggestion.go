package store

import "time"

// PutSuggestion inserts or replaces a suggestion entry.
func (db *DB) PutSuggestion(s *Suggestion) error {
	now := time.Now().UnixMilli()
	createdAt := s.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	_, err := db.Exec(`
		INSERT INTO suggestions (id, kind, body_ciphertext, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			body_ciphertext = excluded.body_ciphertext`,
		s.ID, s.Kind, s.BodyCiphertext, createdAt)
	return err
}

// ListSuggestions returns suggestions of one kind, oldest first.
func (db *DB) ListSuggestions(kind string) ([]Suggestion, error) {
	rows, err := db.Query(`
		SELECT id, kind, body_ciphertext, created_at
		FROM suggestions WHERE kind = ?
		ORDER BY created_at ASC`, kind)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Suggestion
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.ID, &s.Kind, &s.BodyCiphertext, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSuggestion removes a suggestion by id.
func (db *DB) DeleteSuggestion(id string) error {
	_, err := db.Exec(`DELETE FROM suggestions WHERE id = ?`, id)
	return err
}

// ReplaceSuggestions swaps all suggestions of one kind in a transaction,
// used when the relay delivers a recomputed set.
func (db *DB) ReplaceSuggestions(kind string, list []Suggestion) error {
	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM suggestions WHERE kind = ?`, kind); err != nil {
		return err
	}
	for _, s := range list {
		createdAt := s.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO suggestions (id, kind, body_ciphertext, created_at)
			VALUES (?, ?, ?, ?)`, s.ID, kind, s.BodyCiphertext, createdAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
