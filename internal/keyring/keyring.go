// Package keyring resolves per-chat keys: lazy generation, wrapped
// persistence, and unwrap-on-read. It is the only place where key material
// moves between the session context, the crypto adapter, and the store.
package keyring

import (
	"fmt"

	"github.com/lcrispim/hush/internal/crypto"
	"github.com/lcrispim/hush/internal/session"
	"github.com/lcrispim/hush/internal/store"
)

// Keyring hands out chat keys, generating and persisting them on first use.
type Keyring struct {
	db   *store.DB
	sess *session.Context
}

// New creates a keyring over the store and session context.
func New(db *store.DB, sess *session.Context) *Keyring {
	return &Keyring{db: db, sess: sess}
}

// ChatKey returns the symmetric key for a chat, creating it if absent.
// Derivation is deterministic from the master key, so two racing callers (or
// two devices sharing the master key) produce the same key; the store's
// first-writer-wins insert makes the persisted wrapped copy convergent too.
func (k *Keyring) ChatKey(chatID string) ([]byte, error) {
	masterKey, err := k.sess.MasterKey()
	if err != nil {
		return nil, err
	}

	wrapped, err := k.db.GetChatKey(chatID)
	if err != nil {
		// Store unavailable: fall back to pure derivation, which needs no
		// persistence to be correct.
		wrapped = nil
	}
	if wrapped != nil {
		key, err := crypto.UnwrapKey(masterKey, wrapped)
		if err != nil {
			return nil, fmt.Errorf("unwrap chat key: %w", err)
		}
		return key, nil
	}

	key, err := crypto.DeriveChatKey(masterKey, chatID)
	if err != nil {
		return nil, err
	}
	if wrapped, err := crypto.WrapKey(masterKey, key); err == nil {
		// Best effort; the key is re-derivable if this write is lost.
		_ = k.db.PutChatKey(chatID, wrapped)
	}
	return key, nil
}
