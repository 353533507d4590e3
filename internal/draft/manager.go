// Package draft owns the lifecycle of in-progress unsent message content:
// an ephemeral in-memory stratum before authentication, encrypted rows in the
// local store after, and the one-time migration between them at login.
package draft

import (
	"sync"

	"github.com/lcrispim/hush/internal/crypto"
	"github.com/lcrispim/hush/internal/keyring"
	"github.com/lcrispim/hush/internal/session"
	"github.com/lcrispim/hush/internal/store"
	"go.uber.org/zap"
)

// PendingChatID is the sentinel identity for the draft of a chat that does
// not exist yet (composer opened before the first message is sent).
const PendingChatID = "pending"

type ephemeralDraft struct {
	content string
	version int64
}

// Manager is the draft manager.
type Manager struct {
	db     *store.DB
	sess   *session.Context
	keys   *keyring.Keyring
	logger *zap.Logger

	mu        sync.Mutex
	ephemeral map[string]ephemeralDraft
}

// NewManager creates a draft manager.
func NewManager(db *store.DB, sess *session.Context, keys *keyring.Keyring, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:        db,
		sess:      sess,
		keys:      keys,
		logger:    logger,
		ephemeral: make(map[string]ephemeralDraft),
	}
}

// Save stores draft content for a chat at the given version. Pre-auth content
// goes to the ephemeral stratum; post-auth it is encrypted under the chat key
// and persisted. An incoming version older than the stored one is discarded
// (last writer wins by version). Returns whether the write was applied.
func (m *Manager) Save(chatID, content string, version int64) bool {
	if !m.sess.Authenticated() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.ephemeral[chatID]; ok && version < cur.version {
			return false
		}
		m.ephemeral[chatID] = ephemeralDraft{content: content, version: version}
		return true
	}

	key, err := m.keys.ChatKey(chatID)
	if err != nil {
		m.logger.Warn("draft save: no chat key", zap.Error(err), zap.String("chat_id", chatID))
		return false
	}
	ct, err := crypto.SealString(key, content)
	if err != nil {
		m.logger.Warn("draft save: seal failed", zap.Error(err), zap.String("chat_id", chatID))
		return false
	}
	applied, err := m.db.SaveDraft(chatID, ct, version)
	if err != nil {
		m.logger.Warn("draft save: store failed", zap.Error(err), zap.String("chat_id", chatID))
		return false
	}
	return applied
}

// Load returns the draft content and version for a chat. Missing drafts and
// every failure mode return ok=false: the editor starts empty rather than
// surfacing an error.
func (m *Manager) Load(chatID string) (content string, version int64, ok bool) {
	if !m.sess.Authenticated() {
		m.mu.Lock()
		defer m.mu.Unlock()
		d, ok := m.ephemeral[chatID]
		return d.content, d.version, ok
	}

	d, err := m.db.LoadDraft(chatID)
	if err != nil {
		m.logger.Warn("draft load failed", zap.Error(err), zap.String("chat_id", chatID))
		return "", 0, false
	}
	if d == nil {
		return "", 0, false
	}
	key, err := m.keys.ChatKey(chatID)
	if err != nil {
		m.logger.Warn("draft load: no chat key", zap.Error(err), zap.String("chat_id", chatID))
		return "", 0, false
	}
	content, err = crypto.OpenString(key, d.Ciphertext)
	if err != nil {
		// Corrupt or foreign ciphertext: clear the editing surface
		// defensively rather than leaving it indeterminate.
		m.logger.Warn("draft decrypt failed, clearing", zap.Error(err), zap.String("chat_id", chatID))
		_ = m.db.ClearDraft(chatID)
		return "", 0, false
	}
	return content, d.Version, true
}

// Clear removes a chat's draft. With preserveOthers, only that chat's draft
// is touched; otherwise every draft in both strata is dropped.
func (m *Manager) Clear(chatID string, preserveOthers bool) {
	m.mu.Lock()
	if preserveOthers {
		delete(m.ephemeral, chatID)
	} else {
		m.ephemeral = make(map[string]ephemeralDraft)
	}
	m.mu.Unlock()

	if !m.sess.Authenticated() {
		return
	}
	var err error
	if preserveOthers {
		err = m.db.ClearDraft(chatID)
	} else {
		err = m.db.ClearAllDrafts()
	}
	if err != nil {
		m.logger.Warn("draft clear failed", zap.Error(err), zap.String("chat_id", chatID))
	}
}

// MigrateEphemeral encrypts every ephemeral draft under the now-available
// keys, persists it, and drops the ephemeral copy. Called once after
// authentication. Failures are logged and skipped; migration never blocks
// login, at worst a draft is lost.
func (m *Manager) MigrateEphemeral() {
	m.mu.Lock()
	pending := m.ephemeral
	m.ephemeral = make(map[string]ephemeralDraft)
	m.mu.Unlock()

	for chatID, d := range pending {
		key, err := m.keys.ChatKey(chatID)
		if err != nil {
			m.logger.Warn("draft migration: no chat key", zap.Error(err), zap.String("chat_id", chatID))
			continue
		}
		ct, err := crypto.SealString(key, d.content)
		if err != nil {
			m.logger.Warn("draft migration: seal failed", zap.Error(err), zap.String("chat_id", chatID))
			continue
		}
		if _, err := m.db.SaveDraft(chatID, ct, d.version); err != nil {
			m.logger.Warn("draft migration: store failed", zap.Error(err), zap.String("chat_id", chatID))
			continue
		}
		m.logger.Info("draft migrated", zap.String("chat_id", chatID))
	}
}

// HasEphemeral reports whether an ephemeral draft exists for a chat.
func (m *Manager) HasEphemeral(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ephemeral[chatID]
	return ok
}
