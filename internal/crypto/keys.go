package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// chatKeySalt namespaces chat-key derivation within the master key's HKDF space.
var chatKeySalt = []byte("hush.chatkey.v1")

// DeriveChatKey derives the symmetric key for one chat from the master key.
// Derivation is deterministic: two devices sharing the master key, or two
// racing local callers, converge on the same key without coordination.
func DeriveChatKey(masterKey []byte, chatID string) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, ErrBadKey
	}
	r := hkdf.New(sha256.New, masterKey, chatKeySalt, []byte(chatID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive chat key: %w", err)
	}
	return key, nil
}

// WrapKey encrypts a chat key under the master key for persistence. The
// wrapped form is what the local store holds; the cleartext chat key never
// touches disk.
func WrapKey(masterKey, chatKey []byte) ([]byte, error) {
	if len(chatKey) != KeySize {
		return nil, ErrBadKey
	}
	return Seal(masterKey, chatKey)
}

// UnwrapKey decrypts a wrapped chat key.
func UnwrapKey(masterKey, wrapped []byte) ([]byte, error) {
	key, err := Open(masterKey, wrapped)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, ErrBadKey
	}
	return key, nil
}
