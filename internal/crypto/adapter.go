// Package crypto is the client core's crypto adapter: AES-256-GCM sealing of
// message bodies, drafts and suggestion lists under per-chat keys, with chat
// keys derived from the session master key and stored wrapped.
//
// The adapter is stateless. Decryption failure is non-fatal by contract:
// callers substitute a safe default and log, never crash.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// KeySize is the size of every symmetric key in the system (AES-256).
const KeySize = 32

var (
	// ErrBadKey indicates key material of the wrong length.
	ErrBadKey = errors.New("key must be 32 bytes")
	// ErrCiphertextTooShort indicates a truncated or corrupt payload.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Seal encrypts plaintext under key with AES-256-GCM. The nonce is prepended
// to the returned ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal.
func Open(key, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return plaintext, nil
}

// SealString encrypts a string, returning raw ciphertext bytes.
func SealString(key []byte, s string) ([]byte, error) {
	return Seal(key, []byte(s))
}

// OpenString decrypts ciphertext produced by SealString.
func OpenString(key, ciphertext []byte) (string, error) {
	b, err := Open(key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SealStrings encrypts a string list (suggestion lists) as one payload.
func SealStrings(key []byte, list []string) ([]byte, error) {
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return Seal(key, b)
}

// OpenStrings decrypts a payload produced by SealStrings.
func OpenStrings(key, ciphertext []byte) ([]string, error) {
	b, err := Open(key, ciphertext)
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return list, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrBadKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
