package session

import (
	"crypto/sha256"
	"errors"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// MasterKeySize is the size of the session master key (AES-256).
const MasterKeySize = 32

// pbkdf2Iterations follows the OWASP recommendation for PBKDF2-SHA-256.
const pbkdf2Iterations = 600_000

// ErrNotAuthenticated is returned when key material is requested before login.
var ErrNotAuthenticated = errors.New("session not authenticated")

// Context carries per-session state shared by every component: the profile
// name and the master key supplied by the identity layer at login. It is
// created once at startup and torn down at logout; components never reach
// for ambient globals.
type Context struct {
	Profile string

	mu        sync.RWMutex
	masterKey []byte
}

// NewContext creates an unauthenticated session context for a profile.
func NewContext(profile string) *Context {
	return &Context{Profile: profile}
}

// Login installs the master key. The identity protocol that produces the key
// is external; this core only receives the result.
func (c *Context) Login(masterKey []byte) error {
	if len(masterKey) != MasterKeySize {
		return errors.New("master key must be 32 bytes")
	}
	c.mu.Lock()
	c.masterKey = append([]byte(nil), masterKey...)
	c.mu.Unlock()
	return nil
}

// Logout zeroes and discards the master key.
func (c *Context) Logout() {
	c.mu.Lock()
	for i := range c.masterKey {
		c.masterKey[i] = 0
	}
	c.masterKey = nil
	c.mu.Unlock()
}

// Authenticated reports whether a master key is installed.
func (c *Context) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.masterKey != nil
}

// MasterKey returns a copy of the master key, or ErrNotAuthenticated.
func (c *Context) MasterKey() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.masterKey == nil {
		return nil, ErrNotAuthenticated
	}
	return append([]byte(nil), c.masterKey...), nil
}

// DeriveMasterKey derives a master key from credentials and an account salt.
// Provided for clients whose identity layer hands over raw credentials rather
// than a finished key.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, pbkdf2Iterations, MasterKeySize, sha256.New)
}
