// Package auth provides per-instance connection tokens. Each workspace
// server is issued one token at creation; the host hands it to clients
// out of band, and comparisons are constant-time.
package auth

import (
	"crypto/subtle"
	"sync"

	"github.com/google/uuid"
)

// NewToken mints an opaque connection token
func NewToken() string {
	return uuid.New().String()
}

// Equal reports whether two tokens match, in constant time
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// TokenStore maps workspace paths to their issued tokens. It exists so a
// host embedding multiple registries can answer "which token opens this
// workspace" without reaching into registry internals.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewTokenStore creates an empty token store
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]string)}
}

// Issue mints and records a token for a workspace, replacing any prior one
func (ts *TokenStore) Issue(workspace string) string {
	token := NewToken()
	ts.mu.Lock()
	ts.tokens[workspace] = token
	ts.mu.Unlock()
	return token
}

// Lookup returns the token issued for a workspace
func (ts *TokenStore) Lookup(workspace string) (string, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	token, ok := ts.tokens[workspace]
	return token, ok
}

// Verify checks a presented token against the workspace's issued token
func (ts *TokenStore) Verify(workspace, presented string) bool {
	issued, ok := ts.Lookup(workspace)
	return ok && Equal(issued, presented)
}

// Revoke forgets the token for a workspace
func (ts *TokenStore) Revoke(workspace string) {
	ts.mu.Lock()
	delete(ts.tokens, workspace)
	ts.mu.Unlock()
}
