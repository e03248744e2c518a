package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenUnique(t *testing.T) {
	a, b := NewToken(), NewToken()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestEqual(t *testing.T) {
	token := NewToken()
	assert.True(t, Equal(token, token))
	assert.False(t, Equal(token, NewToken()))
	assert.False(t, Equal(token, ""))
}

func TestTokenStore(t *testing.T) {
	ts := NewTokenStore()

	_, ok := ts.Lookup("/ws")
	assert.False(t, ok)

	token := ts.Issue("/ws")
	got, ok := ts.Lookup("/ws")
	require.True(t, ok)
	assert.Equal(t, token, got)

	assert.True(t, ts.Verify("/ws", token))
	assert.False(t, ts.Verify("/ws", "wrong"))
	assert.False(t, ts.Verify("/other", token))

	// Reissuing replaces the prior token.
	next := ts.Issue("/ws")
	assert.NotEqual(t, token, next)
	assert.False(t, ts.Verify("/ws", token))
	assert.True(t, ts.Verify("/ws", next))

	ts.Revoke("/ws")
	assert.False(t, ts.Verify("/ws", next))
}
