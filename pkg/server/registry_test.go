package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaucy/mcpd/pkg/logging"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = logging.Nop()
	return cfg
}

func TestNormalizeWorkspacePath(t *testing.T) {
	base, err := NormalizeWorkspacePath("/work/proj")
	require.NoError(t, err)

	trailing, err := NormalizeWorkspacePath("/work/proj" + string(filepath.Separator))
	require.NoError(t, err)
	assert.Equal(t, base, trailing)

	dotted, err := NormalizeWorkspacePath("/work/./proj")
	require.NoError(t, err)
	assert.Equal(t, base, dotted)
}

func TestEnsureServerIdempotent(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Shutdown()

	dir := t.TempDir()
	first, err := r.EnsureServer(dir)
	require.NoError(t, err)
	assert.NotZero(t, first.Port)
	assert.NotEmpty(t, first.AuthToken)

	// Same path with a trailing separator resolves to the same entry.
	second, err := r.EnsureServer(dir + string(filepath.Separator))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, first.Port, second.Port)
}

func TestEnsureServerDistinctWorkspaces(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Shutdown()

	a, err := r.EnsureServer(t.TempDir())
	require.NoError(t, err)
	b, err := r.EnsureServer(t.TempDir())
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.Port, b.Port)
}

func TestGetServerNeverCreates(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Shutdown()

	dir := t.TempDir()
	_, ok := r.GetServer(dir)
	assert.False(t, ok)

	created, err := r.EnsureServer(dir)
	require.NoError(t, err)

	found, ok := r.GetServer(dir)
	require.True(t, ok)
	assert.Same(t, created, found)
}

func TestOnCreateFiresOncePerWorkspace(t *testing.T) {
	cfg := testConfig()
	var calls []string
	cfg.OnCreate = func(workspace string, entry *Entry) {
		assert.NotNil(t, entry.Instance)
		assert.NotEmpty(t, entry.AuthToken)
		calls = append(calls, workspace)
	}

	r := NewRegistry(cfg)
	defer r.Shutdown()

	dir := t.TempDir()
	_, err := r.EnsureServer(dir)
	require.NoError(t, err)
	_, err = r.EnsureServer(dir)
	require.NoError(t, err)

	require.Len(t, calls, 1)
	normalized, err := NormalizeWorkspacePath(dir)
	require.NoError(t, err)
	assert.Equal(t, normalized, calls[0])
}

func TestOnCreateCallbackCanUseRegistry(t *testing.T) {
	cfg := testConfig()
	var r *Registry

	dirA, dirB := t.TempDir(), t.TempDir()
	var sawOwnEntry bool
	var siblingErr error
	cfg.OnCreate = func(workspace string, entry *Entry) {
		// Creation hooks naturally call back into the registry; none of
		// these may block on the registry lock.
		found, ok := r.GetServer(workspace)
		sawOwnEntry = ok && found == entry
		_ = r.Workspaces()

		if normalized, err := NormalizeWorkspacePath(dirA); err == nil && workspace == normalized {
			_, siblingErr = r.EnsureServer(dirB)
		}
	}
	r = NewRegistry(cfg)
	defer r.Shutdown()

	done := make(chan error, 1)
	go func() {
		_, err := r.EnsureServer(dirA)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("EnsureServer blocked while OnCreate called back into the registry")
	}

	assert.True(t, sawOwnEntry)
	assert.NoError(t, siblingErr)
	assert.Len(t, r.Workspaces(), 2)
}

func TestTokensMirrorEntries(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Shutdown()

	dir := t.TempDir()
	entry, err := r.EnsureServer(dir)
	require.NoError(t, err)

	normalized, err := NormalizeWorkspacePath(dir)
	require.NoError(t, err)

	issued, ok := r.Tokens().Lookup(normalized)
	require.True(t, ok)
	assert.Equal(t, entry.AuthToken, issued)
	assert.True(t, r.Tokens().Verify(normalized, entry.AuthToken))

	// Restarting rotates the token; the store follows.
	require.NoError(t, r.RestartAll())
	fresh, ok := r.GetServer(dir)
	require.True(t, ok)
	assert.NotEqual(t, entry.AuthToken, fresh.AuthToken)
	assert.False(t, r.Tokens().Verify(normalized, entry.AuthToken))
	assert.True(t, r.Tokens().Verify(normalized, fresh.AuthToken))

	// Stopping revokes outright.
	require.NoError(t, r.StopAll())
	_, ok = r.Tokens().Lookup(normalized)
	assert.False(t, ok)
}

func TestStopAllReleasesToolHooks(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Shutdown()

	entry, err := r.EnsureServer(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, entry.Instance.toolsCancel)

	require.NoError(t, r.StopAll())
	assert.Nil(t, entry.Instance.toolsCancel)
}

func TestStopAllEmptiesRegistry(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Shutdown()

	dir := t.TempDir()
	entry, err := r.EnsureServer(dir)
	require.NoError(t, err)

	require.NoError(t, r.StopAll())
	_, ok := r.GetServer(dir)
	assert.False(t, ok)
	assert.Empty(t, r.Workspaces())

	// The old instance's listener is gone.
	assert.Equal(t, 0, entry.Instance.Sessions())
}

func TestRestartAllRecreatesInstances(t *testing.T) {
	cfg := testConfig()
	var created int
	cfg.OnCreate = func(string, *Entry) { created++ }

	r := NewRegistry(cfg)
	defer r.Shutdown()

	dirA, dirB := t.TempDir(), t.TempDir()
	oldA, err := r.EnsureServer(dirA)
	require.NoError(t, err)
	_, err = r.EnsureServer(dirB)
	require.NoError(t, err)
	require.Equal(t, 2, created)

	require.NoError(t, r.RestartAll())
	assert.Equal(t, 4, created)
	assert.Len(t, r.Workspaces(), 2)

	newA, ok := r.GetServer(dirA)
	require.True(t, ok)
	assert.NotSame(t, oldA, newA)
	assert.NotSame(t, oldA.Instance, newA.Instance)
	assert.NotEqual(t, oldA.AuthToken, newA.AuthToken)
}
