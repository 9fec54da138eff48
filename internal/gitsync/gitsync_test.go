package gitsync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_AUTHOR_NAME", "keyp test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "keyp test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func newBareRemote(t *testing.T) string {
	t.Helper()
	remote := filepath.Join(t.TempDir(), "remote.git")
	require.NoError(t, os.MkdirAll(remote, 0700))
	runGit(t, remote, "init", "--bare")
	runGit(t, remote, "symbolic-ref", "HEAD", "refs/heads/main")
	return remote
}

func TestStatusUninitialized(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	g := New(t.TempDir(), "", nil)

	st, err := g.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Initialized)

	_, err = g.Commit(ctx, "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, g.Push(ctx), ErrNotInitialized)
	assert.ErrorIs(t, g.SetRemote(ctx, "x"), ErrNotInitialized)
}

func TestInitCommitPushPull(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	g := New(dir, "main", nil)

	require.NoError(t, g.Init(ctx))
	assert.ErrorIs(t, g.Init(ctx), ErrAlreadyInitialized)
	assert.FileExists(t, filepath.Join(dir, ".gitignore"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vault.json"), []byte(`{"v":1}`), 0600))
	committed, err := g.Commit(ctx, "update vault")
	require.NoError(t, err)
	assert.True(t, committed)

	committed, err = g.Commit(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, committed)

	// Local-only state is ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audit"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit", "audit.jsonl"), []byte("{}\n"), 0600))
	committed, err = g.Commit(ctx, "audit only")
	require.NoError(t, err)
	assert.False(t, committed)

	assert.ErrorIs(t, g.Push(ctx), ErrNoRemote)
	assert.ErrorIs(t, g.Pull(ctx), ErrNoRemote)

	remote := newBareRemote(t)
	require.NoError(t, g.SetRemote(ctx, remote))
	require.NoError(t, g.SetRemote(ctx, remote), "updating an existing remote")
	require.NoError(t, g.Push(ctx))

	st, err := g.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.True(t, st.RemoteConfigured)
	assert.Equal(t, remote, st.RemoteURL)
	assert.True(t, st.Clean)
	assert.Zero(t, st.Ahead)
	assert.Zero(t, st.Behind)

	// A second machine pushes a change.
	other := filepath.Join(t.TempDir(), "other")
	runGit(t, filepath.Dir(other), "clone", remote, other)
	require.NoError(t, os.WriteFile(filepath.Join(other, "vault.json"), []byte(`{"v":2}`), 0600))
	og := New(other, "main", nil)
	_, err = og.Commit(ctx, "from other")
	require.NoError(t, err)
	require.NoError(t, og.Push(ctx))

	require.NoError(t, g.Pull(ctx))
	data, err := os.ReadFile(filepath.Join(dir, "vault.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vault.json"), []byte(`{"v":3}`), 0600))
	_, err = g.Commit(ctx, "local change")
	require.NoError(t, err)
	st, err = g.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Ahead)
}
