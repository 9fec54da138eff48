// Package gitsync keeps the vault directory in a git repository so the
// encrypted vault can be pushed to and pulled from a remote. Only ciphertext
// leaves the machine; the audit log and local backups are ignored.
package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forest6511/keyp/internal/fileutil"
	"github.com/forest6511/keyp/internal/logger"
)

// RemoteName is the git remote keyp manages.
const RemoteName = "origin"

// gitignore keeps local-only state out of the repository.
const gitignore = `# keyp: local state, never synced
audit/
backups/
.*.tmp-*
`

// Errors
var (
	ErrGitNotFound        = errors.New("gitsync: git executable not found")
	ErrNotInitialized     = errors.New("gitsync: vault directory is not a git repository")
	ErrNoRemote           = errors.New("gitsync: no remote configured")
	ErrAlreadyInitialized = errors.New("gitsync: vault directory is already a git repository")
)

// Status summarises the repository state.
type Status struct {
	Initialized      bool
	RemoteConfigured bool
	RemoteURL        string
	Clean            bool
	Ahead            int
	Behind           int
}

// Git runs the git binary inside the vault directory.
type Git struct {
	dir    string
	branch string
	log    *logger.Logger
}

// New returns a syncer for dir on branch.
func New(dir, branch string, log *logger.Logger) *Git {
	if branch == "" {
		branch = "main"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Git{dir: dir, branch: branch, log: log.Component("gitsync")}
}

// Available reports whether git is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Init creates the repository, sets the branch and writes .gitignore.
func (g *Git) Init(ctx context.Context) error {
	if g.isRepo(ctx) {
		return ErrAlreadyInitialized
	}
	if err := fileutil.EnsureDir(g.dir); err != nil {
		return fmt.Errorf("gitsync: %w", err)
	}
	if _, err := g.git(ctx, "init"); err != nil {
		return err
	}
	if _, err := g.git(ctx, "symbolic-ref", "HEAD", "refs/heads/"+g.branch); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(g.dir, ".gitignore"), []byte(gitignore), 0644); err != nil {
		return fmt.Errorf("gitsync: failed to write .gitignore: %w", err)
	}
	return nil
}

// SetRemote adds the remote, or updates its URL if it exists.
func (g *Git) SetRemote(ctx context.Context, url string) error {
	if !g.isRepo(ctx) {
		return ErrNotInitialized
	}
	if _, err := g.git(ctx, "remote", "get-url", RemoteName); err == nil {
		_, err = g.git(ctx, "remote", "set-url", RemoteName, url)
		return err
	}
	_, err := g.git(ctx, "remote", "add", RemoteName, url)
	return err
}

// Commit stages everything and commits it. It reports false when there was
// nothing to commit.
func (g *Git) Commit(ctx context.Context, message string) (bool, error) {
	if !g.isRepo(ctx) {
		return false, ErrNotInitialized
	}
	if _, err := g.git(ctx, "add", "-A"); err != nil {
		return false, err
	}
	porcelain, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if porcelain == "" {
		return false, nil
	}
	if _, err := g.git(ctx, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Push sends the branch to the remote and sets upstream.
func (g *Git) Push(ctx context.Context) error {
	if err := g.requireRemote(ctx); err != nil {
		return err
	}
	_, err := g.git(ctx, "push", "-u", RemoteName, g.branch)
	return err
}

// Pull fetches and fast-forwards the branch. Diverged histories are
// reported rather than merged; a merged ciphertext would be unreadable.
func (g *Git) Pull(ctx context.Context) error {
	if err := g.requireRemote(ctx); err != nil {
		return err
	}
	_, err := g.git(ctx, "pull", "--ff-only", RemoteName, g.branch)
	return err
}

// Status inspects the repository without changing it.
func (g *Git) Status(ctx context.Context) (*Status, error) {
	if !Available() {
		return nil, ErrGitNotFound
	}
	st := &Status{Clean: true}
	if !g.isRepo(ctx) {
		return st, nil
	}
	st.Initialized = true

	if url, err := g.git(ctx, "remote", "get-url", RemoteName); err == nil {
		st.RemoteConfigured = true
		st.RemoteURL = url
	}

	porcelain, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	st.Clean = porcelain == ""

	if st.RemoteConfigured {
		upstream := RemoteName + "/" + g.branch
		st.Ahead = g.count(ctx, upstream+"..HEAD")
		st.Behind = g.count(ctx, "HEAD.."+upstream)
	}
	return st, nil
}

func (g *Git) requireRemote(ctx context.Context) error {
	if !g.isRepo(ctx) {
		return ErrNotInitialized
	}
	if _, err := g.git(ctx, "remote", "get-url", RemoteName); err != nil {
		return ErrNoRemote
	}
	return nil
}

func (g *Git) isRepo(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(g.dir, ".git")); err != nil {
		return false
	}
	_, err := g.git(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// count returns the number of commits in a revision range, or zero when the
// range cannot be resolved (for example before the first fetch).
func (g *Git) count(ctx context.Context, rng string) int {
	out, err := g.git(ctx, "rev-list", "--count", rng)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0
	}
	return n
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	if !Available() {
		return "", ErrGitNotFound
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.log.Debug().Strs("args", args).Msg("git")
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gitsync: git %s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
