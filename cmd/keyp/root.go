package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/forest6511/keyp/internal/config"
	"github.com/forest6511/keyp/internal/gitsync"
	"github.com/forest6511/keyp/internal/logger"
	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/backup"
	"github.com/forest6511/keyp/pkg/vault"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// maxUnlockAttempts bounds password prompts per command.
const maxUnlockAttempts = 3

var (
	vaultFlag    string
	logLevelFlag string

	configDir string
	cfg       *config.Config
	log       *logger.Logger
	v         *vault.Vault
)

// stdin is shared by every prompt so buffered input is not lost between them.
var stdin = bufio.NewReader(os.Stdin)

var rootCmd = &cobra.Command{
	Use:           "keyp",
	Short:         "keyp is a local, encrypted secrets manager",
	Long:          `keyp keeps named secrets in a single password-protected vault file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE loads settings and prepares a Locked vault session
	// for every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		configDir = dir

		cfg, err = config.Load(dir)
		if err != nil {
			return err
		}
		if vaultFlag != "" {
			cfg.VaultPath = vaultFlag
		}
		if logLevelFlag != "" {
			cfg.LogLevel = logLevelFlag
		}

		log, err = logger.New(cfg.LogLevel, os.Stderr)
		if err != nil {
			return err
		}

		v = newVault(cfg, log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Path to the vault file (default ~/.keyp/vault.json)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Diagnostic log level: debug, info, warn, error")
}

// newVault builds a session from the effective settings.
func newVault(c *config.Config, l *logger.Logger) *vault.Vault {
	dir := filepath.Dir(c.VaultPath)
	return vault.New(c.VaultPath,
		vault.WithIterations(c.Iterations),
		vault.WithLogger(l),
		vault.WithBackups(backup.NewManager(filepath.Join(dir, "backups"), c.Backup.Keep)),
	)
}

// readPassword reads a line without echo from a terminal, or a plain line
// when stdin is piped.
var readPassword = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine()
}

// readLine reads a single line from stdin, trimming the line ending.
func readLine() (string, error) {
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if err != nil && line == "" {
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	answer, err := readLine()
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// requireVault fails with a hint when there is no vault yet.
func requireVault() error {
	if !v.Exists() {
		return fmt.Errorf("no vault found at %s; run 'keyp init' first", v.Path())
	}
	return nil
}

// unlock prompts for the master password and unlocks v, retrying on a wrong
// password. The password is returned for the Save that follows.
func unlock() (string, error) {
	if err := requireVault(); err != nil {
		return "", err
	}
	return retryUnlock(v.Unlock, func() (string, error) {
		return readPassword("Enter master password: ")
	}, maxUnlockAttempts, os.Stderr)
}

// retryUnlock calls unlockFn with prompted passwords until it succeeds, it
// fails with anything but vault.ErrInvalidPassword, or attempts run out.
func retryUnlock(unlockFn func(string) error, prompt func() (string, error), attempts int, w io.Writer) (string, error) {
	for attempt := 1; ; attempt++ {
		password, err := prompt()
		if err != nil {
			return "", err
		}
		err = unlockFn(password)
		if err == nil {
			return password, nil
		}
		if !errors.Is(err, vault.ErrInvalidPassword) {
			return "", fmt.Errorf("failed to unlock vault: %w", err)
		}
		remaining := attempts - attempt
		if remaining <= 0 {
			return "", fmt.Errorf("failed to unlock vault: %w", err)
		}
		fmt.Fprintf(w, "Incorrect password (%d attempts remaining)\n", remaining)
	}
}

// save persists the session and, when configured, commits the vault
// directory.
func save(cmd *cobra.Command, password, message string) error {
	if err := v.Save(password); err != nil {
		if errors.Is(err, vault.ErrInsufficientDisk) {
			return fmt.Errorf("not enough free disk space to save the vault: %w", err)
		}
		return fmt.Errorf("failed to save vault: %w", err)
	}
	autoCommit(cmd, message)
	return nil
}

// autoCommit commits the vault directory when sync.auto_commit is set. A
// directory that is not a repository is skipped silently.
func autoCommit(cmd *cobra.Command, message string) {
	if !cfg.Sync.AutoCommit {
		return
	}
	g := gitsync.New(filepath.Dir(v.Path()), cfg.Sync.Branch, log)
	committed, err := g.Commit(cmd.Context(), message)
	switch {
	case errors.Is(err, gitsync.ErrNotInitialized):
	case err != nil:
		log.Warn().Err(err).Msg("auto-commit failed")
	case committed:
		log.Debug().Str("message", message).Msg("auto-committed")
	}
}

// record appends a CLI event to the vault's audit log. Failures are logged,
// never returned.
func record(op, key string) {
	if err := v.Audit().LogSuccess(op, audit.SourceCLI, key); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("failed to write audit event")
	}
}
