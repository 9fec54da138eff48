// Package config loads keyp settings.
//
// Values are layered: built-in defaults, then ~/.keyp/config.yaml, then
// KEYP_* environment variables. Command-line flags are applied last by the
// CLI itself.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/keyp/internal/fileutil"
	"github.com/forest6511/keyp/internal/logger"
	"github.com/forest6511/keyp/pkg/crypto"
)

const (
	// DirName is the per-user directory under $HOME.
	DirName = ".keyp"
	// FileName is the config file inside the keyp directory.
	FileName = "config.yaml"
	// VaultFileName is the default vault file inside the keyp directory.
	VaultFileName = "vault.json"
	// HomeEnv overrides the keyp directory.
	HomeEnv = "KEYP_HOME"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "KEYP_"

	// DefaultClearAfter is how long a copied secret stays on the clipboard.
	DefaultClearAfter = 45 * time.Second
	// DefaultBranch is the git branch used by sync.
	DefaultBranch = "main"
	// DefaultBackupKeep is the number of snapshots retained.
	DefaultBackupKeep = 10
)

// Errors
var (
	ErrInvalidConfig = errors.New("config: invalid configuration")
	ErrUnknownKey    = errors.New("config: unknown key")
)

// Config holds every user-tunable setting.
type Config struct {
	VaultPath  string          `yaml:"vault_path,omitempty" env:"VAULT"`
	Iterations int             `yaml:"iterations,omitempty" env:"ITERATIONS"`
	LogLevel   string          `yaml:"log_level,omitempty" env:"LOG_LEVEL"`
	Clipboard  ClipboardConfig `yaml:"clipboard" envPrefix:"CLIPBOARD_"`
	Sync       SyncConfig      `yaml:"sync" envPrefix:"SYNC_"`
	Backup     BackupConfig    `yaml:"backup" envPrefix:"BACKUP_"`
}

// ClipboardConfig configures the copy command.
type ClipboardConfig struct {
	// ClearAfter of zero keeps the secret on the clipboard.
	ClearAfter time.Duration `yaml:"clear_after,omitempty" env:"CLEAR_AFTER"`
}

// SyncConfig configures git sync of the vault directory.
type SyncConfig struct {
	Remote     string `yaml:"remote,omitempty" env:"REMOTE"`
	Branch     string `yaml:"branch,omitempty" env:"BRANCH"`
	AutoCommit bool   `yaml:"auto_commit,omitempty" env:"AUTO_COMMIT"`
}

// BackupConfig configures snapshot retention.
type BackupConfig struct {
	// Keep below zero disables pruning.
	Keep int `yaml:"keep,omitempty" env:"KEEP"`
}

// DefaultDir returns $KEYP_HOME, or ~/.keyp.
func DefaultDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// DefaultVaultPath returns the vault file inside DefaultDir.
func DefaultVaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, VaultFileName), nil
}

// EnsureDir creates dir with owner-only permissions.
func EnsureDir(dir string) error {
	return fileutil.EnsureDir(dir)
}

// Default returns the built-in settings rooted at dir.
func Default(dir string) *Config {
	return &Config{
		VaultPath:  filepath.Join(dir, VaultFileName),
		Iterations: crypto.DefaultIterations,
		LogLevel:   logger.DefaultLevel,
		Clipboard:  ClipboardConfig{ClearAfter: DefaultClearAfter},
		Sync:       SyncConfig{Branch: DefaultBranch},
		Backup:     BackupConfig{Keep: DefaultBackupKeep},
	}
}

// Load reads dir/config.yaml if present, fills unset values from Default and
// applies KEYP_* environment overrides. The result is validated.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: failed to read %s: %w", FileName, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, FileName, err)
		}
	}

	if err := mergo.Merge(cfg, Default(dir)); err != nil {
		return nil, fmt.Errorf("config: failed to apply defaults: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}

	cfg.VaultPath = expandHome(cfg.VaultPath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.VaultPath) == "" {
		return fmt.Errorf("%w: vault_path is empty", ErrInvalidConfig)
	}
	if c.Iterations < crypto.MinIterations {
		return fmt.Errorf("%w: iterations %d below minimum %d: %w", ErrInvalidConfig, c.Iterations, crypto.MinIterations, crypto.ErrWeakParameters)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Clipboard.ClearAfter < 0 {
		return fmt.Errorf("%w: clipboard.clear_after must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Save writes the config to dir/config.yaml atomically.
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to encode: %w", err)
	}
	if err := fileutil.WriteAtomic(filepath.Join(dir, FileName), data, fileutil.FileMode); err != nil {
		return fmt.Errorf("config: failed to save: %w", err)
	}
	return nil
}

// Keys lists the names accepted by Get and Set.
func Keys() []string {
	return []string{
		"vault_path",
		"iterations",
		"log_level",
		"clipboard.clear_after",
		"sync.remote",
		"sync.branch",
		"sync.auto_commit",
		"backup.keep",
	}
}

// Get returns the value of key as text.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "vault_path":
		return c.VaultPath, nil
	case "iterations":
		return strconv.Itoa(c.Iterations), nil
	case "log_level":
		return c.LogLevel, nil
	case "clipboard.clear_after":
		return c.Clipboard.ClearAfter.String(), nil
	case "sync.remote":
		return c.Sync.Remote, nil
	case "sync.branch":
		return c.Sync.Branch, nil
	case "sync.auto_commit":
		return strconv.FormatBool(c.Sync.AutoCommit), nil
	case "backup.keep":
		return strconv.Itoa(c.Backup.Keep), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Set parses value into key and re-validates the config. On error the
// config is unchanged.
func (c *Config) Set(key, value string) error {
	next := *c
	switch key {
	case "vault_path":
		next.VaultPath = expandHome(value)
	case "iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: iterations: %v", ErrInvalidConfig, err)
		}
		next.Iterations = n
	case "log_level":
		next.LogLevel = value
	case "clipboard.clear_after":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: clipboard.clear_after: %v", ErrInvalidConfig, err)
		}
		next.Clipboard.ClearAfter = d
	case "sync.remote":
		next.Sync.Remote = value
	case "sync.branch":
		if value == "" {
			value = DefaultBranch
		}
		next.Sync.Branch = value
	case "sync.auto_commit":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: sync.auto_commit: %v", ErrInvalidConfig, err)
		}
		next.Sync.AutoCommit = b
	case "backup.keep":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: backup.keep: %v", ErrInvalidConfig, err)
		}
		next.Backup.Keep = n
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
