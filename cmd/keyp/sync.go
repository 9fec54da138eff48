package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/forest6511/keyp/internal/config"
	"github.com/forest6511/keyp/internal/gitsync"

	"github.com/spf13/cobra"
)

var syncInitRemote string

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncInitCmd)
	syncCmd.AddCommand(syncRemoteCmd)
	syncCmd.AddCommand(syncPushCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncStatusCmd)

	syncInitCmd.Flags().StringVar(&syncInitRemote, "remote", "", "Remote repository URL")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the encrypted vault with a git remote",
	Long: `Keeps the vault directory in a git repository. Only the encrypted vault
file is tracked; the audit log and backups stay local.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if !gitsync.Available() {
			return errors.New("git is not installed or not on PATH")
		}
		return nil
	},
}

func newGit() *gitsync.Git {
	return gitsync.New(filepath.Dir(cfg.VaultPath), cfg.Sync.Branch, log)
}

var syncInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a git repository in the vault directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := newGit()
		if err := g.Init(cmd.Context()); err != nil {
			if errors.Is(err, gitsync.ErrAlreadyInitialized) {
				return errors.New("vault directory is already a git repository")
			}
			return err
		}
		if syncInitRemote != "" {
			if err := setRemote(cmd, g, syncInitRemote); err != nil {
				return err
			}
		}
		if _, err := g.Commit(cmd.Context(), "keyp: initialize sync"); err != nil {
			return err
		}
		fmt.Printf("Git repository initialized in %s\n", filepath.Dir(cfg.VaultPath))
		return nil
	},
}

var syncRemoteCmd = &cobra.Command{
	Use:   "remote <url>",
	Short: "Set the remote repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setRemote(cmd, newGit(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Remote set to %s\n", args[0])
		return nil
	},
}

// setRemote configures the git remote and records it in the config file.
func setRemote(cmd *cobra.Command, g *gitsync.Git, url string) error {
	if err := g.SetRemote(cmd.Context(), url); err != nil {
		return friendlySyncError(err)
	}
	c, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if err := c.Set("sync.remote", url); err != nil {
		return err
	}
	if err := config.EnsureDir(configDir); err != nil {
		return err
	}
	return c.Save(configDir)
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Commit pending changes and push them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := newGit()
		if _, err := g.Commit(cmd.Context(), "keyp: sync"); err != nil {
			return friendlySyncError(err)
		}
		if err := g.Push(cmd.Context()); err != nil {
			return friendlySyncError(err)
		}
		fmt.Println("Vault pushed")
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fast-forward the vault from the remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := newGit()
		st, err := g.Status(cmd.Context())
		if err != nil {
			return friendlySyncError(err)
		}
		if st.Initialized && !st.Clean {
			return errors.New("vault directory has uncommitted changes; run 'keyp sync push' first")
		}
		if err := g.Pull(cmd.Context()); err != nil {
			return friendlySyncError(err)
		}
		fmt.Println("Vault pulled")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newGit().Status(cmd.Context())
		if err != nil {
			return friendlySyncError(err)
		}
		if !st.Initialized {
			fmt.Println("Sync not initialized; run 'keyp sync init'")
			return nil
		}
		remote := "(none)"
		if st.RemoteConfigured {
			remote = st.RemoteURL
		}
		fmt.Printf("Remote:     %s\n", remote)
		fmt.Printf("Branch:     %s\n", cfg.Sync.Branch)
		fmt.Printf("Clean:      %t\n", st.Clean)
		fmt.Printf("Ahead:      %d\n", st.Ahead)
		fmt.Printf("Behind:     %d\n", st.Behind)
		fmt.Printf("Autocommit: %t\n", cfg.Sync.AutoCommit)
		return nil
	},
}

func friendlySyncError(err error) error {
	switch {
	case errors.Is(err, gitsync.ErrNotInitialized):
		return errors.New("sync is not initialized; run 'keyp sync init'")
	case errors.Is(err, gitsync.ErrNoRemote):
		return errors.New("no remote configured; run 'keyp sync remote <url>'")
	default:
		return err
	}
}
