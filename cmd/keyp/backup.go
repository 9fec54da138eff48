package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/backup"
	"github.com/forest6511/keyp/pkg/vault"

	"github.com/spf13/cobra"
)

var restoreForce bool

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)

	backupRestoreCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Skip confirmation prompt")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Vault snapshot operations",
	Long: `Snapshots are copies of the encrypted vault file kept in the backups
directory next to the vault. They are opened with the master password that
was current when they were taken.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the vault file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := snapshotVault()
		if err != nil {
			return err
		}
		record(audit.OpBackupCreate, snap.Name)
		fmt.Printf("Backup created: %s\n", snap.Path)
		return nil
	},
}

// snapshotVault copies the current vault record into the backups directory.
func snapshotVault() (*backup.Snapshot, error) {
	if err := requireVault(); err != nil {
		return nil, err
	}
	rec, err := v.Record()
	if err != nil {
		return nil, err
	}
	data, err := rec.Marshal()
	if err != nil {
		return nil, err
	}
	snap, err := v.Backups().Create(data)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}
	return snap, nil
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := v.Backups().List()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No backups found")
			return nil
		}
		for _, s := range snaps {
			fmt.Printf("%s  %s  %s\n", s.Name, s.CreatedAt.Local().Format(time.DateTime), formatBytes(s.Size))
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Replace the vault file with a snapshot (default: newest)",
	Long: `Replace the vault file with a snapshot. The current vault is snapshotted
first, so a restore can itself be undone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		} else {
			latest, err := v.Backups().Latest()
			if errors.Is(err, backup.ErrNoBackups) {
				return errors.New("no backups found")
			}
			if err != nil {
				return err
			}
			name = latest.Name
		}

		if !restoreForce && !confirm(fmt.Sprintf("Replace %s with backup %s?", v.Path(), name)) {
			fmt.Println("Restore cancelled.")
			return nil
		}

		if v.Exists() {
			snap, err := snapshotVault()
			if err != nil {
				return err
			}
			fmt.Printf("Current vault saved as %s\n", snap.Name)
		}

		validate := func(data []byte) error {
			_, err := vault.ParseRecord(data)
			return err
		}
		if err := v.Backups().Restore(name, v.Path(), validate); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		record(audit.OpBackupRestore, name)
		autoCommit(cmd, "keyp: restore "+name)

		fmt.Printf("Vault restored from %s\n", name)
		return nil
	},
}
