package main

import (
	"errors"
	"fmt"

	"github.com/forest6511/keyp/pkg/vault"

	"github.com/spf13/cobra"
)

// destroyPhrase must be typed to confirm destroy.
const destroyPhrase = "destroy"

func init() {
	rootCmd.AddCommand(destroyCmd)
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Permanently deletes the vault file",
	Long: `Permanently deletes the vault file after you type "destroy" and enter the
master password. Backups and the audit log are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireVault(); err != nil {
			return err
		}

		fmt.Printf("This will permanently delete the vault at %s.\n", v.Path())
		fmt.Printf("Type %q to continue: ", destroyPhrase)
		answer, err := readLine()
		if err != nil || answer != destroyPhrase {
			fmt.Println("Aborted")
			return nil
		}

		password, err := readPassword("Enter master password: ")
		if err != nil {
			return err
		}
		if err := v.Destroy(password); err != nil {
			if errors.Is(err, vault.ErrInvalidPassword) {
				return errors.New("incorrect password; vault not destroyed")
			}
			return fmt.Errorf("failed to destroy vault: %w", err)
		}
		autoCommit(cmd, "keyp: destroy vault")

		fmt.Println("Vault destroyed")
		return nil
	},
}
