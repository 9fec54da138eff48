package main

import (
	"errors"
	"fmt"

	"github.com/forest6511/keyp/pkg/security"
	"github.com/forest6511/keyp/pkg/vault"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordChangeCmd)
}

// passwordCmd is the parent command for password operations
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Master password operations",
}

// passwordChangeCmd changes the master password
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password",
	Long: `Change the master password of the vault.

The current vault file is backed up first, then every secret is re-encrypted
under the new password with a fresh salt and IV.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := unlock()
		if err != nil {
			return err
		}
		defer v.Lock()

		newPassword, err := readPassword("Enter new master password: ")
		if err != nil {
			return err
		}
		check, err := security.ValidateMasterPassword(newPassword)
		if err != nil {
			return fmt.Errorf("password validation failed: %w", err)
		}
		confirmPassword, err := readPassword("Confirm new master password: ")
		if err != nil {
			return err
		}
		if err := security.ConfirmPassword(newPassword, confirmPassword); err != nil {
			return err
		}

		fmt.Printf("Password strength: %s\n", check.Strength)
		for _, warning := range check.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		fmt.Println("Re-encrypting vault...")
		if err := v.ChangePassword(current, newPassword); err != nil {
			switch {
			case errors.Is(err, vault.ErrInvalidPassword):
				return errors.New("current password is incorrect")
			case errors.Is(err, vault.ErrSamePassword):
				return errors.New("new password must be different from current password")
			default:
				return fmt.Errorf("failed to change password: %w", err)
			}
		}
		autoCommit(cmd, "keyp: change master password")

		fmt.Println("Master password changed successfully")
		return nil
	},
}
