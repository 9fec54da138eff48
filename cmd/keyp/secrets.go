package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/forest6511/keyp/internal/cli"
	"github.com/forest6511/keyp/internal/clipboard"
	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/secrets"
	"github.com/forest6511/keyp/pkg/security"
	"github.com/forest6511/keyp/pkg/vault"

	"github.com/spf13/cobra"
)

// Get flags
var (
	getStdout  bool
	getNoClear bool
)

// List flags
var (
	listSearch string
	listCount  bool
)

// Delete flags
var deleteForce bool

// Clear flags
var clearForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)

	getCmd.Flags().BoolVar(&getStdout, "stdout", false, "Print the value instead of copying it to the clipboard")
	getCmd.Flags().BoolVar(&getNoClear, "no-clear", false, "Do not clear the clipboard afterwards")

	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Only names containing this text (case-insensitive)")
	listCmd.Flags().BoolVar(&listCount, "count", false, "Print only the number of secrets")

	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Skip confirmation prompt")
}

// initCmd initializes a new vault
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a new vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.Exists() {
			return fmt.Errorf("a vault already exists at %s", v.Path())
		}

		fmt.Println("Initializing new vault...")

		password1, err := readPassword("Enter master password: ")
		if err != nil {
			return err
		}
		check, err := security.ValidateMasterPassword(password1)
		if err != nil {
			return fmt.Errorf("password validation failed: %w", err)
		}

		password2, err := readPassword("Confirm master password: ")
		if err != nil {
			return err
		}
		if err := security.ConfirmPassword(password1, password2); err != nil {
			return err
		}

		fmt.Printf("Password strength: %s\n", check.Strength)
		for _, warning := range check.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		if err := v.Init(password1); err != nil {
			return fmt.Errorf("failed to initialize vault: %w", err)
		}
		defer v.Lock()
		autoCommit(cmd, "keyp: initialize vault")

		fmt.Printf("Vault initialized successfully at %s\n", v.Path())
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  keyp set <name>     store a secret")
		fmt.Println("  keyp get <name>     copy a secret to the clipboard")
		fmt.Println("  keyp list           list stored names")
		return nil
	},
}

// setCmd stores a secret
var setCmd = &cobra.Command{
	Use:   "set <name> [value]",
	Short: "Stores a secret",
	Long: `Stores a secret under name, replacing any existing value.

When value is omitted it is read without echo, which keeps it out of the
shell history.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		password, err := unlock()
		if err != nil {
			return err
		}
		defer v.Lock()

		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			value, err = readPassword(fmt.Sprintf("Enter value for '%s': ", name))
			if err != nil {
				return err
			}
		}

		result, err := v.Data().Set(name, value)
		if err != nil {
			return friendlySecretError(err)
		}
		if err := save(cmd, password, "keyp: set "+name); err != nil {
			return err
		}
		record(audit.OpSecretSet, name)

		fmt.Println(setMessage(name, result))
		return nil
	},
}

// getCmd retrieves a secret
var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Copies a secret to the clipboard",
	Long: `Copies a secret to the clipboard and clears it again after the configured
delay (45 seconds by default), unless something else was copied meanwhile.

Use --stdout to print the value instead. When no clipboard is available the
value is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if _, err := unlock(); err != nil {
			return err
		}
		value, ok := v.Data().Get(name)
		v.Lock()
		if !ok {
			return fmt.Errorf("secret '%s' not found", name)
		}
		record(audit.OpSecretGet, name)

		if getStdout {
			os.Stdout.WriteString(value)
			fmt.Println()
			return nil
		}

		clearAfter := cfg.Clipboard.ClearAfter
		if getNoClear {
			clearAfter = 0
		}
		return copyToClipboard(cmd.Context(), clipboard.New(), value, clearAfter)
	},
}

// copyToClipboard copies value and, for a positive clearAfter, waits to clear
// it. Without a clipboard the value is printed.
func copyToClipboard(ctx context.Context, cb *clipboard.Manager, value string, clearAfter time.Duration) error {
	if err := cb.Copy(value); err != nil {
		if errors.Is(err, clipboard.ErrUnsupported) {
			fmt.Fprintln(os.Stderr, "Clipboard not available; printing value.")
			os.Stdout.WriteString(value)
			fmt.Println()
			return nil
		}
		return err
	}
	fmt.Println("Copied to clipboard")
	if clearAfter <= 0 {
		return nil
	}

	fmt.Printf("Clipboard will be cleared in %s (Ctrl+C clears now)\n", clearAfter)
	cleared, err := cb.ClearAfter(ctx, value, clearAfter)
	if err != nil {
		return err
	}
	if cleared {
		fmt.Println("Clipboard cleared")
	}
	return nil
}

// deleteCmd deletes secrets by name or glob pattern
var deleteCmd = &cobra.Command{
	Use:     "delete <name|pattern>...",
	Aliases: []string{"rm"},
	Short:   "Deletes secrets",
	Long: `Deletes one or more secrets. Arguments may be glob patterns:

  keyp delete old_token
  keyp delete 'staging_*' -f`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := unlock()
		if err != nil {
			return err
		}
		defer v.Lock()

		names, err := cli.ExpandPatterns(args, v.Data().List())
		if err != nil {
			return err
		}

		if !deleteForce {
			fmt.Printf("This will delete %d secret(s): %s\n", len(names), strings.Join(names, ", "))
			if !confirm("Are you sure?") {
				fmt.Println("Aborted")
				return nil
			}
		}

		for _, name := range names {
			if err := v.Data().Delete(name); err != nil {
				return friendlySecretError(err)
			}
		}
		if err := save(cmd, password, fmt.Sprintf("keyp: delete %d secret(s)", len(names))); err != nil {
			return err
		}
		for _, name := range names {
			record(audit.OpSecretDelete, name)
		}

		if len(names) == 1 {
			fmt.Printf("Secret '%s' deleted successfully\n", names[0])
		} else {
			fmt.Printf("%d secrets deleted successfully\n", len(names))
		}
		return nil
	},
}

// listCmd lists secret names
var listCmd = &cobra.Command{
	Use:     "list [pattern]",
	Aliases: []string{"ls"},
	Short:   "Lists secret names",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}
		defer v.Lock()

		names, err := filterNames(v.Data(), listSearch, args)
		if err != nil {
			return err
		}
		op := audit.OpSecretList
		if listSearch != "" {
			op = audit.OpSecretSearch
		}
		record(op, "")

		if listCount {
			fmt.Println(len(names))
			return nil
		}
		printNames(names)
		return nil
	},
}

// searchCmd lists names containing a substring
var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Lists secret names containing text (case-insensitive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}
		defer v.Lock()

		names := v.Data().Search(args[0])
		record(audit.OpSecretSearch, "")
		printNames(names)
		return nil
	},
}

// filterNames applies the substring search and the optional glob pattern.
func filterNames(store *secrets.Store, search string, args []string) ([]string, error) {
	names := store.List()
	if search != "" {
		names = store.Search(search)
	}
	if len(args) == 0 {
		return names, nil
	}
	if err := cli.ValidatePattern(args[0]); err != nil {
		return nil, err
	}
	var matched []string
	for _, name := range names {
		if ok, _ := cli.Match(args[0], name); ok {
			matched = append(matched, name)
		}
	}
	return matched, nil
}

func printNames(names []string) {
	if len(names) == 0 {
		fmt.Println("No secrets found")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

// renameCmd renames a secret
var renameCmd = &cobra.Command{
	Use:     "rename <old> <new>",
	Aliases: []string{"mv"},
	Short:   "Renames a secret",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldName, newName := args[0], args[1]

		password, err := unlock()
		if err != nil {
			return err
		}
		defer v.Lock()

		if err := v.Data().Rename(oldName, newName); err != nil {
			return friendlySecretError(err)
		}
		if err := save(cmd, password, fmt.Sprintf("keyp: rename %s to %s", oldName, newName)); err != nil {
			return err
		}
		record(audit.OpSecretRename, oldName+" -> "+newName)

		fmt.Printf("Secret '%s' renamed to '%s'\n", oldName, newName)
		return nil
	},
}

// copyCmd duplicates a secret under a new name
var copyCmd = &cobra.Command{
	Use:     "copy <source> <destination>",
	Aliases: []string{"cp"},
	Short:   "Copies a secret to a new name",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, dst := args[0], args[1]

		password, err := unlock()
		if err != nil {
			return err
		}
		defer v.Lock()

		if err := duplicateSecret(v.Data(), src, dst); err != nil {
			return friendlySecretError(err)
		}
		if err := save(cmd, password, fmt.Sprintf("keyp: copy %s to %s", src, dst)); err != nil {
			return err
		}
		record(audit.OpSecretCopy, src+" -> "+dst)

		fmt.Printf("Secret '%s' copied to '%s'\n", src, dst)
		return nil
	},
}

// duplicateSecret stores the value of src under dst, which must be new.
func duplicateSecret(store *secrets.Store, src, dst string) error {
	if src == dst {
		return secrets.ErrSameName
	}
	value, ok := store.Get(src)
	if !ok {
		return fmt.Errorf("%w: %q", secrets.ErrSecretNotFound, src)
	}
	if store.Has(dst) {
		return fmt.Errorf("%w: %q", secrets.ErrSecretExists, dst)
	}
	_, err := store.Set(dst, value)
	return err
}

// statsCmd shows vault statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows vault statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}
		defer v.Lock()

		st := v.Data().Stats()
		fmt.Printf("Secrets:              %d\n", st.Count)
		if st.Count > 0 {
			fmt.Printf("Average value length: %d characters\n", st.AvgValueLength)
			fmt.Printf("Longest name:         %s\n", st.LongestName)
		}

		if rec, err := v.Record(); err == nil {
			fmt.Printf("Format version:       %s\n", rec.Version)
			fmt.Printf("Iterations:           %d\n", rec.Crypto.Iterations)
			fmt.Printf("Created:              %s\n", rec.CreatedAt.Local().Format(time.DateTime))
		}
		if info, err := os.Stat(v.Path()); err == nil {
			fmt.Printf("Vault size:           %s\n", formatBytes(info.Size()))
			fmt.Printf("Last modified:        %s\n", info.ModTime().Format(time.DateTime))
		}
		fmt.Printf("Location:             %s\n", v.Path())
		return nil
	},
}

// formatBytes renders n in B, KB or MB.
func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

// clearCmd removes every secret
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Deletes every secret in the vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := unlock()
		if err != nil {
			return err
		}
		defer v.Lock()

		count := v.Data().Count()
		if count == 0 {
			fmt.Println("Vault is already empty")
			return nil
		}

		token := ""
		if clearForce || confirm(fmt.Sprintf("Delete all %d secrets?", count)) {
			token = secrets.ConfirmDeleteAll
		}
		removed, err := v.Data().ClearAll(token)
		if errors.Is(err, secrets.ErrConfirmationRequired) {
			fmt.Println("Aborted")
			return nil
		}
		if err != nil {
			return err
		}

		if err := save(cmd, password, "keyp: clear vault"); err != nil {
			return err
		}
		record(audit.OpSecretClear, "")

		fmt.Printf("Deleted %d secrets\n", removed)
		return nil
	},
}

func setMessage(name string, result secrets.SetResult) string {
	return fmt.Sprintf("Secret '%s' %s", name, result)
}

// friendlySecretError turns store sentinels into user-facing messages.
func friendlySecretError(err error) error {
	switch {
	case errors.Is(err, secrets.ErrInvalidName):
		return errors.New("secret name cannot be empty")
	case errors.Is(err, secrets.ErrInvalidValue):
		return errors.New("secret value cannot be empty")
	case errors.Is(err, secrets.ErrSecretNotFound):
		return fmt.Errorf("secret not found: %w", err)
	case errors.Is(err, secrets.ErrSecretExists):
		return fmt.Errorf("destination already exists: %w", err)
	case errors.Is(err, secrets.ErrSameName):
		return errors.New("source and destination names are the same")
	case errors.Is(err, vault.ErrVaultLocked):
		return errors.New("vault is locked")
	default:
		return err
	}
}
