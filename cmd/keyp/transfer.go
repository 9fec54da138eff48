package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest6511/keyp/internal/cli"
	"github.com/forest6511/keyp/internal/fileutil"
	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/importer"
	"github.com/forest6511/keyp/pkg/secrets"

	"github.com/spf13/cobra"
)

// Export flags
var (
	exportPlain  bool
	exportStdout bool
	exportForce  bool
)

// Import flags
var (
	importFormat       string
	importReplace      bool
	importDryRun       bool
	importPreserveCase bool
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().BoolVar(&exportPlain, "plain", false, "Export decrypted name/value pairs as JSON")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Write to stdout instead of a file")
	exportCmd.Flags().BoolVarP(&exportForce, "force", "f", false, "Overwrite an existing output file")

	importCmd.Flags().StringVar(&importFormat, "format", "", fmt.Sprintf("Input format: %s (default: detect)", strings.Join(importer.ValidSources(), ", ")))
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Delete all existing secrets before importing")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without saving")
	importCmd.Flags().BoolVar(&importPreserveCase, "preserve-case", false, "Keep the case of names derived from item titles")
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Exports the vault",
	Long: `Exports the vault to a file (default keyp-export-<timestamp>.json).

By default the encrypted vault record is written; it can only be read with
the master password. --plain writes every secret in clear text as a JSON
object, which 'keyp import' accepts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportStdout && len(args) > 0 {
			return errors.New("a file name and --stdout are mutually exclusive")
		}

		if _, err := unlock(); err != nil {
			return err
		}
		defer v.Lock()

		data, err := exportData(exportPlain)
		if err != nil {
			return err
		}

		if exportStdout {
			os.Stdout.Write(data)
			record(audit.OpExport, "")
			return nil
		}

		out := defaultExportName(time.Now())
		if len(args) > 0 {
			out = args[0]
		}
		if !exportForce && fileutil.Exists(out) {
			return fmt.Errorf("output file already exists: %s (use --force to overwrite)", out)
		}
		if err := fileutil.WriteAtomic(out, data, fileutil.FileMode); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		record(audit.OpExport, "")

		abs, _ := filepath.Abs(out)
		fmt.Printf("Exported %d secrets to %s\n", v.Data().Count(), abs)
		if exportPlain {
			fmt.Fprintln(os.Stderr, "Warning: the export contains unencrypted secrets. Delete it when done.")
		}
		return nil
	},
}

// exportData returns the plaintext JSON object or the encrypted record.
func exportData(plain bool) ([]byte, error) {
	if plain {
		data, err := json.MarshalIndent(v.Data().Snapshot(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return append(data, '\n'), nil
	}
	rec, err := v.Record()
	if err != nil {
		return nil, err
	}
	return rec.Marshal()
}

func defaultExportName(now time.Time) string {
	return fmt.Sprintf("keyp-export-%s.json", now.Format("20060102-150405"))
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Imports secrets from a file",
	Long: `Imports secrets from a keyp plaintext export, a .env file, a Bitwarden
JSON export, a LastPass CSV export or a 1Password CSV export.

The format is detected from the file name and contents unless --format is
given. Existing secrets with the same name are overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		source := importer.Source(importFormat)
		if importFormat == "" {
			source = importer.Detect(path, data)
		}
		parser, err := importer.GetParser(source)
		if err != nil {
			return fmt.Errorf("%w (valid: %s)", err, strings.Join(importer.ValidSources(), ", "))
		}

		result, err := parser.Parse(data, importer.ParseOptions{PreserveCase: importPreserveCase})
		if err != nil {
			return fmt.Errorf("failed to parse %s file: %w", source, err)
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}
		for _, s := range result.Skipped {
			fmt.Fprintf(os.Stderr, "Skipped %q: %s\n", s.OriginalName, s.Reason)
		}
		if len(result.Secrets) == 0 {
			return errors.New("no secrets found in import file")
		}

		password, err := unlock()
		if err != nil {
			return err
		}
		defer v.Lock()

		plan := planImport(v.Data(), result.Map(), importReplace)
		fmt.Printf("Format: %s\n", source)
		fmt.Printf("New: %d, updated: %d", len(plan.Created), len(plan.Updated))
		if importReplace {
			fmt.Printf(", removed: %d", plan.Removed)
		}
		fmt.Println()

		if importDryRun {
			for _, name := range plan.Created {
				fmt.Printf("  + %s\n", name)
			}
			for _, name := range plan.Updated {
				fmt.Printf("  ~ %s\n", name)
			}
			fmt.Println("Dry run: nothing was saved")
			return nil
		}

		if importReplace && plan.Removed > 0 {
			if _, err := v.Data().ClearAll(secrets.ConfirmDeleteAll); err != nil {
				return err
			}
		}
		for _, s := range result.Secrets {
			if _, err := v.Data().Set(s.Name, s.Value); err != nil {
				return fmt.Errorf("failed to import %q: %w", s.Name, err)
			}
		}
		if err := save(cmd, password, fmt.Sprintf("keyp: import %d secret(s)", len(result.Secrets))); err != nil {
			return err
		}
		record(audit.OpImport, "")

		fmt.Printf("Imported %d secrets from %s\n", len(result.Secrets), filepath.Base(path))
		return nil
	},
}

// importPlan describes what an import would change.
type importPlan struct {
	Created []string
	Updated []string
	Removed int
}

// planImport compares incoming against the store without modifying it. With
// replace every existing name counts as removed and every incoming name as
// created.
func planImport(store *secrets.Store, incoming map[string]string, replace bool) importPlan {
	var plan importPlan
	if replace {
		plan.Removed = store.Count()
	}
	for _, name := range cli.MapKeys(incoming) {
		if !replace && store.Has(name) {
			plan.Updated = append(plan.Updated, name)
		} else {
			plan.Created = append(plan.Created, name)
		}
	}
	return plan
}
