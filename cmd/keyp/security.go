package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/forest6511/keyp/pkg/security"

	"github.com/spf13/cobra"
)

// Security command flags
var (
	securityVerbose bool
	securityJSON    bool
)

func init() {
	rootCmd.AddCommand(securityCmd)

	securityCmd.Flags().BoolVarP(&securityVerbose, "verbose", "v", false, "Show every issue and duplicate group")
	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output in JSON format")
}

// maxShown bounds issues listed without --verbose.
const maxShown = 5

// securityCmd rates stored values and reports reuse.
var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze vault security health",
	Long: `Analyze the strength of stored values and find values used more than once.

The score (0-100) is the average strength of all values, reduced for every
reused value. Values are never printed.

Example:
  keyp security              # Show score and top issues
  keyp security --verbose    # Show every issue
  keyp security --json       # Output in JSON format`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}
		defer v.Lock()

		report, err := security.Analyze(v.Data().Snapshot())
		if err != nil {
			return fmt.Errorf("failed to analyze vault: %w", err)
		}

		if securityJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report, securityVerbose)
		return nil
	},
}

func printReport(r *security.Report, verbose bool) {
	fmt.Printf("Security score: %d/100 (%d secrets)\n", r.Score, r.Total)
	if r.Total == 0 {
		return
	}

	fmt.Println()
	fmt.Println("Strength:")
	for _, s := range []security.Strength{security.Strong, security.Good, security.Fair, security.Weak} {
		fmt.Printf("  %-7s %d\n", s.String()+":", r.Strength[s.String()])
	}

	if len(r.Duplicates) > 0 {
		fmt.Println()
		fmt.Println("Reused values:")
		for i, g := range r.Duplicates {
			if !verbose && i == maxShown {
				fmt.Printf("  ... %d more (use --verbose)\n", len(r.Duplicates)-maxShown)
				break
			}
			fmt.Printf("  %s\n", strings.Join(g.Names, ", "))
		}
	}

	if len(r.Issues) == 0 {
		fmt.Println()
		fmt.Println("No issues found")
		return
	}
	fmt.Println()
	fmt.Println("Issues:")
	for i, issue := range r.Issues {
		if !verbose && i == maxShown {
			fmt.Printf("  ... %d more (use --verbose)\n", len(r.Issues)-maxShown)
			break
		}
		fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Name, issue.Description)
		if verbose && issue.Suggestion != "" {
			fmt.Printf("           %s\n", issue.Suggestion)
		}
	}
}
