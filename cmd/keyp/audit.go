package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	auditLimit int
	auditJSON  bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show (0 for all)")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Print events as JSON lines")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := v.Audit().Read(auditLimit)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		if auditJSON {
			enc := json.NewEncoder(os.Stdout)
			for i := range events {
				if err := enc.Encode(&events[i]); err != nil {
					return err
				}
			}
			return nil
		}

		for _, event := range events {
			// Format: TIMESTAMP SOURCE OPERATION RESULT [KEY] [ERROR]
			line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Actor.Source, event.Operation, event.Result)
			if event.Key != "" {
				line += fmt.Sprintf(" key:%s", event.Key)
			}
			if event.Error != nil {
				line += fmt.Sprintf(" error:%s", event.Error.Code)
			}
			fmt.Println(line)
		}
		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log hash chain integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Verifying audit log integrity...")

		result, err := v.Audit().Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Printf("✗ Audit log verification FAILED\n")
			fmt.Printf("  Records total: %d\n", result.RecordsTotal)
			fmt.Println("  Errors:")
			for _, e := range result.Errors {
				fmt.Printf("    - %s\n", e)
			}
			return errors.New("audit log integrity check failed")
		}

		fmt.Printf("✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)
		return nil
	},
}
