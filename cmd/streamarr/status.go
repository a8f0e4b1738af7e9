package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "System status and verification",
	Long: `Show server status and optionally verify request states.

Examples:
  streamarr status            # Show server + sync status
  streamarr status --verify   # Also check for stalled requests and stale syncs`,
	RunE: runStatusCmd,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("verify", false, "Run verification checks")
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	runVerify, _ := cmd.Flags().GetBool("verify")
	client := NewClient(serverURL)

	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	sync, err := client.SyncStatus()
	if err != nil {
		// Sync may be disabled; the status line alone is still useful.
		sync = nil
	}

	if jsonOutput {
		combined := map[string]any{"status": status, "sync": sync}
		if runVerify {
			verify, err := client.Verify()
			if err != nil {
				return fmt.Errorf("verify failed: %w", err)
			}
			combined["verify"] = verify
		}
		printJSON(combined)
		return nil
	}

	fmt.Printf("Server: %s (%s)\n", serverURL, status.Status)
	if sync != nil {
		state := "idle"
		if sync.Running {
			state = "running"
		}
		fmt.Printf("Sync:   %s", state)
		if sync.FinishedAt != nil {
			fmt.Printf(" | last pass: %d servers, %d movies, %d series", sync.Servers, sync.Movies, sync.Series)
		}
		fmt.Println()
	}

	if !runVerify {
		return nil
	}

	fmt.Println()
	result, err := client.Verify()
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	printVerifyResult(result)
	return nil
}

func printVerifyResult(r *VerifyResponse) {
	fmt.Printf("Verification (%d checked, %d passed):\n\n", r.Checked, r.Passed)

	if len(r.Problems) == 0 {
		fmt.Println("No problems detected.")
		return
	}

	for i := range r.Problems {
		p := &r.Problems[i]
		switch {
		case p.RequestID != 0:
			fmt.Printf("  Request #%d | %s\n", p.RequestID, p.Status)
		case p.ServerID != 0:
			fmt.Printf("  Server #%d | %s\n", p.ServerID, p.Title)
		}
		if p.Since != "" {
			fmt.Printf("    Since:  %s\n", p.Since)
		}
		fmt.Printf("    Issue:  %s\n", p.Issue)
		fmt.Printf("    Likely: %s\n", p.Likely)
		fmt.Printf("    Fix:    %s\n", strings.Join(p.Fixes, "\n            "))
		fmt.Println()
	}

	fmt.Printf("%d problems found. Run suggested commands to resolve.\n", len(r.Problems))
}
