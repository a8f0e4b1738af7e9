package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a library sync",
	RunE:  runSyncCmd,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync result",
	RunE:  runSyncStatusCmd,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncStatusCmd)
}

func runSyncCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)
	status, err := client.TriggerSync()
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]string{"status": status})
		return nil
	}
	if status == "already_running" {
		fmt.Println("A sync is already in progress")
	} else {
		fmt.Println("Sync started")
	}
	return nil
}

func runSyncStatusCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)
	status, err := client.SyncStatus()
	if err != nil {
		return fmt.Errorf("failed to fetch sync status: %w", err)
	}

	if jsonOutput {
		printJSON(status)
		return nil
	}

	if status.Running {
		fmt.Println("Sync: running")
	} else {
		fmt.Println("Sync: idle")
	}
	if status.FinishedAt == nil {
		fmt.Println("No completed pass yet")
		return nil
	}

	finished, _ := time.Parse(time.RFC3339, *status.FinishedAt)
	fmt.Printf("Last pass:  %s\n", finished.Local().Format(time.RFC822))
	fmt.Printf("  Servers:  %d (%d failed)\n", status.Servers, status.Failed)
	fmt.Printf("  Movies:   %d\n", status.Movies)
	fmt.Printf("  Series:   %d\n", status.Series)
	fmt.Printf("  Evicted:  %d\n", status.Evicted)
	return nil
}
