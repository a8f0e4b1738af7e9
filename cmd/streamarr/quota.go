package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota <user-id>",
	Short: "Show a user's request quotas",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotaCmd,
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}

func runQuotaCmd(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user ID: %s", args[0])
	}

	client := NewClient(serverURL)
	q, err := client.Quota(userID)
	if err != nil {
		return fmt.Errorf("failed to fetch quota: %w", err)
	}

	if jsonOutput {
		printJSON(q)
		return nil
	}

	fmt.Printf("Quota for user %d:\n\n", q.UserID)
	fmt.Printf("  %-10s %-12s %-8s %s\n", "KIND", "WINDOW", "USED", "REMAINING")
	printDimension("movie", q.Movie)
	printDimension("tv", q.TV)
	printDimension("season", q.Season)
	printDimension("movie 4k", q.Movie4K)
	printDimension("tv 4k", q.TV4K)
	printDimension("season 4k", q.Season4K)
	return nil
}

func printDimension(name string, d QuotaDimension) {
	window := "unlimited"
	remaining := "-"
	if d.Limit > 0 {
		window = fmt.Sprintf("%d / %dd", d.Limit, d.Days)
		if d.Remaining != nil {
			remaining = strconv.Itoa(*d.Remaining)
		}
	}
	fmt.Printf("  %-10s %-12s %-8d %s\n", name, window, d.Used, remaining)
}
