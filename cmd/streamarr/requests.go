package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Manage media requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests",
	RunE:  runRequestsList,
}

var requestsSubmitCmd = &cobra.Command{
	Use:   "submit <movie|tv> <tmdb-id>",
	Short: "Submit a new request",
	Long: `Submit a new media request.

Examples:
  streamarr requests submit movie 603 --user 1
  streamarr requests submit tv 1396 --user 1 --seasons 1,2,3
  streamarr requests submit movie 603 --user 1 --4k`,
	Args: cobra.ExactArgs(2),
	RunE: runRequestsSubmit,
}

var requestsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestsApprove,
}

var requestsDeclineCmd = &cobra.Command{
	Use:   "decline <id>",
	Short: "Decline a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestsDecline,
}

var requestsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an active request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestsRemove,
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	requestsCmd.AddCommand(requestsListCmd, requestsSubmitCmd,
		requestsApproveCmd, requestsDeclineCmd, requestsRemoveCmd)

	requestsListCmd.Flags().StringP("status", "s", "", "Filter by status (pending, approved, processing, available, ...)")
	requestsListCmd.Flags().Bool("active", false, "Only requests still being worked")
	requestsListCmd.Flags().IntP("limit", "n", 50, "Number of requests to show")

	requestsSubmitCmd.Flags().Int64("user", 0, "Requesting user ID (required)")
	requestsSubmitCmd.Flags().String("seasons", "", "Comma-separated season numbers (tv only; omit for all)")
	requestsSubmitCmd.Flags().Bool("4k", false, "Request the 4K variant")
	_ = requestsSubmitCmd.MarkFlagRequired("user")

	requestsApproveCmd.Flags().Int64("approver", 0, "Approving user ID")
	requestsDeclineCmd.Flags().Int64("approver", 0, "Declining user ID")
}

func runRequestsList(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	active, _ := cmd.Flags().GetBool("active")
	limit, _ := cmd.Flags().GetInt("limit")

	client := NewClient(serverURL)
	resp, err := client.Requests(status, active, limit)
	if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}

	if jsonOutput {
		printJSON(resp)
		return nil
	}

	if len(resp.Items) == 0 {
		fmt.Println("No requests")
		return nil
	}

	fmt.Printf("Requests (%d):\n\n", resp.Total)
	fmt.Printf("  %-5s %-6s %-9s %-5s %-12s %s\n", "ID", "TYPE", "TMDB", "4K", "STATUS", "SEASONS")
	fmt.Println("  " + strings.Repeat("-", 50))
	for _, req := range resp.Items {
		fourK := ""
		if req.Is4K {
			fourK = "yes"
		}
		seasons := "-"
		if len(req.Seasons) > 0 {
			seasons = joinInts(req.Seasons)
		} else if req.Type == "tv" {
			seasons = "all"
		}
		fmt.Printf("  %-5d %-6s %-9d %-5s %-12s %s\n",
			req.ID, req.Type, req.TMDBID, fourK, req.Status, seasons)
	}
	return nil
}

func runRequestsSubmit(cmd *cobra.Command, args []string) error {
	mediaType := args[0]
	tmdbID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid TMDB ID: %s", args[1])
	}
	userID, _ := cmd.Flags().GetInt64("user")
	is4k, _ := cmd.Flags().GetBool("4k")
	seasonsFlag, _ := cmd.Flags().GetString("seasons")

	var seasons []int
	if seasonsFlag != "" {
		seasons, err = parseSeasons(seasonsFlag)
		if err != nil {
			return err
		}
	}

	client := NewClient(serverURL)
	resp, err := client.SubmitRequest(SubmitRequestInput{
		UserID:  userID,
		TMDBID:  tmdbID,
		Type:    mediaType,
		Is4K:    is4k,
		Seasons: seasons,
	})
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	if jsonOutput {
		printJSON(resp)
		return nil
	}

	if !resp.Admitted {
		fmt.Printf("Rejected (%s): %s\n", resp.Code, resp.Reason)
		if len(resp.Blocked) > 0 {
			fmt.Printf("Blocked seasons: %s\n", joinInts(resp.Blocked))
		}
		return fmt.Errorf("request not admitted")
	}

	fmt.Printf("Request #%d created (%s)\n", resp.Request.ID, resp.Request.Status)
	if len(resp.Seasons) > 0 {
		fmt.Printf("Admitted seasons: %s\n", joinInts(resp.Seasons))
	}
	return nil
}

func runRequestsApprove(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request ID: %s", args[0])
	}
	approver, _ := cmd.Flags().GetInt64("approver")

	client := NewClient(serverURL)
	req, err := client.ApproveRequest(id, approver)
	if err != nil {
		return fmt.Errorf("approve failed: %w", err)
	}

	if jsonOutput {
		printJSON(req)
		return nil
	}
	fmt.Printf("Request #%d approved (%s)\n", req.ID, req.Status)
	return nil
}

func runRequestsDecline(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request ID: %s", args[0])
	}
	approver, _ := cmd.Flags().GetInt64("approver")

	client := NewClient(serverURL)
	req, err := client.DeclineRequest(id, approver)
	if err != nil {
		return fmt.Errorf("decline failed: %w", err)
	}

	if jsonOutput {
		printJSON(req)
		return nil
	}
	fmt.Printf("Request #%d declined\n", req.ID)
	return nil
}

func runRequestsRemove(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request ID: %s", args[0])
	}

	client := NewClient(serverURL)
	if err := client.RemoveRequest(id); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	fmt.Printf("Request #%d removed\n", id)
	return nil
}

func parseSeasons(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	seasons := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid season number: %s", part)
		}
		seasons = append(seasons, n)
	}
	return seasons, nil
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
