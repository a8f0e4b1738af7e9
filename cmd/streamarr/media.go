package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Inspect tracked availability",
}

var mediaStatusCmd = &cobra.Command{
	Use:   "status <movie|tv> <tmdb-id>",
	Short: "Show tracked status for a title",
	Args:  cobra.ExactArgs(2),
	RunE:  runMediaStatus,
}

var mediaClearCmd = &cobra.Command{
	Use:   "clear <movie|tv> <tmdb-id>",
	Short: "Clear tracked status so the title can be re-requested",
	Args:  cobra.ExactArgs(2),
	RunE:  runMediaClear,
}

func init() {
	rootCmd.AddCommand(mediaCmd)
	mediaCmd.AddCommand(mediaStatusCmd, mediaClearCmd)
}

func runMediaStatus(cmd *cobra.Command, args []string) error {
	tmdbID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid TMDB ID: %s", args[1])
	}

	client := NewClient(serverURL)
	rec, err := client.Media(args[0], tmdbID)
	if err != nil {
		return fmt.Errorf("failed to fetch media: %w", err)
	}

	if jsonOutput {
		printJSON(rec)
		return nil
	}

	fmt.Printf("%s tmdb:%d\n", rec.Type, rec.TMDBID)
	if rec.TVDBID != nil {
		fmt.Printf("  TVDB:     %d\n", *rec.TVDBID)
	}
	fmt.Printf("  Status:   %s\n", rec.Status)
	fmt.Printf("  Status4K: %s\n", rec.Status4K)
	if len(rec.Seasons) > 0 {
		fmt.Println("  Seasons:")
		for _, se := range rec.Seasons {
			fmt.Printf("    S%02d  %s / %s (4k)\n", se.SeasonNumber, se.Status, se.Status4K)
		}
	}
	return nil
}

func runMediaClear(cmd *cobra.Command, args []string) error {
	tmdbID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid TMDB ID: %s", args[1])
	}

	client := NewClient(serverURL)
	if err := client.ClearMedia(args[0], tmdbID); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Printf("Cleared %s tmdb:%d\n", args[0], tmdbID)
	return nil
}
