package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage download-manager servers",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured servers",
	RunE:  runServersList,
}

var serversAddCmd = &cobra.Command{
	Use:   "add <movie|tv> <name>",
	Short: "Add a server",
	Long: `Add a download-manager server.

Examples:
  streamarr servers add movie radarr-hd --url http://radarr:7878 --api-key KEY
  streamarr servers add tv sonarr-4k --url http://sonarr:8989 --api-key KEY --4k --default`,
	Args: cobra.ExactArgs(2),
	RunE: runServersAdd,
}

var serversRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServersRemove,
}

var serversDefaultCmd = &cobra.Command{
	Use:   "default <id>",
	Short: "Make a server the default for its type and variant",
	Args:  cobra.ExactArgs(1),
	RunE:  runServersDefault,
}

func init() {
	rootCmd.AddCommand(serversCmd)
	serversCmd.AddCommand(serversListCmd, serversAddCmd, serversRemoveCmd, serversDefaultCmd)

	serversAddCmd.Flags().String("url", "", "Server base URL (required)")
	serversAddCmd.Flags().String("api-key", "", "Server API key (required)")
	serversAddCmd.Flags().Int("profile", 0, "Quality profile ID")
	serversAddCmd.Flags().String("root", "", "Root folder path")
	serversAddCmd.Flags().Bool("4k", false, "Server holds the 4K library")
	serversAddCmd.Flags().Bool("default", false, "Make this the default server")
	serversAddCmd.Flags().Bool("search-on-add", false, "Start searching when a title is added")
	_ = serversAddCmd.MarkFlagRequired("url")
	_ = serversAddCmd.MarkFlagRequired("api-key")
}

func runServersList(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)
	servers, err := client.Servers()
	if err != nil {
		return fmt.Errorf("failed to list servers: %w", err)
	}

	if jsonOutput {
		printJSON(servers)
		return nil
	}

	if len(servers) == 0 {
		fmt.Println("No servers configured")
		return nil
	}

	fmt.Printf("  %-4s %-16s %-6s %-4s %-8s %-8s %s\n",
		"ID", "NAME", "TYPE", "4K", "DEFAULT", "ACTIVE", "LAST SYNC")
	fmt.Println("  " + strings.Repeat("-", 62))
	for _, srv := range servers {
		flags := func(b bool) string {
			if b {
				return "yes"
			}
			return ""
		}
		lastSync := "never"
		if srv.LastLibrarySync != nil {
			if t, err := time.Parse(time.RFC3339, *srv.LastLibrarySync); err == nil {
				lastSync = time.Since(t).Round(time.Minute).String() + " ago"
			}
		}
		fmt.Printf("  %-4d %-16s %-6s %-4s %-8s %-8s %s\n",
			srv.ID, srv.Name, srv.Type, flags(srv.Is4K), flags(srv.IsDefault), flags(srv.Active), lastSync)
	}
	return nil
}

func runServersAdd(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	apiKey, _ := cmd.Flags().GetString("api-key")
	profile, _ := cmd.Flags().GetInt("profile")
	root, _ := cmd.Flags().GetString("root")
	is4k, _ := cmd.Flags().GetBool("4k")
	isDefault, _ := cmd.Flags().GetBool("default")
	searchOnAdd, _ := cmd.Flags().GetBool("search-on-add")

	client := NewClient(serverURL)
	srv, err := client.AddServer(map[string]any{
		"server_type":     args[0],
		"name":            args[1],
		"url":             url,
		"api_key":         apiKey,
		"quality_profile": profile,
		"root_folder":     root,
		"is_4k":           is4k,
		"is_default":      isDefault,
		"search_on_add":   searchOnAdd,
	})
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}

	if jsonOutput {
		printJSON(srv)
		return nil
	}
	fmt.Printf("Server #%d (%s) added\n", srv.ID, srv.Name)
	return nil
}

func runServersRemove(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid server ID: %s", args[0])
	}

	client := NewClient(serverURL)
	if err := client.RemoveServer(id); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	fmt.Printf("Server #%d removed\n", id)
	return nil
}

func runServersDefault(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid server ID: %s", args[0])
	}

	client := NewClient(serverURL)
	if err := client.SetDefaultServer(id); err != nil {
		return fmt.Errorf("set default failed: %w", err)
	}
	fmt.Printf("Server #%d is now the default\n", id)
	return nil
}
