package main

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	apiURL string
	token  string
)

var rootCmd = &cobra.Command{
	Use:   "boardctl",
	Short: "Work with taskboard boards from the terminal",
	Long: `boardctl talks to a board-api server over its REST and websocket
surfaces. It can follow a board live, move cards and lists, and drain the
activity export queue.

The server and credentials default to BOARD_API_URL and BOARD_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("BOARD_API_URL", "http://localhost:4000"), "board-api base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("BOARD_TOKEN"), "bearer token")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// wsURL maps the API base URL onto its websocket endpoint.
func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
