package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "socket-relay",
	Short: "Relay chat-platform socket events to webhooks",
	Long: "socket-relay holds a socket-mode connection to the chat platform and forwards " +
		"slash commands, event callbacks and interactions to the webhook targets named " +
		"by WEBHOOK_URL_* environment variables.",
	SilenceUsage: true,
	RunE:         runRelay,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
