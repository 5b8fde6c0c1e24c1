package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/youmna-rabie/socket-relay/internal/config"
	"github.com/youmna-rabie/socket-relay/internal/server"
)

func init() {
	rootCmd.AddCommand(targetsCmd)
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Print configured webhook targets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listTargets(cmd.OutOrStdout())
	},
}

func listTargets(w io.Writer) error {
	cfg, err := config.Load(os.Getenv(config.PathEnv))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	targets := buildSlots(cfg).All()
	if len(targets) == 0 {
		fmt.Fprintln(w, "No webhook targets configured.")
		return nil
	}

	fmt.Fprintf(w, "%-10s %-9s %-5s %-8s %-8s %s\n", "NAME", "ROUTE", "ENV", "TIMEOUT", "INSECURE", "ENDPOINT")
	for _, t := range targets {
		fmt.Fprintf(w, "%-10s %-9s %-5s %-8s %-8t %s\n",
			t.Name, t.Route, t.Env, t.Timeout, t.InsecureSkipVerify, server.RedactURL(t.URL))
	}
	return nil
}
