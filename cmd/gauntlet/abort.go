package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/control"
)

var abortActor string

var abortCmd = &cobra.Command{
	Use:   "abort [reason]",
	Short: "Abort the active tournament",
	Long: `Abort the tournament held by the active 'gauntlet run' process.

Sends an abort over the control socket. Works mid-round (the current round
is abandoned, no partial results persist) and at the review checkpoint.
The tournament lands in the aborted phase with the reason recorded in the
audit trail.

Example:
  gauntlet abort
  gauntlet abort weak finalist crop, reseeding with a sharper prompt`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		actor := abortActor
		if actor == "" {
			actor = os.Getenv("USER")
		}
		if actor == "" {
			actor = "operator"
		}

		socketPath := control.DefaultSocketPath(filepath.Dir(dbPath))
		client := control.NewClient(socketPath)

		resp, err := client.Abort(actor, strings.Join(args, " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !resp.Success {
			fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
			os.Exit(1)
		}

		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("%s Abort delivered; the run is shutting down\n", red("✗"))
	},
}

func init() {
	abortCmd.Flags().StringVar(&abortActor, "actor", "", "Name recorded in the audit trail (default: $USER)")
	rootCmd.AddCommand(abortCmd)
}
