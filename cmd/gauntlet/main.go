package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/storage"
)

const version = "0.1.0"

var (
	dbPath string
	store  storage.Storage
)

// noStoreCommands run before a database exists, or never touch one
var noStoreCommands = map[string]bool{
	"init":       true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "gauntlet",
	Short: "Tournament evaluation engine for generated candidates",
	Long: `Gauntlet reduces a pool of generated candidates to K winners through
pairwise elimination rounds judged by a panel of personas.

Each round pairs the survivors, a judge panel scores every matchup against
weighted criteria, losers are archived, and the bracket repeats until only
the target number of finalists remain. The run then pauses for human review
before the winners are final. Every decision lands in an append-only audit
trail, and the archive of rejected candidates feeds duplicate suppression
in later runs.

Typical workflow:
  gauntlet init                # Create .gauntlet/ and a starter definition
  gauntlet seed -n 16          # Generate a candidate batch
  gauntlet run                 # Run the tournament
  gauntlet review              # Decide the finalists (second terminal)
  gauntlet audit               # Replay the matchup trail`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noStoreCommands[cmd.Name()] {
			return nil
		}

		if dbPath == "" {
			discovered, err := storage.DiscoverDatabase()
			if err != nil {
				return err
			}
			dbPath = discovered
		}

		s, err := storage.NewStorage(context.Background(), &storage.Config{Path: dbPath})
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", dbPath, err)
		}
		store = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"Path to database (default: .gauntlet/*.db in current directory, or GAUNTLET_DB)")
}
