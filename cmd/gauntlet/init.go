package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/config"
	"github.com/slushpile/gauntlet/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize a gauntlet workspace in the current directory",
	Long: `Initialize a gauntlet workspace by creating a .gauntlet/ directory with a
database and a starter tournament definition.

This creates:
  - .gauntlet/ directory
  - .gauntlet/<project-name>.db (SQLite database)
  - gauntlet.yaml (starter definition: prompt, criteria, personas)

If no project name is provided, the database is named gauntlet.db. An
existing gauntlet.yaml is never overwritten.

Example:
  cd ~/premises
  gauntlet init                    # Creates .gauntlet/gauntlet.db
  gauntlet init slushpile          # Creates .gauntlet/slushpile.db`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectName := ""
		if len(args) > 0 {
			projectName = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get current directory: %v\n", err)
			os.Exit(1)
		}

		newDBPath, err := storage.InitProject(cwd, projectName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Opening the store once creates the schema
		ctx := context.Background()
		db, err := storage.NewStorage(ctx, &storage.Config{Path: newDBPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize database: %v\n", err)
			os.Exit(1)
		}
		_ = db.Close() // Ignore close error during initialization

		defPath := filepath.Join(cwd, "gauntlet.yaml")
		wroteDefinition := false
		if _, err := os.Stat(defPath); os.IsNotExist(err) {
			if err := config.SaveDefaultDefinition(defPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to write starter definition: %v\n", err)
			} else {
				wroteDefinition = true
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized gauntlet workspace\n\n", green("✓"))
		fmt.Printf("  Database:   %s\n", cyan(newDBPath))
		if wroteDefinition {
			fmt.Printf("  Definition: %s (starter, edit before running)\n", cyan(defPath))
		} else {
			fmt.Printf("  Definition: %s (existing, kept)\n", cyan(defPath))
		}
		fmt.Println()

		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("$EDITOR gauntlet.yaml       # prompt, criteria, personas, target_k"))
		fmt.Printf("  %s\n", gray("gauntlet seed -n 16         # generate a candidate batch"))
		fmt.Printf("  %s\n", gray("gauntlet run                # run the tournament"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
