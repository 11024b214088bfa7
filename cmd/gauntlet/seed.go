package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/events"
	"github.com/slushpile/gauntlet/internal/judge"
	"github.com/slushpile/gauntlet/internal/types"
)

var (
	seedPrompt     string
	seedCount      int
	seedDefinition string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate a batch of candidates into the pool",
	Long: `Generate candidates from a seed prompt and store them as a batch.

The prompt comes from --prompt, or from the definition file when the flag
is omitted. Each generated candidate gets a cand-N id and joins the batch
as an active competitor. Requires ANTHROPIC_API_KEY.

Example:
  gauntlet seed -n 16
  gauntlet seed --prompt "Premises for heist stories set in small towns" -n 8
  gauntlet seed --definition contest.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		prompt := seedPrompt
		if prompt == "" {
			def, err := loadDefinition(seedDefinition)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: no --prompt given and definition could not be loaded: %v\n", err)
				os.Exit(1)
			}
			prompt = def.Prompt
		}
		if strings.TrimSpace(prompt) == "" {
			fmt.Fprintf(os.Stderr, "Error: generation prompt is empty; set prompt in the definition file or pass --prompt\n")
			os.Exit(1)
		}

		panel, err := judge.NewPanel(&judge.Config{Spend: store})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s Generating %d candidates...\n", gray("→"), seedCount)

		batchID, candidates, err := seedBatch(ctx, panel, prompt, seedCount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("\n%s Seeded batch %s with %d candidates\n\n", green("✓"), cyan(batchID), len(candidates))
		for _, c := range candidates {
			fmt.Printf("  %s  %s\n", gray(c.ID), truncateTitle(c.Title, 70))
		}
		fmt.Println()
		fmt.Printf("%s Next: gauntlet run --batch %s\n", gray("→"), batchID)
		fmt.Println()
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedPrompt, "prompt", "p", "", "Generation prompt (default: prompt from the definition file)")
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 16, "Number of candidates to generate")
	seedCmd.Flags().StringVar(&seedDefinition, "definition", "", "Definition file (default: gauntlet.yaml in the project root)")
	rootCmd.AddCommand(seedCmd)
}

// seedBatch generates candidates and persists them under a fresh batch id.
// Also used by 'gauntlet run' for inline seeding.
func seedBatch(ctx context.Context, panel *judge.Panel, prompt string, count int) (string, []*types.Candidate, error) {
	candidates, err := panel.GenerateCandidates(ctx, prompt, count)
	if err != nil {
		return "", nil, err
	}

	batchID := "batch-" + uuid.New().String()[:8]
	for _, c := range candidates {
		c.BatchID = batchID
		if err := store.CreateCandidate(ctx, c, "seeder"); err != nil {
			return "", nil, fmt.Errorf("failed to store candidate %q: %w", c.Title, err)
		}
	}

	if err := store.StoreEvent(ctx, events.NewBatchSeededEvent(batchID, "seeder", len(candidates), prompt)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record seed event: %v\n", err)
	}

	return batchID, candidates, nil
}
