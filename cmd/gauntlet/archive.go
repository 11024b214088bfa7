package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/archive"
	"github.com/slushpile/gauntlet/internal/types"
)

var (
	archiveListLimit       int
	archiveSearchThreshold float64
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect the rejected-candidate archive",
	Long: `Query the append-only archive of eliminated, rejected, and suppressed
candidates. The archive feeds duplicate suppression: new candidates too
similar to an archived entry never compete.`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent archive entries",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		entries, err := store.ListArchiveEntries(ctx, archiveListLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s Archive is empty\n\n", yellow("ℹ"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Archive (%d entries):\n\n", cyan("≡"), len(entries))
		for _, e := range entries {
			printArchiveEntry(e)
		}
		fmt.Println()
	},
}

var archiveSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find archived entries similar to a text probe",
	Long: `Embed the probe text and rank archived entries by cosine similarity.

Requires COHERE_API_KEY; without it only an exact content-hash match can be
found, so the probe must be a verbatim copy of an archived candidate.

Example:
  gauntlet archive search "a lighthouse keeper who hears the sea speak"
  gauntlet archive search --threshold 0.6 "sentient vending machines"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		query := strings.Join(args, " ")

		embedder := archive.NewDefaultEmbedder("")
		if embedder == nil {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s COHERE_API_KEY not set: only exact content matches can be found\n", yellow("⚠"))
		}
		archiver := archive.New(store, embedder)

		probe := &types.Candidate{Content: query}
		matches, err := archiver.FindSimilar(ctx, probe, archiveSearchThreshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(matches) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No matches at threshold %.2f\n\n", yellow("ℹ"), archiveSearchThreshold)
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s %d match(es) at threshold %.2f:\n\n", cyan("≡"), len(matches), archiveSearchThreshold)
		for _, m := range matches {
			fmt.Printf("  %.3f", m.Similarity)
			printArchiveEntry(m.Entry)
		}
		fmt.Println()
	},
}

func init() {
	archiveListCmd.Flags().IntVarP(&archiveListLimit, "limit", "n", 20, "Number of entries to show")
	archiveSearchCmd.Flags().Float64Var(&archiveSearchThreshold, "threshold", 0.7, "Minimum cosine similarity for a match")
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveSearchCmd)
	rootCmd.AddCommand(archiveCmd)
}

// printArchiveEntry renders one archive row
func printArchiveEntry(e *types.ArchiveEntry) {
	gray := color.New(color.FgHiBlack).SprintFunc()

	reasonColor := color.New(color.FgHiBlack)
	switch e.Reason {
	case types.ArchiveHumanRejected:
		reasonColor = color.New(color.FgRed)
	case types.ArchiveDuplicate:
		reasonColor = color.New(color.FgYellow)
	}

	fmt.Printf("  %s %s  %s\n", gray(fmt.Sprintf("#%d", e.ID)), e.CandidateID, truncateTitle(e.Title, 60))
	fmt.Printf("      %s  round %d  %s  %s\n",
		reasonColor.Sprint(string(e.Reason)), e.Round,
		e.TournamentID, gray(e.CreatedAt.Format("2006-01-02 15:04")))
}
