package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/types"
)

var (
	auditEvents  bool
	auditVerbose bool
)

var auditCmd = &cobra.Command{
	Use:   "audit [tournament-id]",
	Short: "Replay a tournament's matchup trail",
	Long: `Render the complete audit trail of a tournament: every round, every
matchup, every verdict, and how each winner was determined.

With no argument the most recent tournament is shown. The default view is
the structured bracket replay; --events switches to the raw append-only
event stream (checkpoint decisions, status changes, judge failures, spend).

Examples:
  gauntlet audit                      # Replay the latest tournament
  gauntlet audit trn-4f9f12a8         # Replay a specific tournament
  gauntlet audit --verbose            # Include per-persona verdicts
  gauntlet audit --events             # Raw event stream`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		t, err := resolveTournament(ctx, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if auditEvents {
			printEventStream(ctx, t.ID)
			return
		}
		printBracketReplay(ctx, t)
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditEvents, "events", false, "Show the raw audit event stream instead of the bracket replay")
	auditCmd.Flags().BoolVarP(&auditVerbose, "verbose", "v", false, "Include per-persona verdicts and rationales")
	rootCmd.AddCommand(auditCmd)
}

// resolveTournament picks the tournament named by args, or the latest
func resolveTournament(ctx context.Context, args []string) (*types.Tournament, error) {
	if len(args) == 1 {
		t, err := store.GetTournament(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("tournament %s not found", args[0])
		}
		return t, nil
	}

	list, err := store.ListTournaments(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no tournaments recorded yet")
	}
	return list[0], nil
}

// printEventStream renders the raw audit events, oldest first
func printEventStream(ctx context.Context, tournamentID string) {
	eventList, err := store.GetEventsByTournament(ctx, tournamentID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to fetch events: %v\n", err)
		os.Exit(1)
	}

	if len(eventList) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s No events recorded for %s\n\n", yellow("ℹ"), tournamentID)
		return
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("\n%s Audit stream for %s (%d events):\n\n", cyan("≡"), tournamentID, len(eventList))
	for _, e := range eventList {
		displayEvent(e)
	}
	fmt.Println()
}

// printBracketReplay renders the tournament round by round
func printBracketReplay(ctx context.Context, t *types.Tournament) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	glyph, phaseC := phaseGlyph(t)
	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Tournament %s ===", t.ID)))
	fmt.Printf("  Phase: %s %s  Target: %d  Rounds: %d\n",
		phaseC.Sprint(glyph), phaseC.Sprint(string(t.Phase)), t.TargetK, t.LastRound)
	fmt.Printf("  Created: %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.AbortReason != "" {
		fmt.Printf("  Abort reason: %s\n", red(t.AbortReason))
	}
	fmt.Println()

	rounds, err := store.GetRounds(ctx, t.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load rounds: %v\n", err)
		os.Exit(1)
	}

	for _, r := range rounds {
		fmt.Printf("%s\n", yellow(fmt.Sprintf("Round %d: %d candidates -> %d", r.Number, len(r.InputIDs), len(r.OutputIDs))))
		if r.ByeID != "" {
			fmt.Printf("  %s %s advances on a bye\n", gray("○"), r.ByeID)
		}

		matchups, err := store.GetMatchups(ctx, t.ID, r.Number)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load matchups for round %d: %v\n", r.Number, err)
			os.Exit(1)
		}
		for _, m := range matchups {
			printMatchup(m)
		}
		fmt.Println()
	}

	if len(t.WinnerIDs) > 0 {
		fmt.Printf("%s\n", yellow("Winners:"))
		for _, id := range t.WinnerIDs {
			c, err := store.GetCandidate(ctx, id)
			if err != nil || c == nil {
				fmt.Printf("  %s %s\n", green("★"), id)
				continue
			}
			fmt.Printf("  %s %s  %s\n", green("★"), gray(id), truncateTitle(c.Title, 70))
		}
		fmt.Println()
	}

	spend, err := store.GetSpend(ctx, t.ID)
	if err == nil {
		fmt.Printf("%s %s\n\n", gray("Spend:"), formatSpend(spend))
	}
}

// printMatchup renders one matchup line, plus the verdict table when verbose
func printMatchup(m *types.Matchup) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if !m.Resolved() {
		fmt.Printf("  %s %s vs %s (unresolved)\n", yellow("?"), m.CandidateA, m.CandidateB)
		return
	}

	winnerScore, loserScore := matchupScores(m)
	fmt.Printf("  %s %s beat %s  %.3f vs %.3f  %s\n",
		green("✓"), m.WinnerID, m.LoserID(), winnerScore, loserScore,
		gray(fmt.Sprintf("(%s)", m.Reason)))

	if !auditVerbose {
		return
	}
	for _, v := range m.Verdicts {
		if v.Unavailable {
			fmt.Printf("      %s %s unavailable: %s\n", yellow("⚠"), v.Persona, truncateTitle(v.Rationale, 60))
			continue
		}
		fmt.Printf("      %s:", v.Persona)
		for _, cs := range v.Scores {
			fmt.Printf(" %s a=%.2f b=%.2f", cs.Criterion, cs.A, cs.B)
		}
		fmt.Println()
		if v.Rationale != "" {
			fmt.Printf("        %s\n", gray(truncateTitle(v.Rationale, 90)))
		}
	}
}
