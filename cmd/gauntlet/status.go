package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/control"
	"github.com/slushpile/gauntlet/internal/types"
)

var statusLive bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tournament and candidate pool status",
	Long: `Display recent tournaments, the candidate pool breakdown, and judge spend.

With --live, query the active 'gauntlet run' process over the control socket
for its in-flight view (current checkpoint, pending finalists).`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Gauntlet Status ==="))

		if statusLive {
			runLiveStatus()
			return
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		// Recent tournaments
		fmt.Printf("%s\n", yellow("Tournaments:"))
		tournaments, err := store.ListTournaments(ctx, 5)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list tournaments: %v\n", err)
			os.Exit(1)
		}
		if len(tournaments) == 0 {
			fmt.Printf("  %s\n", gray("No tournaments yet"))
			fmt.Printf("  %s\n", gray("Run 'gauntlet seed' then 'gauntlet run' to start one"))
		} else {
			for _, t := range tournaments {
				glyph, c := phaseGlyph(t)
				fmt.Printf("  %s %s\n", c.Sprint(glyph), t.ID)
				fmt.Printf("    Phase: %s  Round: %d  Target: %d  Winners: %d\n",
					c.Sprint(string(t.Phase)), t.LastRound, t.TargetK, len(t.WinnerIDs))
				if t.BatchID != "" {
					fmt.Printf("    Batch: %s\n", t.BatchID)
				}
				fmt.Printf("    Created: %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
				if t.Phase == types.PhaseAwaitingReview {
					fmt.Printf("    %s\n", yellow("Run 'gauntlet review' to decide the finalists"))
				}
				if t.Phase == types.PhaseAborted && t.AbortReason != "" {
					fmt.Printf("    Reason: %s\n", red(t.AbortReason))
				}
				fmt.Println()
			}
		}

		// Candidate pool breakdown
		fmt.Printf("%s\n", yellow("Candidate Pool:"))
		statuses := []types.CandidateStatus{
			types.StatusActive, types.StatusUnderReview, types.StatusWinner,
			types.StatusEliminated, types.StatusArchived,
		}
		total := 0
		for _, status := range statuses {
			candidates, err := store.GetCandidatesByStatus(ctx, status)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to count %s candidates: %v\n", status, err)
				os.Exit(1)
			}
			total += len(candidates)
			fmt.Printf("  %-13s %s\n", string(status)+":", statusColor(status).Sprintf("%d", len(candidates)))
		}
		fmt.Printf("  %-13s %d\n", "total:", total)
		fmt.Println()

		// Spend for the latest tournament
		if len(tournaments) > 0 {
			latest := tournaments[0]
			spend, err := store.GetSpend(ctx, latest.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to read spend for %s: %v\n", latest.ID, err)
			} else {
				fmt.Printf("%s\n", yellow(fmt.Sprintf("Judge Spend (%s):", latest.ID)))
				fmt.Printf("  %s\n", formatSpend(spend))
				fmt.Println()
			}
		}
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusLive, "live", false, "Query the active run over the control socket")
	rootCmd.AddCommand(statusCmd)
}

// runLiveStatus asks the running tournament process for its in-flight view
func runLiveStatus() {
	socketPath := control.DefaultSocketPath(filepath.Dir(dbPath))
	client := control.NewClient(socketPath)

	resp, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	tournamentID, round, pending, reviewing := pendingFromResponse(resp)
	if !reviewing {
		fmt.Printf("%s Run active, rounds in progress (no checkpoint pending)\n\n", green("●"))
		return
	}

	fmt.Printf("%s Checkpoint pending: tournament %s, after round %d\n\n", yellow("⏸"), tournamentID, round)
	ctx := context.Background()
	for _, id := range pending {
		c, err := store.GetCandidate(ctx, id)
		if err != nil || c == nil {
			fmt.Printf("  %s\n", id)
			continue
		}
		fmt.Printf("  %s  %s\n", gray(id), truncateTitle(c.Title, 70))
	}
	fmt.Println()
	fmt.Printf("%s Run 'gauntlet review' to decide\n\n", gray("→"))
}

// pendingFromResponse unpacks the status payload. JSON round-trips numbers
// as float64 and arrays as []interface{}.
func pendingFromResponse(resp *control.Response) (tournamentID string, round int, ids []string, reviewing bool) {
	reviewing, _ = resp.Data["reviewing"].(bool)
	if !reviewing {
		return
	}
	tournamentID, _ = resp.Data["tournament_id"].(string)
	if r, ok := resp.Data["round"].(float64); ok {
		round = int(r)
	}
	if raw, ok := resp.Data["pending"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return
}
