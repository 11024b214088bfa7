package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/slushpile/gauntlet/internal/events"
	"github.com/slushpile/gauntlet/internal/types"
)

// truncateTitle shortens a string to max runes for single-line display
func truncateTitle(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// formatSpend renders a spend total for status output
func formatSpend(s types.Spend) string {
	if s.Calls == 0 {
		return "no judge calls recorded"
	}
	return fmt.Sprintf("%d calls, %d in / %d out tokens, $%.4f",
		s.Calls, s.InputTokens, s.OutputTokens, s.CostUSD)
}

// phaseGlyph maps a tournament phase to its status glyph and color.
// Degraded completions (fewer winners than the target) show as warnings.
func phaseGlyph(t *types.Tournament) (string, *color.Color) {
	switch t.Phase {
	case types.PhaseRunning:
		return "●", color.New(color.FgGreen)
	case types.PhaseAwaitingReview:
		return "⏸", color.New(color.FgYellow)
	case types.PhaseComplete:
		if len(t.WinnerIDs) < t.TargetK {
			return "⚠", color.New(color.FgYellow)
		}
		return "✓", color.New(color.FgGreen)
	case types.PhaseAborted:
		return "✗", color.New(color.FgRed)
	}
	return "○", color.New(color.FgHiBlack)
}

// statusColor maps a candidate status to its display color
func statusColor(s types.CandidateStatus) *color.Color {
	switch s {
	case types.StatusActive:
		return color.New(color.FgGreen)
	case types.StatusUnderReview:
		return color.New(color.FgYellow)
	case types.StatusWinner:
		return color.New(color.FgGreen, color.Bold)
	case types.StatusEliminated, types.StatusArchived:
		return color.New(color.FgHiBlack)
	}
	return color.New(color.FgWhite)
}

// matchupScores orients the stored A/B aggregates around the winner
func matchupScores(m *types.Matchup) (winnerScore, loserScore float64) {
	if m.WinnerID == m.CandidateA {
		return m.ScoreA, m.ScoreB
	}
	return m.ScoreB, m.ScoreA
}

// lastScore returns the candidate's most recent scored round, skipping byes
func lastScore(c *types.Candidate) (float64, bool) {
	for i := len(c.ScoreHistory) - 1; i >= 0; i-- {
		if !c.ScoreHistory[i].Bye {
			return c.ScoreHistory[i].Score, true
		}
	}
	return 0, false
}

// printLineage prints a candidate's full round-by-round record
func printLineage(c *types.Candidate) {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s %s\n", cyan(c.ID), truncateTitle(c.Title, 70))
	fmt.Printf("  Status: %s  Round reached: %d  Batch: %s\n",
		statusColor(c.Status).Sprint(string(c.Status)), c.RoundReached, c.BatchID)

	if len(c.ScoreHistory) == 0 {
		fmt.Printf("  %s\n\n", gray("No rounds recorded"))
		return
	}

	for _, rs := range c.ScoreHistory {
		if rs.Bye {
			fmt.Printf("  Round %d: %s\n", rs.Round, gray("bye, advanced unscored"))
			continue
		}
		outcome := red("lost to")
		if rs.Won {
			outcome = green("beat")
		}
		fmt.Printf("  Round %d: %s %s  %.3f vs %.3f", rs.Round, outcome, rs.OpponentID, rs.Score, rs.OpponentScore)
		if rs.Reason != "" {
			fmt.Printf("  %s", gray(fmt.Sprintf("(%s)", rs.Reason)))
		}
		fmt.Println()
	}
	fmt.Println()
}

// displayEvent formats and prints a single audit event with color
func displayEvent(event *events.Event) {
	var severityColor *color.Color
	var severityIcon string

	switch event.Severity {
	case events.SeverityInfo:
		severityColor = color.New(color.FgCyan)
		severityIcon = "ℹ"
	case events.SeverityWarning:
		severityColor = color.New(color.FgYellow)
		severityIcon = "⚠"
	case events.SeverityError:
		severityColor = color.New(color.FgRed)
		severityIcon = "✗"
	default:
		severityColor = color.New(color.FgWhite)
		severityIcon = "•"
	}

	timestamp := event.Timestamp.Format("15:04:05")

	typeColor := color.New(color.FgMagenta)
	eventType := typeColor.Sprint(string(event.Type))

	fmt.Printf("%s [%s] %s: %s\n",
		severityIcon,
		timestamp,
		eventType,
		severityColor.Sprint(event.Message),
	)

	if event.CandidateID != "" || event.Actor != "" {
		gray := color.New(color.FgHiBlack)
		detail := ""
		if event.CandidateID != "" {
			detail = "candidate=" + event.CandidateID + " "
		}
		fmt.Printf("    %s\n", gray.Sprint(detail+"actor="+event.Actor))
	}
}
