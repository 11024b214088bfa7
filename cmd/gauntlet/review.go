package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/control"
)

var reviewActor string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactive checkpoint review shell",
	Long: `Review the finalists of a tournament paused at the human checkpoint.

Connects to the control socket of the active 'gauntlet run' process and
opens an interactive shell:

  show                   List pending finalists with their last scores
  lineage <id>           Show a candidate's round-by-round record
  reject <id> [note]     Reject a finalist (archived as human_rejected)
  reinstate <id> [note]  Return an eliminated candidate to the finalist set
  approve                Approve the pending finalists and resume the run
  abort [reason]         Abort the tournament
  help                   Show commands
  exit                   Leave the shell (the run keeps waiting)

Rejections shrink the winner set; the tournament completes with fewer than
K winners rather than refilling from eliminated candidates. Reinstatement
is the one exception, available only here and always logged.

Example:
  gauntlet review --actor alice`,
	Run: func(cmd *cobra.Command, args []string) {
		actor := reviewActor
		if actor == "" {
			actor = os.Getenv("USER")
		}
		if actor == "" {
			actor = "reviewer"
		}

		if err := runReviewShell(actor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewActor, "actor", "", "Reviewer name recorded in the audit trail (default: $USER)")
	rootCmd.AddCommand(reviewCmd)
}

// runReviewShell drives the readline loop against the control socket
func runReviewShell(actor string) error {
	socketPath := control.DefaultSocketPath(filepath.Dir(dbPath))
	client := control.NewClient(socketPath)

	// Fail fast when no run is listening
	if _, err := client.Status(); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("\n%s\n", cyan("Gauntlet checkpoint review"))
	fmt.Printf("Reviewing as %s. Type 'help' for commands, 'exit' to leave.\n\n", actor)

	if err := showPending(client); err != nil {
		fmt.Printf("%s %v\n", red("Error:"), err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("review> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Printf("%s The run keeps waiting; rerun 'gauntlet review' to resume\n", gray("→"))
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		done, err := runReviewCommand(client, actor, parts[0], parts[1:])
		if err != nil {
			fmt.Printf("%s %v\n", red("Error:"), err)
			continue
		}
		if done {
			return nil
		}
	}
}

// runReviewCommand dispatches one shell command. done reports that the
// shell should exit.
func runReviewCommand(client *control.Client, actor, command string, args []string) (done bool, err error) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	switch command {
	case "show":
		return false, showPending(client)

	case "lineage":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: lineage <candidate-id>")
		}
		return false, showLineage(args[0])

	case "reject":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: reject <candidate-id> [note]")
		}
		resp, err := client.Reject(args[0], actor, strings.Join(args[1:], " "))
		if err != nil {
			return false, err
		}
		if !resp.Success {
			return false, errors.New(resp.Error)
		}
		fmt.Printf("%s Rejected %s\n", green("✓"), args[0])
		return false, showPending(client)

	case "reinstate":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: reinstate <candidate-id> [note]")
		}
		resp, err := client.Reinstate(args[0], actor, strings.Join(args[1:], " "))
		if err != nil {
			return false, err
		}
		if !resp.Success {
			return false, errors.New(resp.Error)
		}
		fmt.Printf("%s Reinstated %s\n", green("✓"), args[0])
		return false, showPending(client)

	case "approve":
		resp, err := client.Approve(actor)
		if err != nil {
			return false, err
		}
		if !resp.Success {
			return false, errors.New(resp.Error)
		}
		fmt.Printf("%s Finalists approved; the run is resuming\n", green("✓"))
		return true, nil

	case "abort":
		resp, err := client.Abort(actor, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		if !resp.Success {
			return false, errors.New(resp.Error)
		}
		fmt.Printf("%s Tournament aborted\n", red("✗"))
		return true, nil

	case "help", "?":
		printReviewHelp()
		return false, nil

	case "exit", "quit":
		fmt.Printf("%s The run keeps waiting; rerun 'gauntlet review' to resume\n", gray("→"))
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q (try 'help')", command)
	}
}

// showPending renders the controller's authoritative pending finalist set
func showPending(client *control.Client) error {
	resp, err := client.Status()
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	tournamentID, round, pending, reviewing := pendingFromResponse(resp)
	if !reviewing {
		fmt.Printf("%s No checkpoint pending; the run is mid-round\n", yellow("ℹ"))
		return nil
	}

	fmt.Printf("%s Tournament %s, checkpoint after round %d, %d finalist(s):\n",
		yellow("⏸"), tournamentID, round, len(pending))

	ctx := context.Background()
	for _, id := range pending {
		c, err := store.GetCandidate(ctx, id)
		if err != nil || c == nil {
			fmt.Printf("  %s\n", id)
			continue
		}
		score, hasScore := lastScore(c)
		if hasScore {
			fmt.Printf("  %s  %.3f  %s\n", gray(id), score, truncateTitle(c.Title, 60))
		} else {
			fmt.Printf("  %s  %s\n", gray(id), truncateTitle(c.Title, 60))
		}
	}
	fmt.Println()
	return nil
}

// showLineage prints a candidate's full tournament record from the store
func showLineage(candidateID string) error {
	c, err := store.GetCandidate(context.Background(), candidateID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("candidate %s not found", candidateID)
	}
	printLineage(c)
	return nil
}

func printReviewHelp() {
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Println()
	commands := []struct {
		name string
		desc string
	}{
		{"show", "List pending finalists with their last scores"},
		{"lineage <id>", "Show a candidate's round-by-round record"},
		{"reject <id> [note]", "Reject a finalist (archived as human_rejected)"},
		{"reinstate <id> [note]", "Return an eliminated candidate to the finalist set"},
		{"approve", "Approve the pending finalists and resume the run"},
		{"abort [reason]", "Abort the tournament"},
		{"exit", "Leave the shell (the run keeps waiting)"},
	}
	for _, cmd := range commands {
		fmt.Printf("  %s%s %s\n", green(cmd.name), strings.Repeat(" ", 22-len(cmd.name)), cmd.desc)
	}
	fmt.Println()
}
