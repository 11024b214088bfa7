package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/slushpile/gauntlet/internal/archive"
	"github.com/slushpile/gauntlet/internal/config"
	"github.com/slushpile/gauntlet/internal/control"
	"github.com/slushpile/gauntlet/internal/judge"
	"github.com/slushpile/gauntlet/internal/storage"
	"github.com/slushpile/gauntlet/internal/tournament"
	"github.com/slushpile/gauntlet/internal/types"
)

var (
	runBatch         string
	runDefinition    string
	runTarget        int
	runCount         int
	runAutoApprove   bool
	runReviewTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an elimination tournament down to K winners",
	Long: `Run a tournament over a candidate batch.

The run will:
1. Acquire the run lock (one tournament per workspace)
2. Suppress near-duplicates of archived entries before round one
3. Pair the survivors each round with the deterministic bracket
4. Judge every matchup with the persona panel
5. Pause at the finalist checkpoint for human review
6. Archive every elimination and record the full audit trail

While the run waits at the checkpoint, use 'gauntlet review' from another
terminal to inspect, reject, or reinstate finalists. 'gauntlet abort' ends
the run at any point. Ctrl+C aborts gracefully; a second Ctrl+C force-quits.

Engine knobs (concurrency, retries, thresholds) come from GAUNTLET_*
environment variables.

Examples:
  gauntlet run                          # Seed from gauntlet.yaml, then run
  gauntlet run --batch batch-4f9f12a8   # Run an existing batch
  gauntlet run --target 1               # Single winner
  gauntlet run --auto-approve           # Unattended: skip the checkpoint
  gauntlet run --review-timeout 30m     # Watchdog rejects finalists after 30m`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		engineCfg, err := config.ConfigFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if runAutoApprove {
			engineCfg.AutoApprove = true
		}
		if cmd.Flags().Changed("review-timeout") {
			engineCfg.ReviewTimeout = runReviewTimeout
		}

		def, err := loadDefinition(runDefinition)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		targetK := def.TargetK
		if runTarget > 0 {
			targetK = runTarget
		}

		lockPath, err := storage.AcquireRunLock(dbPath, version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := storage.ReleaseRunLock(lockPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to release run lock: %v\n", err)
			}
		}()

		panel, err := judge.NewPanel(&judge.Config{
			Spend: store,
			Retry: retryFromEngine(engineCfg),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := panel.HealthCheck(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		embedder := archive.NewDefaultEmbedder("")
		if embedder == nil {
			fmt.Printf("%s COHERE_API_KEY not set: duplicate suppression degrades to exact-hash matching\n", yellow("⚠"))
		}
		archiver := archive.New(store, embedder)

		// Collect the candidate pool
		var candidateIDs []string
		if runBatch != "" {
			pool, err := store.GetCandidatesByBatch(ctx, runBatch)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			for _, c := range pool {
				if c.Status == types.StatusActive {
					candidateIDs = append(candidateIDs, c.ID)
				}
			}
			if len(candidateIDs) == 0 {
				fmt.Fprintf(os.Stderr, "Error: batch %s has no active candidates\n", runBatch)
				os.Exit(1)
			}
		} else {
			fmt.Printf("%s Seeding %d candidates from the definition prompt...\n", gray("→"), runCount)
			batchID, candidates, err := seedBatch(ctx, panel, def.Prompt, runCount)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Seeded batch %s (%d candidates)\n", green("✓"), batchID, len(candidates))
			for _, c := range candidates {
				candidateIDs = append(candidateIDs, c.ID)
			}
		}

		ctrl, err := tournament.New(&tournament.Config{
			Store:    store,
			Judge:    panel,
			Archiver: archiver,
			Engine:   engineCfg,
			OnCheckpoint: func(info tournament.CheckpointInfo) {
				printCheckpointNotice(info, engineCfg.AutoApprove)
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Control socket for review/abort clients in other processes
		socketPath := control.DefaultSocketPath(filepath.Dir(dbPath))
		srv, err := control.NewServer(socketPath, controlHandler(ctrl))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: review socket unavailable: %v\n", err)
		} else if err := srv.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: review socket failed to start: %v\n", err)
		} else {
			defer func() {
				if err := srv.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: review socket shutdown: %v\n", err)
				}
			}()
		}

		// First signal aborts the tournament cleanly, second force-quits
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			fmt.Fprintf(os.Stderr, "\nInterrupt: aborting tournament (Ctrl+C again to force quit)...\n")
			if err := ctrl.Abort("signal", "interrupted by operator"); err != nil {
				cancel()
			}
			<-sigCh
			cancel()
		}()

		fmt.Printf("\n%s Tournament starting: %d candidates -> %d winner(s), panel of %d\n",
			green("✓"), len(candidateIDs), targetK, len(def.Personas))
		fmt.Printf("  Matchup concurrency: %d, review timeout: %s\n",
			engineCfg.MaxConcurrentMatchups, reviewTimeoutLabel(engineCfg))
		fmt.Println()

		result, err := ctrl.Run(ctx, candidateIDs, targetK, def.Criteria, def.Personas)
		if result != nil {
			printResult(result)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&runBatch, "batch", "b", "", "Run an existing batch instead of seeding inline")
	runCmd.Flags().StringVar(&runDefinition, "definition", "", "Definition file (default: gauntlet.yaml in the project root)")
	runCmd.Flags().IntVarP(&runTarget, "target", "k", 0, "Override the definition's target winner count")
	runCmd.Flags().IntVarP(&runCount, "count", "n", 16, "Candidates to seed when no --batch is given")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Skip the human checkpoint (can also use GAUNTLET_AUTO_APPROVE=true)")
	runCmd.Flags().DurationVar(&runReviewTimeout, "review-timeout", 0, "Force-reject finalists if review takes longer than this (0 = wait forever)")
	rootCmd.AddCommand(runCmd)
}

// loadDefinition loads the tournament definition, defaulting to gauntlet.yaml
// next to the .gauntlet directory.
func loadDefinition(path string) (*config.Definition, error) {
	if path != "" {
		return config.LoadDefinition(path)
	}
	root, err := storage.GetProjectRoot(dbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate gauntlet.yaml (use --definition): %w", err)
	}
	return config.LoadDefinition(filepath.Join(root, "gauntlet.yaml"))
}

// retryFromEngine maps the engine knobs onto the panel retry policy. Circuit
// breaker and backoff-shape settings keep their defaults.
func retryFromEngine(cfg config.Config) judge.RetryConfig {
	retry := judge.DefaultRetryConfig()
	retry.MaxRetries = cfg.JudgeMaxRetries
	retry.InitialBackoff = cfg.JudgeInitialBackoff
	retry.Timeout = cfg.JudgeRequestTimeout
	retry.RequestsPerSecond = cfg.JudgeRequestsPerSecond
	return retry
}

// controlHandler bridges socket commands to the controller. Status works in
// every phase; the review commands error until a checkpoint is pending.
func controlHandler(ctrl *tournament.Controller) control.Handler {
	return func(cmd control.Command) (map[string]any, error) {
		ctx := context.Background()
		switch cmd.Type {
		case control.CmdApprove:
			return nil, ctrl.Approve(cmd.Actor)
		case control.CmdReject:
			return nil, ctrl.Reject(ctx, cmd.CandidateID, cmd.Actor, cmd.Note)
		case control.CmdReinstate:
			return nil, ctrl.Reinstate(ctx, cmd.CandidateID, cmd.Actor, cmd.Note)
		case control.CmdAbort:
			return nil, ctrl.Abort(cmd.Actor, cmd.Note)
		case control.CmdStatus:
			tournamentID, round, pending, reviewing := ctrl.ReviewPending()
			data := map[string]any{"reviewing": reviewing}
			if reviewing {
				data["tournament_id"] = tournamentID
				data["round"] = round
				data["pending"] = pending
			}
			return data, nil
		default:
			return nil, fmt.Errorf("unknown command type %q", cmd.Type)
		}
	}
}

// printCheckpointNotice announces the review pause on the run terminal
func printCheckpointNotice(info tournament.CheckpointInfo, autoApprove bool) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	if autoApprove {
		fmt.Printf("%s Checkpoint auto-approved (%d finalists)\n", gray("→"), len(info.Finalists))
		return
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("\n%s Checkpoint: %d finalist(s) await review after round %d\n",
		yellow("⏸"), len(info.Finalists), info.Round)
	for _, c := range info.Finalists {
		fmt.Printf("    %s  %s\n", gray(c.ID), truncateTitle(c.Title, 70))
	}
	if info.Degraded {
		fmt.Printf("    %s\n", yellow(fmt.Sprintf("(degraded: below the target of %d)", info.TargetK)))
	}
	fmt.Printf("\n  Run %s in another terminal to decide\n\n", "'gauntlet review'")
}

// reviewTimeoutLabel renders the watchdog setting for the startup banner
func reviewTimeoutLabel(cfg config.Config) string {
	if cfg.AutoApprove {
		return "auto-approve"
	}
	if cfg.ReviewTimeout <= 0 {
		return "none (waits for a reviewer)"
	}
	return cfg.ReviewTimeout.String()
}

// printResult renders the final outcome of a run
func printResult(r *types.TournamentResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Println()
	switch r.Phase {
	case types.PhaseAborted:
		fmt.Printf("%s Tournament %s aborted: %s\n", red("✗"), cyan(r.TournamentID), r.AbortReason)
		fmt.Printf("  Rounds resolved before abort: %d\n", len(r.Rounds))
	case types.PhaseComplete:
		if r.Degraded {
			fmt.Printf("%s Tournament %s complete with %d of %d winners (degraded)\n",
				yellow("⚠"), cyan(r.TournamentID), len(r.Winners), r.TargetK)
		} else {
			fmt.Printf("%s Tournament %s complete\n", green("✓"), cyan(r.TournamentID))
		}

		if len(r.Winners) > 0 {
			fmt.Printf("\n%s\n", yellow("Winners:"))
			for _, w := range r.Winners {
				fmt.Printf("  %s %s  %s\n", green("★"), gray(w.ID), truncateTitle(w.Title, 70))
			}
		}
	default:
		fmt.Printf("%s Tournament %s ended in phase %s\n", yellow("⚠"), cyan(r.TournamentID), r.Phase)
	}

	fmt.Println()
	fmt.Printf("  Rounds: %d, matchups: %d, eliminated: %d", len(r.Rounds), len(r.Matchups), len(r.Eliminated))
	if len(r.Suppressed) > 0 {
		fmt.Printf(", suppressed as duplicates: %d", len(r.Suppressed))
	}
	fmt.Println()
	fmt.Printf("  Judge spend: %s\n", formatSpend(r.Spend))
	fmt.Printf("  Duration: %v\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Println()
	fmt.Printf("%s Full trail: gauntlet audit %s\n", gray("→"), r.TournamentID)
	fmt.Println()
}
