package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
	"github.com/axpilot/axpilot/internal/axtree"
	"github.com/axpilot/axpilot/internal/config"
	"github.com/axpilot/axpilot/internal/engine"
	"github.com/axpilot/axpilot/internal/executor"
	"github.com/axpilot/axpilot/internal/fastpath"
	"github.com/axpilot/axpilot/internal/observability"
	"github.com/axpilot/axpilot/internal/planner"
	"github.com/axpilot/axpilot/internal/recorder"
	"github.com/axpilot/axpilot/internal/session"
)

// newRunCommand creates and configures the `run` command.
func newRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <utterance>",
		Short: "Executes one natural-language command against a live page",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("recorder.path", cmd.Flags().Lookup("record")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg := loadedCfg
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}
			if viper.GetString("record") != "" {
				cfg.Recorder.Enabled = true
			}

			utterance := strings.TrimSpace(args[0])
			if utterance == "" {
				return fmt.Errorf("utterance must not be empty")
			}
			startURL := viper.GetString("url")

			components, err := initializeRunComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			if startURL != "" {
				if !strings.HasPrefix(startURL, "http://") && !strings.HasPrefix(startURL, "https://") {
					startURL = "https://" + startURL
				}
				logger.Info("Navigating to initial URL.", zap.String("url", startURL))
				if err := components.Session.Navigate(ctx, startURL); err != nil {
					return fmt.Errorf("initial navigation to %q failed: %w", startURL, err)
				}
			}

			handled, err := components.Engine.TryFastPath(ctx, utterance)
			if err != nil {
				return fmt.Errorf("fast-path execution failed: %w", err)
			}
			if handled {
				fmt.Println("Done.")
				return nil
			}

			intent := schemas.ActionPlan{
				SchemaVersion: schemas.SchemaActionPlan,
				ID:            uuid.New().String(),
				TraceID:       uuid.New().String(),
				Action:        "perform",
				Value:         utterance,
			}

			outcome, err := components.Engine.Run(ctx, intent)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by user signal.", zap.String("trace_id", intent.TraceID))
					return fmt.Errorf("run aborted by user signal")
				}
				return err
			}

			// A plan that ended on a navigating step resumes after the load
			// event fires. Wait for the hand-off to finish before tearing the
			// session down.
			waitForResumption(ctx, components, logger)

			printOutcome(outcome)
			return nil
		},
	}

	runCmd.Flags().StringP("url", "u", "", "Initial URL to navigate to before running the command.")
	runCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	runCmd.Flags().String("record", "", "SQLite file to record snapshots and diffs into.")

	return runCmd
}

// runComponents holds the initialized services for one run.
type runComponents struct {
	Session  *session.Session
	Engine   *engine.Engine
	Watcher  *engine.Watcher
	Pending  *engine.PendingStore
	Feedback *planner.AsyncSink
	Recorder schemas.Recorder
}

// Shutdown closes the browser session, drains feedback, and flushes the
// recorder.
func (rc *runComponents) Shutdown() {
	logger := observability.GetLogger()
	if rc.Session != nil {
		if err := rc.Session.Close(); err != nil {
			logger.Warn("Error closing browser session.", zap.Error(err))
		}
	}
	if rc.Feedback != nil {
		if err := rc.Feedback.Close(); err != nil {
			logger.Warn("Error draining feedback sink.", zap.Error(err))
		}
	}
	if rc.Recorder != nil {
		if err := rc.Recorder.Close(); err != nil {
			logger.Warn("Error closing recorder.", zap.Error(err))
		}
	}
}

// initializeRunComponents handles dependency injection.
func initializeRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	// 1. Browser session. The session is both the capture runner and the
	// executor's CDP bridge.
	sess, err := session.New(ctx, cfg.Browser, logger)
	if err != nil {
		return components, fmt.Errorf("failed to start browser session: %w", err)
	}
	components.Session = sess

	// 2. Recorder
	var rec schemas.Recorder = recorder.Nop{}
	if cfg.Recorder.Enabled && cfg.Recorder.Path != "" {
		sqlRec, err := recorder.Open(cfg.Recorder.Path, logger)
		if err != nil {
			return components, fmt.Errorf("failed to open recorder at %q: %w", cfg.Recorder.Path, err)
		}
		rec = sqlRec
	}
	components.Recorder = rec

	// 3. Capture, diff, and execution
	capturer := axtree.NewCapturer(sess, logger)
	differ := axtree.NewDiffEngine(cfg.Engine.VolumeThreshold)
	exec := executor.New(sess, sess, cfg.Engine, logger)

	// 4. Planner boundary
	planClient := planner.NewClient(cfg.Planner, logger)
	feedback := planner.NewAsyncSink(planner.NewFeedbackClient(cfg.Feedback, logger), 4, logger)
	components.Feedback = feedback

	// 5. Engine and the navigation hand-off
	pending := engine.NewPendingStore(logger)
	components.Pending = pending

	eng := engine.New(engine.Deps{
		Session:  sess,
		Capturer: capturer,
		Differ:   differ,
		Executor: exec,
		Matcher:  fastpath.NewMatcher(logger),
		Planner:  planClient,
		Feedback: feedback,
		Recorder: rec,
		Pending:  pending,
	}, cfg.Engine, logger)
	components.Engine = eng

	watcher := engine.NewWatcher(sess.ID(), pending, eng, cfg.Engine.ResumeDelay, logger)
	components.Watcher = watcher

	// Cross-navigation wiring: a main-frame navigation invalidates the
	// snapshot lineage, and a load event resumes any interrupted intent.
	sess.OnNavigate(capturer.Reset)
	sess.OnLoad(watcher.HandlePageLoad)

	return components, nil
}

// waitForResumption blocks until no pending intent remains and no resumed run
// is in flight, or the context ends.
func waitForResumption(ctx context.Context, components *runComponents, logger *zap.Logger) {
	sessionID := components.Session.ID()
	if !components.Pending.Pending(sessionID) && !components.Watcher.Active() {
		return
	}
	logger.Info("Waiting for navigation hand-off to complete.")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !components.Pending.Pending(sessionID) && !components.Watcher.Active() {
				return
			}
		}
	}
}

// printOutcome renders the final engine outcome for the terminal.
func printOutcome(outcome engine.Outcome) {
	switch outcome.State {
	case engine.StateClarify:
		c := outcome.Clarification
		fmt.Printf("\nClarification needed: %s\n", c.Question)
		for i, opt := range c.Options {
			fmt.Printf("  %d. %s\n", i+1, opt.Label)
		}
	case engine.StateFailed:
		fmt.Println("\nRun failed.")
		if outcome.Result != nil {
			for _, e := range outcome.Result.Errors {
				fmt.Printf("  error: %s\n", e)
			}
		}
	default:
		if outcome.Result == nil {
			fmt.Println("\nDone.")
			return
		}
		fmt.Printf("\nRun finished: %s (%d steps)\n",
			outcome.Result.Status, len(outcome.Result.StepResults))
		for _, sr := range outcome.Result.StepResults {
			marker := "ok"
			if sr.Status != schemas.StepSuccess {
				marker = "failed"
			}
			fmt.Printf("  [%s] %s %s\n", marker, sr.StepID, sr.Error)
		}
	}
}
