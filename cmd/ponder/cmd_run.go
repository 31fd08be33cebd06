package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ponder/llm"
	"github.com/AleutianAI/ponder/pkg/logging"
	"github.com/AleutianAI/ponder/pkg/ux"
	"github.com/AleutianAI/ponder/search"
)

// runSearch drives "ponder run": assemble a generator, run the
// engine, print the outcome, and persist the artifact.
func runSearch(cmd *cobra.Command, _ []string) {
	start := time.Now()
	logger := buildLogger()
	defer logger.Close()

	cfg, err := search.LoadConfig(configPath)
	if err != nil {
		ux.Error(fmt.Sprintf("loading config: %v", err))
		os.Exit(CLIExitError)
	}

	// Ctrl-C cancels the run; the engine reports ReasonCanceled and
	// whatever tree exists is still selected over and saved.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if traceSpans {
		shutdown, traceErr := initTracing(version)
		if traceErr != nil {
			ux.Warning(fmt.Sprintf("tracing disabled: %v", traceErr))
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Warn("trace shutdown failed", "error", err)
				}
			}()
		}
	}
	if metricsAddr != "" {
		startMetricsServer(metricsAddr, logger)
	}

	gen, initial, opts, err := buildRun(logger)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}

	engine, err := search.New(cfg, gen, opts...)
	if err != nil {
		ux.Error(fmt.Sprintf("building engine: %v", err))
		os.Exit(CLIExitError)
	}

	logger.ForRun(engine.RunID()).Info("starting search",
		"strategy", string(cfg.Strategy),
		"max_nodes", cfg.MaxNodes,
		"max_depth", cfg.MaxDepth,
		"demo", demoMode,
	)

	spinner := ux.NewSpinner("expanding the tree")
	spinner.Start()
	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-progressDone:
				return
			case <-ticker.C:
				spinner.UpdateMessage(fmt.Sprintf("expanding the tree (%d nodes)", engine.Store().Len()))
			}
		}
	}()

	result, runErr := engine.Run(ctx, initial)
	close(progressDone)

	if result == nil {
		spinner.StopWithError("search failed")
		logger.Error("search failed", "error", runErr)
		if jsonOutput {
			OutputResult("run", start, nil, runErr)
		}
		os.Exit(CLIExitError)
	}

	switch {
	case runErr != nil:
		spinner.StopWithWarning("no viable path")
	case result.Incomplete:
		spinner.StopWithWarning(fmt.Sprintf("stopped early: %s", result.Reason))
	default:
		spinner.StopWithSuccess(fmt.Sprintf("finished: %s", result.Reason))
	}

	if !noSave {
		// Save on a fresh context so an interrupted run still lands
		// in the store.
		if err := saveArtifact(context.Background(), engine, result, logger); err != nil {
			ux.Warning(fmt.Sprintf("artifact not saved: %v", err))
		} else {
			ux.Muted(fmt.Sprintf("saved; render later with: ponder report %s", result.RunID))
		}
	}

	if jsonOutput {
		OutputResult("run", start, result, runErr)
	} else {
		printRunResult(result, engine, showTree)
	}
	os.Exit(exitCodeFor(result))
}

// buildRun assembles the generator, root state, and engine options
// for the selected mode.
func buildRun(logger *logging.Logger) (search.Generator, search.State, []search.Option, error) {
	opts := []search.Option{
		search.WithLogger(logger.Slog()),
		search.WithTracer(search.NewTracer(logger.Slog(), traceSpans)),
	}
	if runIDFlag != "" {
		opts = append(opts, search.WithRunID(runIDFlag))
	}

	if demoMode {
		numbers, err := parseNumbers(demoNumbers)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parsing --numbers: %w", err)
		}
		opts = append(opts,
			search.WithGoal(demoGoal(demoTarget)),
			search.WithHeuristics(demoHeuristics(demoTarget, len(numbers))),
		)
		return newDemoGenerator(), demoInitialState(numbers, demoTarget), opts, nil
	}

	if taskPrompt == "" {
		return nil, nil, nil, errors.New("provide --task for a model-backed run, or use --demo")
	}
	gen, err := llm.NewGenerator(llm.Config{
		Model:             modelFlag,
		RequestsPerMinute: rpmFlag,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building model generator: %w", err)
	}
	return gen, search.State{"task": taskPrompt}, opts, nil
}

// saveArtifact snapshots the finished tree into the artifact store.
func saveArtifact(ctx context.Context, engine *search.Engine, result *search.Result, logger *logging.Logger) error {
	art, err := buildArtifact(engine, result)
	if err != nil {
		return err
	}
	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing store", "error", err)
		}
	}()
	return store.Save(ctx, art)
}
