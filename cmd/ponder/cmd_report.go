package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ponder/pkg/ux"
	"github.com/AleutianAI/ponder/search"
	storage "github.com/AleutianAI/ponder/storage/badger"
)

// reportPayload is the --json body for "ponder report". The raw
// snapshot is omitted; its decoded summary is carried instead.
type reportPayload struct {
	Artifact storage.Artifact        `json:"artifact"`
	Summary  *search.SnapshotSummary `json:"summary"`
}

// runReport renders the stored tree for a run id.
func runReport(cmd *cobra.Command, args []string) {
	start := time.Now()
	logger := buildLogger()
	defer logger.Close()

	store, err := openStore(logger)
	if err != nil {
		ux.Error(fmt.Sprintf("opening store: %v", err))
		os.Exit(CLIExitError)
	}
	defer store.Close()

	art, err := store.Load(cmd.Context(), args[0])
	if errors.Is(err, storage.ErrNotFound) {
		ux.Error(fmt.Sprintf("no stored run %q; try: ponder runs list", args[0]))
		os.Exit(CLIExitError)
	}
	if err != nil {
		ux.Error(fmt.Sprintf("loading run: %v", err))
		os.Exit(CLIExitError)
	}

	tree, summary, err := search.LoadSnapshot(art.Snapshot)
	if err != nil {
		ux.Error(fmt.Sprintf("decoding snapshot: %v", err))
		os.Exit(CLIExitError)
	}

	if jsonOutput {
		trimmed := *art
		trimmed.Snapshot = nil
		OutputResult("report", start, reportPayload{Artifact: trimmed, Summary: summary}, nil)
		return
	}

	ux.Title("Run " + art.RunID)
	ux.Info("created " + art.CreatedAt.Local().Format(time.RFC822))
	status := art.Reason
	if art.Incomplete {
		status += " (incomplete)"
	}
	ux.Info("finished: " + status)
	ux.Muted(fmt.Sprintf("strategy %s, branching %d, max %d nodes to depth %d",
		art.Config.Strategy, art.Config.BranchingFactor,
		art.Config.MaxNodes, art.Config.MaxDepth))
	if summary.BestPath != nil {
		ux.Info(fmt.Sprintf("best path %s scored %s",
			formatPath(summary.BestPath), ux.ScoreBadge(summary.BestPath.Score)))
	}
	fmt.Println()
	fmt.Println(search.NewReporter(tree).WithPath(summary.BestPath).Format())
	ux.Summary(summary.Stats.StatusCounts[search.StatusSuccessful],
		summary.Stats.StatusCounts[search.StatusPruned],
		summary.Stats.TotalNodes)
}
