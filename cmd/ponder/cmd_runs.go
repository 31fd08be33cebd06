package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ponder/pkg/ux"
	storage "github.com/AleutianAI/ponder/storage/badger"
)

// runRunsList prints stored runs, newest first.
func runRunsList(cmd *cobra.Command, _ []string) {
	start := time.Now()
	logger := buildLogger()
	defer logger.Close()

	store, err := openStore(logger)
	if err != nil {
		ux.Error(fmt.Sprintf("opening store: %v", err))
		os.Exit(CLIExitError)
	}
	defer store.Close()

	artifacts, err := store.List(cmd.Context())
	if err != nil {
		ux.Error(fmt.Sprintf("listing runs: %v", err))
		os.Exit(CLIExitError)
	}

	if jsonOutput {
		for i := range artifacts {
			artifacts[i].Snapshot = nil
		}
		OutputResult("runs list", start, artifacts, nil)
		return
	}

	if len(artifacts) == 0 {
		ux.Info("no stored runs")
		return
	}
	ux.Title(fmt.Sprintf("Stored runs (%d)", len(artifacts)))
	for _, art := range artifacts {
		icon := ux.IconSuccess
		if art.Incomplete {
			icon = ux.IconWarning
		}
		detail := fmt.Sprintf("%s, %d nodes, score %.2f, %s",
			art.Reason, art.Stats.TotalNodes, art.BestScore,
			art.CreatedAt.Local().Format("2006-01-02 15:04"))
		ux.StepStatus(art.RunID, icon, detail)
	}
}

// runRunsDelete removes one stored run. Deleting a run that does not
// exist warns but exits zero, so cleanup scripts can re-run safely.
func runRunsDelete(cmd *cobra.Command, args []string) {
	logger := buildLogger()
	defer logger.Close()

	store, err := openStore(logger)
	if err != nil {
		ux.Error(fmt.Sprintf("opening store: %v", err))
		os.Exit(CLIExitError)
	}
	defer store.Close()

	err = store.Delete(cmd.Context(), args[0])
	if errors.Is(err, storage.ErrNotFound) {
		ux.Warning(fmt.Sprintf("no stored run %q", args[0]))
		return
	}
	if err != nil {
		ux.Error(fmt.Sprintf("deleting run: %v", err))
		os.Exit(CLIExitError)
	}
	ux.Success("deleted " + args[0])
}
