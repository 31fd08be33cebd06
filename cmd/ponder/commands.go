// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ponder/pkg/ux"
)

var (
	// Persistent flags.
	personalityFlag string
	configPath      string
	storePath       string
	logDirFlag      string
	verboseFlag     bool
	jsonOutput      bool

	// Run flags.
	demoMode    bool
	demoNumbers string
	demoTarget  float64
	taskPrompt  string
	modelFlag   string
	rpmFlag     int
	runIDFlag   string
	showTree    bool
	noSave      bool
	metricsAddr string
	traceSpans  bool

	rootCmd = &cobra.Command{
		Use:   "ponder",
		Short: "Tree search over model-proposed reasoning steps",
		Long: `Ponder explores a task as a tree of candidate steps. A generator
proposes continuations, a weighted evaluator scores them, and the
engine expands, prunes, and backtracks until it reaches a goal state
or exhausts its budget. Finished runs are stored locally and can be
rendered later with "ponder report".`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityFlag != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityFlag))
			} else {
				ux.InitPersonality()
			}
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a search and store the result",
		Long: `Run a search against either the built-in arithmetic demo (--demo)
or a hosted model (--task). The finished tree is saved to the artifact
store unless --no-save is given.`,
		Example: `  ponder run --demo
  ponder run --demo --numbers 3,7,9 --target 27 --tree
  ponder run --task "plan a three-step data migration"`,
		Run: runSearch,
	}

	reportCmd = &cobra.Command{
		Use:   "report <run-id>",
		Short: "Render the stored tree for a finished run",
		Args:  cobra.ExactArgs(1),
		Run:   runReport,
	}

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Manage stored runs",
	}

	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Run:   runRunsList,
	}

	runsDeleteCmd = &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		Run:   runRunsDelete,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityFlag, "personality", "",
		"Output personality: full, standard, minimal, machine (default: auto-detect)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML or JSON search config file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "",
		"Artifact store directory (default: $PONDER_STORE or ~/.ponder/runs)")
	rootCmd.PersistentFlags().StringVar(&logDirFlag, "log-dir", "",
		"Also write JSON logs to this directory")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Emit machine-readable JSON on stdout")

	runCmd.Flags().BoolVar(&demoMode, "demo", false,
		"Use the built-in arithmetic demo generator")
	runCmd.Flags().StringVar(&demoNumbers, "numbers", "2,3,4",
		"Demo: comma separated starting numbers")
	runCmd.Flags().Float64Var(&demoTarget, "target", 24,
		"Demo: target value to reach")
	runCmd.Flags().StringVar(&taskPrompt, "task", "",
		"Task description seeding the root state (model-backed runs)")
	runCmd.Flags().StringVar(&modelFlag, "model", "",
		"Model for --task runs (default: $OPENAI_MODEL or gpt-4o-mini)")
	runCmd.Flags().IntVar(&rpmFlag, "rpm", 60,
		"Model request budget per minute, 0 disables the limiter")
	runCmd.Flags().StringVar(&runIDFlag, "run-id", "",
		"Override the generated run id")
	runCmd.Flags().BoolVar(&showTree, "tree", false,
		"Print the full tree after the run")
	runCmd.Flags().BoolVar(&noSave, "no-save", false,
		"Skip saving the run artifact")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run, e.g. :9090")
	runCmd.Flags().BoolVar(&traceSpans, "trace", false,
		"Emit OpenTelemetry spans for engine phases to stdout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
