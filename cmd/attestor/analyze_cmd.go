package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"attestor/internal/config"
	"attestor/internal/infra/db"
	"attestor/internal/infra/ledger"
	"attestor/internal/usecase"
)

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var enableML bool
	var outPath string
	fs.BoolVar(&enableML, "ml", false, "enable the heuristic layer (also via EWA_ML=true)")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.FromEnv()
	store := ledger.NewStore(cfg.LedgerRoot)
	analyzer := usecase.NewAnalyzer(store, nil, cfg.TrajectoryWeights(), enableML || cfg.EnableML)

	ctx := context.Background()
	result, err := analyzer.RunAnalysis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis: %v\n", err)
		return 1
	}

	handle, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("archive database unavailable, continuing ledger-only", "err", err)
	} else if handle != nil {
		if err := db.NewArchiveRepository(handle).SaveAnalysis(ctx, result); err != nil {
			fmt.Fprintf(os.Stderr, "archive analysis: %v\n", err)
		}
	}

	if err := writeJSON(outPath, result); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
