package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"attestor/internal/config"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/db"
	"attestor/internal/infra/ledger"
	"attestor/internal/usecase"
)

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var scopeFlag string
	var outPath string
	fs.StringVar(&scopeFlag, "scope", "all", "comma-separated ledgers to verify (governance,consent,federation,trust,all)")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.FromEnv()
	store := ledger.NewStore(cfg.LedgerRoot)
	engine := usecase.NewIntegrityEngine(store, crypto.NewService(), nil)

	ctx := context.Background()
	scope := strings.Split(scopeFlag, ",")
	report, err := engine.RunVerification(ctx, scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification: %v\n", err)
		return 1
	}

	handle, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("archive database unavailable, continuing ledger-only", "err", err)
	} else if handle != nil {
		if err := db.NewArchiveRepository(handle).SaveReport(ctx, report); err != nil {
			fmt.Fprintf(os.Stderr, "archive report: %v\n", err)
		}
	}

	if err := writeJSON(outPath, report); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
