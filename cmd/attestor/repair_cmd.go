package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"attestor/internal/config"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
	"attestor/internal/infra/policyrepair"
	"attestor/internal/usecase"
)

type repairOutput struct {
	Report        any `json:"report"`
	Summary       any `json:"summary"`
	Notifications any `json:"notifications,omitempty"`
}

func runRepair(args []string) int {
	fs := flag.NewFlagSet("repair", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var scopeFlag string
	var dryRun bool
	var outPath string
	fs.StringVar(&scopeFlag, "scope", "all", "comma-separated ledgers to verify before repairing")
	fs.BoolVar(&dryRun, "dry-run", false, "compute decisions without writing")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.FromEnv()
	cryptoSvc := crypto.NewService()
	store := ledger.NewStore(cfg.LedgerRoot)
	ctx := context.Background()

	policy, err := policyrepair.NewEngine(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repair policy: %v\n", err)
		return 1
	}

	engine := usecase.NewIntegrityEngine(store, cryptoSvc, nil)
	manager := usecase.NewRepairManager(store, cryptoSvc, nil, policy)
	notifier := usecase.NewNotifier(cryptoSvc, nil, cfg.GovernanceOfficerEmail, cfg.BaseURL, cfg.WebhookSecret)

	report, err := engine.RunVerification(ctx, strings.Split(scopeFlag, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification: %v\n", err)
		return 1
	}

	results, summary, err := manager.ProcessIssuesDetailed(ctx, report.Issues, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repair pass: %v\n", err)
		return 1
	}
	report.AutoRepaired = len(summary.Repaired)

	emails := notifier.NotifyEscalations(report.Issues, results)

	output := repairOutput{Report: report, Summary: summary}
	if len(emails) > 0 {
		output.Notifications = emails
	}
	if err := writeJSON(outPath, output); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	if len(summary.Failed) > 0 {
		return 1
	}
	return 0
}
