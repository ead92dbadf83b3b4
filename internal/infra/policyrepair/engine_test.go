package policyrepair

import (
	"context"
	"testing"

	"attestor/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background())
	if err != nil {
		t.Fatalf("prepare policy: %v", err)
	}
	return engine
}

func TestDecideAppliesOnlyAutoRepairableStaleDate(t *testing.T) {
	engine := newTestEngine(t)
	decision, err := engine.Decide(context.Background(), domain.IntegrityIssue{
		Classification: domain.IssueStaleDate,
		Severity:       domain.SeverityMedium,
		AutoRepairable: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != domain.RepairActionApply {
		t.Errorf("action = %s, want apply", decision.Action)
	}
}

func TestDecideEscalations(t *testing.T) {
	engine := newTestEngine(t)
	cases := []struct {
		name         string
		issue        domain.IntegrityIssue
		wantFollowup int
	}{
		{
			"minor inconsistency is escalated even when flagged repairable",
			domain.IntegrityIssue{
				Classification: domain.IssueMinorInconsistency,
				Severity:       domain.SeverityLow,
				AutoRepairable: true,
			},
			7,
		},
		{
			"stale date without the repairable flag is escalated",
			domain.IntegrityIssue{
				Classification: domain.IssueStaleDate,
				Severity:       domain.SeverityHigh,
				AutoRepairable: false,
			},
			2,
		},
		{
			"critical integrity break gets a one day window",
			domain.IntegrityIssue{
				Classification: domain.IssueIntegrityBreak,
				Severity:       domain.SeverityCritical,
				AutoRepairable: false,
			},
			1,
		},
		{
			"medium severity gets five days",
			domain.IntegrityIssue{
				Classification: domain.IssueMissingReference,
				Severity:       domain.SeverityMedium,
				AutoRepairable: false,
			},
			5,
		},
		{
			"unknown severity falls back to three days",
			domain.IntegrityIssue{
				Classification: domain.IssueHashMismatch,
				Severity:       domain.IssueSeverity("unknown"),
				AutoRepairable: false,
			},
			3,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := engine.Decide(context.Background(), tc.issue)
			if err != nil {
				t.Fatal(err)
			}
			if decision.Action != domain.RepairActionEscalate {
				t.Errorf("action = %s, want escalate", decision.Action)
			}
			if decision.FollowupDays != tc.wantFollowup {
				t.Errorf("followup days = %d, want %d", decision.FollowupDays, tc.wantFollowup)
			}
		})
	}
}
