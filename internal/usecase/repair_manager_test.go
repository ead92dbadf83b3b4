package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
)

func newTestManager(root string) (*RepairManager, *ledger.Store) {
	store := ledger.NewStore(root)
	return NewRepairManager(store, crypto.NewService(), testClock(testNow), nil), store
}

func staleDateIssue(entryID, nextReview string) domain.IntegrityIssue {
	return domain.IntegrityIssue{
		IssueID:        "gov-stale-review-" + entryID,
		Classification: domain.IssueStaleDate,
		Severity:       domain.SeverityMedium,
		AffectedLedger: domain.LedgerGovernance,
		EntryID:        entryID,
		Description:    "Review date is overdue",
		AutoRepairable: true,
		OriginalState:  map[string]any{"next_review": nextReview},
		ProposedState:  map[string]any{"next_review": ReviewSentinel},
		Rationale:      "Automated escalation: next_review date exceeded",
		DetectedAt:     testNow,
	}
}

func TestStaleDateRepairApplied(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"2024-01-01"}
`)
	manager, store := newTestManager(root)

	result := manager.AttemptRepair(context.Background(), staleDateIssue("policy-1", "2024-01-01"), false)
	if !result.Success {
		t.Fatalf("repair failed: %s", result.Error)
	}
	if result.RepairEntry.Status != domain.RepairApplied {
		t.Errorf("status = %s, want applied", result.RepairEntry.Status)
	}
	if !strings.HasPrefix(result.RepairEntry.EntryID, "autonomous_repair-") {
		t.Errorf("entry id = %s", result.RepairEntry.EntryID)
	}

	entry, err := store.FindEntry(domain.LedgerGovernance, "policy-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := entry.StringField("next_review"); got != ReviewSentinel {
		t.Errorf("next_review = %q, want sentinel", got)
	}

	repairs, err := store.EntriesByType(domain.LedgerGovernance, domain.EntryAutonomousRepair)
	if err != nil {
		t.Fatal(err)
	}
	if len(repairs) != 1 {
		t.Fatalf("expected 1 repair entry, got %d", len(repairs))
	}
}

func TestRepairEntryHashAndMerkleRoot(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"2024-01-01"}
`)
	manager, _ := newTestManager(root)

	result := manager.AttemptRepair(context.Background(), staleDateIssue("policy-1", "2024-01-01"), true)
	if !result.Success {
		t.Fatalf("repair failed: %s", result.Error)
	}
	entry := result.RepairEntry

	if !domain.HashPattern.MatchString(entry.Hash) {
		t.Errorf("hash %q is not 64 hex chars", entry.Hash)
	}

	original, _ := json.Marshal(entry.OriginalState)
	updated, _ := json.Marshal(entry.NewState)
	want := crypto.NewService().SHA256Hex(
		entry.EntryID + entry.AppliedAt + string(entry.IssueClassification) + string(original) + string(updated))
	if entry.MerkleRoot != want {
		t.Errorf("merkleRoot = %s, want %s", entry.MerkleRoot, want)
	}
	if entry.Signature != nil {
		t.Error("signature must stay null until a signing authority exists")
	}
}

func TestMinorInconsistencyAlwaysEscalates(t *testing.T) {
	manager, store := newTestManager(t.TempDir())
	issue := domain.IntegrityIssue{
		IssueID:        "consent-invalid-0",
		Classification: domain.IssueMinorInconsistency,
		Severity:       domain.SeverityLow,
		AffectedLedger: domain.LedgerConsent,
		Description:    "Consent entry missing required fields",
		AutoRepairable: true,
		DetectedAt:     testNow,
	}

	result := manager.AttemptRepair(context.Background(), issue, false)
	if !result.Success {
		t.Fatalf("escalation failed: %s", result.Error)
	}
	if result.RepairEntry.Status != domain.RepairPendingReview {
		t.Errorf("status = %s, want pending_human_review", result.RepairEntry.Status)
	}

	wantFollowup := time.Date(2025, 6, 22, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if result.RepairEntry.RequiresFollowupBy != wantFollowup {
		t.Errorf("followup = %s, want %s (7 days for low)", result.RepairEntry.RequiresFollowupBy, wantFollowup)
	}

	repairs, err := store.EntriesByType(domain.LedgerGovernance, domain.EntryAutonomousRepair)
	if err != nil {
		t.Fatal(err)
	}
	if len(repairs) != 1 {
		t.Fatalf("escalation must be recorded in the governance ledger, got %d entries", len(repairs))
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"`+ReviewSentinel+`"}
`)
	manager, store := newTestManager(root)

	// The detection snapshot says the date was 2024-01-01, but the entry was
	// already stamped by an earlier run.
	result := manager.AttemptRepair(context.Background(), staleDateIssue("policy-1", "2024-01-01"), false)
	if !result.Success {
		t.Fatalf("expected escalation, got failure: %s", result.Error)
	}
	if result.RepairEntry.Status != domain.RepairPendingReview {
		t.Errorf("changed target must escalate, got %s", result.RepairEntry.Status)
	}

	entry, err := store.FindEntry(domain.LedgerGovernance, "policy-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := entry.StringField("next_review"); got != ReviewSentinel {
		t.Errorf("next_review = %q, sentinel must be untouched", got)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"2024-01-01"}
`)
	manager, store := newTestManager(root)

	result := manager.AttemptRepair(context.Background(), staleDateIssue("policy-1", "2024-01-01"), true)
	if !result.Success || result.RepairEntry.Status != domain.RepairApplied {
		t.Fatalf("dry run must report the would-be repair, got %+v", result)
	}

	entry, err := store.FindEntry(domain.LedgerGovernance, "policy-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := entry.StringField("next_review"); got != "2024-01-01" {
		t.Errorf("dry run mutated the ledger: next_review = %q", got)
	}
	repairs, _ := store.EntriesByType(domain.LedgerGovernance, domain.EntryAutonomousRepair)
	if len(repairs) != 0 {
		t.Errorf("dry run appended %d repair entries", len(repairs))
	}
}

func TestMissingRepairTargetFails(t *testing.T) {
	manager, _ := newTestManager(t.TempDir())
	result := manager.AttemptRepair(context.Background(), staleDateIssue("ghost", "2024-01-01"), false)
	if result.Success {
		t.Fatal("repair against a missing target must fail")
	}
	if result.RepairEntry != nil {
		t.Error("failed repair must not produce a ledger entry")
	}
}

func TestProcessIssuesBucketsResults(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"2024-01-01"}
`)
	manager, _ := newTestManager(root)

	issues := []domain.IntegrityIssue{
		staleDateIssue("policy-1", "2024-01-01"),
		{
			IssueID:        "gov-future-approval-x",
			Classification: domain.IssueIntegrityBreak,
			Severity:       domain.SeverityCritical,
			AffectedLedger: domain.LedgerGovernance,
			Description:    "Approval date is in the future",
			DetectedAt:     testNow,
		},
		staleDateIssue("ghost", "2024-01-01"),
	}

	results, summary, err := manager.ProcessIssuesDetailed(context.Background(), issues, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 ordered results, got %d", len(results))
	}
	if len(summary.Repaired) != 1 || len(summary.Escalated) != 1 || len(summary.Failed) != 1 {
		t.Errorf("summary = %d/%d/%d, want 1/1/1",
			len(summary.Repaired), len(summary.Escalated), len(summary.Failed))
	}
}

func TestPendingRepairsAndOpenCount(t *testing.T) {
	manager, _ := newTestManager(t.TempDir())
	ctx := context.Background()

	escalation := domain.IntegrityIssue{
		IssueID:        "gov-missing-doc-x",
		Classification: domain.IssueMissingReference,
		Severity:       domain.SeverityHigh,
		AffectedLedger: domain.LedgerGovernance,
		Description:    "Referenced document not found",
		DetectedAt:     testNow,
	}
	if result := manager.AttemptRepair(ctx, escalation, false); !result.Success {
		t.Fatalf("escalation failed: %s", result.Error)
	}

	pending, err := manager.PendingRepairs()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending repair, got %d", len(pending))
	}

	open, err := manager.CountOpenIssues()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[domain.IssueMissingReference] != 1 {
		t.Errorf("open issues = %v, want one missing_reference", open)
	}
}
