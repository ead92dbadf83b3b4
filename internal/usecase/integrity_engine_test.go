package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
)

func testClock(ts string) Clock {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func writeLedger(t *testing.T, root string, name domain.LedgerName, lines string) {
	t.Helper()
	path := ledger.NewStore(root).Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestEngine(root string, now string) *IntegrityEngine {
	return NewIntegrityEngine(ledger.NewStore(root), crypto.NewService(), testClock(now))
}

const testNow = "2025-06-15T12:00:00Z"

func findIssue(issues []domain.IntegrityIssue, prefix string) *domain.IntegrityIssue {
	for i := range issues {
		if strings.HasPrefix(issues[i].IssueID, prefix) {
			return &issues[i]
		}
	}
	return nil
}

func TestEmptyGovernanceLedgerIsCritical(t *testing.T) {
	engine := newTestEngine(t.TempDir(), testNow)
	report, err := engine.RunVerification(context.Background(), []string{"all"})
	if err != nil {
		t.Fatal(err)
	}

	issue := findIssue(report.Issues, "gov-empty-")
	if issue == nil {
		t.Fatal("expected gov-empty issue for missing governance ledger")
	}
	if issue.Severity != domain.SeverityCritical || issue.Classification != domain.IssueIntegrityBreak {
		t.Errorf("issue = %s/%s, want critical/integrity_break", issue.Severity, issue.Classification)
	}
	if issue.AutoRepairable {
		t.Error("empty ledger must not be auto-repairable")
	}
	if report.LedgerStatus.Governance != domain.HealthCritical {
		t.Errorf("governance health = %s, want critical", report.LedgerStatus.Governance)
	}
	if report.SystemState != domain.StateAttentionRequired {
		t.Errorf("system state = %s, want attention_required", report.SystemState)
	}
}

func TestStaleReviewDetection(t *testing.T) {
	cases := []struct {
		name         string
		nextReview   string
		wantSeverity domain.IssueSeverity
	}{
		{"recently overdue is medium", "2025-05-01", domain.SeverityMedium},
		{"over ninety days is high", "2025-01-01", domain.SeverityHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeLedger(t, root, domain.LedgerGovernance,
				`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"`+tc.nextReview+`"}
`)
			engine := newTestEngine(root, testNow)
			report, err := engine.RunVerification(context.Background(), []string{"governance"})
			if err != nil {
				t.Fatal(err)
			}

			issue := findIssue(report.Issues, "gov-stale-review-")
			if issue == nil {
				t.Fatal("expected stale review issue")
			}
			if issue.Severity != tc.wantSeverity {
				t.Errorf("severity = %s, want %s", issue.Severity, tc.wantSeverity)
			}
			if !issue.AutoRepairable {
				t.Error("stale review must be auto-repairable")
			}
			if issue.Classification != domain.IssueStaleDate {
				t.Errorf("classification = %s", issue.Classification)
			}
			if got := issue.ProposedState["next_review"]; got != ReviewSentinel {
				t.Errorf("proposed next_review = %v", got)
			}
			if report.LedgerStatus.Governance != domain.HealthDegraded {
				t.Errorf("health = %s, want degraded", report.LedgerStatus.Governance)
			}
		})
	}
}

func TestFutureReviewIsNotStale(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"2026-01-01"}
`)
	engine := newTestEngine(root, testNow)
	report, err := engine.RunVerification(context.Background(), []string{"governance"})
	if err != nil {
		t.Fatal(err)
	}
	if issue := findIssue(report.Issues, "gov-stale-review-"); issue != nil {
		t.Errorf("future next_review flagged stale: %+v", issue)
	}
}

func TestFutureApprovalDateIsCritical(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","approved_date":"2026-01-01"}
`)
	engine := newTestEngine(root, testNow)
	report, err := engine.RunVerification(context.Background(), []string{"governance"})
	if err != nil {
		t.Fatal(err)
	}

	issue := findIssue(report.Issues, "gov-future-approval-")
	if issue == nil {
		t.Fatal("expected future approval issue")
	}
	if issue.Severity != domain.SeverityCritical || issue.Classification != domain.IssueIntegrityBreak {
		t.Errorf("issue = %s/%s", issue.Severity, issue.Classification)
	}
	if report.LedgerStatus.Governance != domain.HealthCritical {
		t.Errorf("health = %s, want critical", report.LedgerStatus.Governance)
	}
}

func TestMissingDocumentReference(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"policy-1","timestamp":"2025-01-01T00:00:00Z","hash":"aa","merkleRoot":"bb","documents":["/nonexistent/governance/charter.md"]}
`)
	engine := newTestEngine(root, testNow)
	report, err := engine.RunVerification(context.Background(), []string{"governance"})
	if err != nil {
		t.Fatal(err)
	}

	issue := findIssue(report.Issues, "gov-missing-doc-")
	if issue == nil {
		t.Fatal("expected missing document issue")
	}
	if issue.Severity != domain.SeverityHigh || issue.Classification != domain.IssueMissingReference {
		t.Errorf("issue = %s/%s", issue.Severity, issue.Classification)
	}
}

func TestConsentEntryMissingFieldsIsLow(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"g1","timestamp":"2025-06-01T00:00:00Z","hash":"aa","merkleRoot":"bb"}
`)
	writeLedger(t, root, domain.LedgerConsent,
		`{"id":"c1","timestamp":"2025-06-01T00:00:00Z","event_type":"consent_granted"}
{"id":"c2","timestamp":"2025-06-02T00:00:00Z"}
`)
	engine := newTestEngine(root, testNow)
	report, err := engine.RunVerification(context.Background(), []string{"consent"})
	if err != nil {
		t.Fatal(err)
	}

	issue := findIssue(report.Issues, "consent-invalid-")
	if issue == nil {
		t.Fatal("expected consent issue")
	}
	if issue.Severity != domain.SeverityLow || issue.Classification != domain.IssueMinorInconsistency {
		t.Errorf("issue = %s/%s, want low/minor_inconsistency", issue.Severity, issue.Classification)
	}
	if issue.AutoRepairable {
		t.Error("consent inconsistencies are never auto-repairable")
	}
	if report.LedgerStatus.Consent != domain.HealthDegraded {
		t.Errorf("consent health = %s", report.LedgerStatus.Consent)
	}
}

func TestFederationStaleness(t *testing.T) {
	cases := []struct {
		name         string
		verifiedAt   string
		wantIssue    bool
		wantSeverity domain.IssueSeverity
	}{
		{"fresh verification passes", "2025-06-14T12:00:00Z", false, ""},
		{"three days old is medium", "2025-06-12T00:00:00Z", true, domain.SeverityMedium},
		{"over a week is high", "2025-06-01T00:00:00Z", true, domain.SeverityHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeLedger(t, root, domain.LedgerFederation,
				`{"id":"f1","timestamp":"`+tc.verifiedAt+`","entryType":"federation_verification","hash":"aa","merkleRoot":"bb"}
`)
			engine := newTestEngine(root, testNow)
			report, err := engine.RunVerification(context.Background(), []string{"federation"})
			if err != nil {
				t.Fatal(err)
			}
			issue := findIssue(report.Issues, "federation-stale-")
			if tc.wantIssue {
				if issue == nil {
					t.Fatal("expected federation staleness issue")
				}
				if issue.Severity != tc.wantSeverity {
					t.Errorf("severity = %s, want %s", issue.Severity, tc.wantSeverity)
				}
			} else if issue != nil {
				t.Errorf("unexpected staleness issue: %+v", issue)
			}
		})
	}
}

func TestExpiredTrustProofIsMedium(t *testing.T) {
	root := t.TempDir()
	store := ledger.NewStore(root)
	ctx := context.Background()
	if err := store.AppendActiveProof(ctx, domain.ActiveProofRecord{
		ArtifactID: "report-2024",
		ExpiresAt:  "2025-01-01T00:00:00Z",
		Status:     "active",
	}); err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(root, testNow)
	report, err := engine.RunVerification(context.Background(), []string{"trust"})
	if err != nil {
		t.Fatal(err)
	}

	issue := findIssue(report.Issues, "trust-expired-")
	if issue == nil {
		t.Fatal("expected expired proof issue")
	}
	if issue.Severity != domain.SeverityMedium || issue.Classification != domain.IssueAttestationExpired {
		t.Errorf("issue = %s/%s", issue.Severity, issue.Classification)
	}
	if report.LedgerStatus.TrustProofs != domain.HealthDegraded {
		t.Errorf("trust proof health = %s", report.LedgerStatus.TrustProofs)
	}
}

func TestGlobalMerkleRootFoldsLedgerRoots(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"g1","timestamp":"2025-06-01T00:00:00Z","hash":"aa","merkleRoot":"rootg"}
`)
	writeLedger(t, root, domain.LedgerConsent,
		`{"id":"c1","timestamp":"2025-06-01T00:00:00Z","event_type":"consent_granted","hash":"aa","merkleRoot":"rootc"}
`)
	engine := newTestEngine(root, testNow)
	report, err := engine.RunVerification(context.Background(), []string{"all"})
	if err != nil {
		t.Fatal(err)
	}
	want := crypto.NewService().SHA256Hex("rootg" + "rootc")
	if report.GlobalMerkleRoot != want {
		t.Errorf("global merkle root = %s, want %s", report.GlobalMerkleRoot, want)
	}
}

func TestHealthyReportState(t *testing.T) {
	root := t.TempDir()
	writeLedger(t, root, domain.LedgerGovernance,
		`{"id":"g1","timestamp":"2025-06-01T00:00:00Z","hash":"aa","merkleRoot":"bb","next_review":"2026-01-01"}
`)
	engine := newTestEngine(root, testNow)
	report, err := engine.RunVerification(context.Background(), []string{"governance"})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalIssues != 0 {
		t.Fatalf("unexpected issues: %+v", report.Issues)
	}
	if report.SystemState != domain.StateHealthy {
		t.Errorf("system state = %s, want healthy", report.SystemState)
	}
}
