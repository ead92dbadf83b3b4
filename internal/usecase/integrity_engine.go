package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
)

type Clock func() time.Time

// IntegrityEngine runs ledger-specific health checks and derives the
// system-wide state. Its report is the only channel by which defects reach
// the repair manager.
type IntegrityEngine struct {
	Store  *ledger.Store
	Crypto *crypto.Service
	Clock  Clock

	logger *slog.Logger
}

func NewIntegrityEngine(store *ledger.Store, cryptoSvc *crypto.Service, clock Clock) *IntegrityEngine {
	if clock == nil {
		clock = time.Now
	}
	return &IntegrityEngine{
		Store:  store,
		Crypto: cryptoSvc,
		Clock:  clock,
		logger: slog.Default().With("component", "integrity"),
	}
}

// RunVerification checks every in-scope ledger and returns a single report.
// Structural violations become classified issues, never errors; only I/O
// failures below the store surface as errors.
func (e *IntegrityEngine) RunVerification(ctx context.Context, scope []string) (domain.IntegrityReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.IntegrityReport{}, err
	}
	if len(scope) == 0 {
		scope = []string{"all"}
	}
	inScope := scopeSet(scope)
	now := e.Clock().UTC()

	var issues []domain.IntegrityIssue
	status := domain.LedgerStatus{
		Governance:  domain.HealthValid,
		Consent:     domain.HealthValid,
		Federation:  domain.HealthValid,
		TrustProofs: domain.HealthValid,
	}

	if inScope["governance"] {
		status.Governance = e.checkGovernance(&issues, now)
	}
	if inScope["consent"] {
		status.Consent = e.checkConsent(&issues, now)
	}
	if inScope["federation"] {
		status.Federation = e.checkFederation(&issues, now)
	}
	if inScope["trust"] {
		status.TrustProofs = e.checkTrustProofs(&issues, now)
	}

	requiresReview := 0
	for _, issue := range issues {
		if !issue.AutoRepairable {
			requiresReview++
		}
	}

	report := domain.IntegrityReport{
		Timestamp:           now.Format(time.RFC3339),
		VerificationScope:   scope,
		TotalIssues:         len(issues),
		RequiresHumanReview: requiresReview,
		Issues:              issues,
		LedgerStatus:        status,
		GlobalMerkleRoot:    e.globalMerkleRoot(inScope),
		SystemState:         deriveSystemState(status, requiresReview),
	}
	e.logger.Info("verification complete",
		"scope", scope,
		"issues", report.TotalIssues,
		"state", report.SystemState)
	return report, nil
}

func scopeSet(scope []string) map[string]bool {
	set := make(map[string]bool, len(scope))
	for _, s := range scope {
		if s == "all" {
			return map[string]bool{"governance": true, "consent": true, "federation": true, "trust": true}
		}
		set[s] = true
	}
	return set
}

func (e *IntegrityEngine) checkGovernance(issues *[]domain.IntegrityIssue, now time.Time) domain.LedgerHealth {
	entries, _, err := e.Store.Parse(domain.LedgerGovernance)
	if err != nil || len(entries) == 0 {
		*issues = append(*issues, domain.IntegrityIssue{
			IssueID:        fmt.Sprintf("gov-empty-%d", now.UnixMilli()),
			Classification: domain.IssueIntegrityBreak,
			Severity:       domain.SeverityCritical,
			AffectedLedger: domain.LedgerGovernance,
			Description:    "Governance ledger is empty or unreadable",
			Details:        "The governance ledger file exists but contains no valid entries",
			AutoRepairable: false,
			DetectedAt:     now.Format(time.RFC3339),
		})
		return domain.HealthCritical
	}

	criticalCount := 0
	degradedCount := 0
	knownIDs := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if id := entry.Identifier(); id != "" {
			knownIDs[id] = true
		}
	}

	for i, entry := range entries {
		if missing := missingRequiredFields(entry); len(missing) > 0 {
			entryID := entry.Identifier()
			if entryID == "" {
				entryID = fmt.Sprintf("entry-%d", i)
			}
			*issues = append(*issues, domain.IntegrityIssue{
				IssueID:        fmt.Sprintf("gov-missing-fields-%d", i),
				Classification: domain.IssueIntegrityBreak,
				Severity:       domain.SeverityHigh,
				AffectedLedger: domain.LedgerGovernance,
				EntryID:        entryID,
				Description:    fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")),
				Details:        fmt.Sprintf("Entry at index %d is missing critical fields", i),
				AutoRepairable: false,
				DetectedAt:     now.Format(time.RFC3339),
			})
			criticalCount++
		}

		if nextReview := entry.StringField("next_review"); nextReview != "" {
			if reviewTime, ok := parseDate(nextReview); ok && reviewTime.Before(now) {
				daysPast := int(now.Sub(reviewTime).Hours() / 24)
				severity := domain.SeverityMedium
				if daysPast > 90 {
					severity = domain.SeverityHigh
				}
				*issues = append(*issues, domain.IntegrityIssue{
					IssueID:        fmt.Sprintf("gov-stale-review-%s", entry.Identifier()),
					Classification: domain.IssueStaleDate,
					Severity:       severity,
					AffectedLedger: domain.LedgerGovernance,
					EntryID:        entry.Identifier(),
					Description:    fmt.Sprintf("Review date is %d days overdue", daysPast),
					Details:        fmt.Sprintf("Entry %q has next_review: %s", entry.Identifier(), nextReview),
					AutoRepairable: true,
					OriginalState:  map[string]any{"next_review": nextReview},
					ProposedState:  map[string]any{"next_review": ReviewSentinel},
					Rationale:      fmt.Sprintf("Automated escalation: next_review date exceeded by %d days", daysPast),
					DetectedAt:     now.Format(time.RFC3339),
				})
				degradedCount++
			}
		}

		// A future approval date would indicate timestamp manipulation.
		if approved := entry.StringField("approved_date"); approved != "" {
			if approvedTime, ok := parseDate(approved); ok && approvedTime.After(now) {
				*issues = append(*issues, domain.IntegrityIssue{
					IssueID:        fmt.Sprintf("gov-future-approval-%s", entry.Identifier()),
					Classification: domain.IssueIntegrityBreak,
					Severity:       domain.SeverityCritical,
					AffectedLedger: domain.LedgerGovernance,
					EntryID:        entry.Identifier(),
					Description:    "Approval date is in the future",
					Details:        fmt.Sprintf("Entry has approved_date: %s which is in the future", approved),
					AutoRepairable: false,
					DetectedAt:     now.Format(time.RFC3339),
				})
				criticalCount++
			}
		}

		for _, doc := range entry.StringsField("documents") {
			if !e.Store.FileExists(doc) {
				*issues = append(*issues, domain.IntegrityIssue{
					IssueID:        fmt.Sprintf("gov-missing-doc-%s-%s", entry.Identifier(), e.Crypto.SHA256Hex(doc)[:8]),
					Classification: domain.IssueMissingReference,
					Severity:       domain.SeverityHigh,
					AffectedLedger: domain.LedgerGovernance,
					EntryID:        entry.Identifier(),
					Description:    fmt.Sprintf("Referenced document not found: %s", doc),
					Details:        "Entry references document that does not exist at expected path",
					AutoRepairable: false,
					DetectedAt:     now.Format(time.RFC3339),
				})
				criticalCount++
			}
		}

		for _, artifact := range entry.StringsField("artifactLinks") {
			if !e.Store.FileExists(artifact) {
				*issues = append(*issues, domain.IntegrityIssue{
					IssueID:        fmt.Sprintf("gov-missing-artifact-%s-%s", entry.Identifier(), e.Crypto.SHA256Hex(artifact)[:8]),
					Classification: domain.IssueMissingReference,
					Severity:       domain.SeverityMedium,
					AffectedLedger: domain.LedgerGovernance,
					EntryID:        entry.Identifier(),
					Description:    fmt.Sprintf("Referenced artifact not found: %s", artifact),
					Details:        "Entry references artifact that does not exist at expected path",
					AutoRepairable: false,
					DetectedAt:     now.Format(time.RFC3339),
				})
				degradedCount++
			}
		}

		// Chain continuity: a parent reference that resolves to no known
		// entry is a break in recorded history.
		if parent := entry.StringField("parent"); parent != "" && !knownIDs[parent] {
			*issues = append(*issues, domain.IntegrityIssue{
				IssueID:        fmt.Sprintf("gov-chain-gap-%s", entry.Identifier()),
				Classification: domain.IssueIntegrityBreak,
				Severity:       domain.SeverityCritical,
				AffectedLedger: domain.LedgerGovernance,
				EntryID:        entry.Identifier(),
				Description:    fmt.Sprintf("Entry references missing parent: %s", parent),
				Details:        "Hash chain continuity gap detected",
				AutoRepairable: false,
				DetectedAt:     now.Format(time.RFC3339),
			})
			criticalCount++
		}
	}

	if criticalCount > 0 {
		return domain.HealthCritical
	}
	if degradedCount > 0 {
		return domain.HealthDegraded
	}
	return domain.HealthValid
}

func (e *IntegrityEngine) checkConsent(issues *[]domain.IntegrityIssue, now time.Time) domain.LedgerHealth {
	entries, _, err := e.Store.Parse(domain.LedgerConsent)
	if err != nil || len(entries) == 0 {
		// The consent ledger is optional until first use.
		return domain.HealthValid
	}

	degradedCount := 0
	for i, entry := range entries {
		if entry.Timestamp == "" || entry.StringField("event_type") == "" {
			*issues = append(*issues, domain.IntegrityIssue{
				IssueID:        fmt.Sprintf("consent-invalid-%d", i),
				Classification: domain.IssueMinorInconsistency,
				Severity:       domain.SeverityLow,
				AffectedLedger: domain.LedgerConsent,
				Description:    "Consent entry missing required fields",
				Details:        fmt.Sprintf("Entry at index %d is missing timestamp or event_type", i),
				AutoRepairable: false,
				DetectedAt:     now.Format(time.RFC3339),
			})
			degradedCount++
		}
	}
	if degradedCount > 0 {
		return domain.HealthDegraded
	}
	return domain.HealthValid
}

func (e *IntegrityEngine) checkFederation(issues *[]domain.IntegrityIssue, now time.Time) domain.LedgerHealth {
	entries, _, err := e.Store.Parse(domain.LedgerFederation)
	if err != nil || len(entries) == 0 {
		return domain.HealthValid
	}

	var latest *domain.LedgerEntry
	for i := range entries {
		if entries[i].Type() == domain.EntryFederationVerification {
			latest = &entries[i]
		}
	}
	if latest == nil {
		return domain.HealthValid
	}

	verifiedAt, ok := parseDate(latest.Timestamp)
	if !ok {
		return domain.HealthValid
	}
	daysSince := int(now.Sub(verifiedAt).Hours() / 24)
	if daysSince <= 2 {
		return domain.HealthValid
	}

	severity := domain.SeverityMedium
	if daysSince > 7 {
		severity = domain.SeverityHigh
	}
	*issues = append(*issues, domain.IntegrityIssue{
		IssueID:        fmt.Sprintf("federation-stale-%d", now.UnixMilli()),
		Classification: domain.IssueFederationStale,
		Severity:       severity,
		AffectedLedger: domain.LedgerFederation,
		Description:    fmt.Sprintf("Federation verification is %d days old", daysSince),
		Details:        fmt.Sprintf("Last verification: %s", latest.Timestamp),
		AutoRepairable: false,
		DetectedAt:     now.Format(time.RFC3339),
	})
	return domain.HealthDegraded
}

func (e *IntegrityEngine) checkTrustProofs(issues *[]domain.IntegrityIssue, now time.Time) domain.LedgerHealth {
	proofs, err := e.Store.ActiveProofs()
	if err != nil || len(proofs) == 0 {
		return domain.HealthValid
	}

	degradedCount := 0
	criticalCount := 0
	for i, proof := range proofs {
		artifactID := proof.ArtifactID
		if artifactID == "" {
			artifactID = fmt.Sprintf("%d", i)
		}
		if proof.ExpiresAt != "" {
			if expiry, ok := parseDate(proof.ExpiresAt); ok && expiry.Before(now) {
				*issues = append(*issues, domain.IntegrityIssue{
					IssueID:        fmt.Sprintf("trust-expired-%s", artifactID),
					Classification: domain.IssueAttestationExpired,
					Severity:       domain.SeverityMedium,
					AffectedLedger: domain.LedgerTrustProofs,
					Description:    fmt.Sprintf("Trust proof expired: %s", proof.ArtifactID),
					Details:        fmt.Sprintf("Proof expired at %s", proof.ExpiresAt),
					AutoRepairable: false,
					DetectedAt:     now.Format(time.RFC3339),
				})
				degradedCount++
			}
		}
		if proof.FilePath != "" && !e.Store.FileExists(proof.FilePath) {
			*issues = append(*issues, domain.IntegrityIssue{
				IssueID:        fmt.Sprintf("trust-missing-file-%s", artifactID),
				Classification: domain.IssueMissingReference,
				Severity:       domain.SeverityHigh,
				AffectedLedger: domain.LedgerTrustProofs,
				Description:    fmt.Sprintf("Trust proof references missing file: %s", proof.FilePath),
				Details:        fmt.Sprintf("Artifact %s references non-existent file", proof.ArtifactID),
				AutoRepairable: false,
				DetectedAt:     now.Format(time.RFC3339),
			})
			criticalCount++
		}
	}

	if criticalCount > 0 {
		return domain.HealthCritical
	}
	if degradedCount > 0 {
		return domain.HealthDegraded
	}
	return domain.HealthValid
}

// globalMerkleRoot folds the last known Merkle root of each in-scope ledger
// through the same rolling-fold primitive the ledgers use internally.
func (e *IntegrityEngine) globalMerkleRoot(inScope map[string]bool) string {
	var roots []string
	appendRoot := func(name domain.LedgerName) {
		entries, _, err := e.Store.Parse(name)
		if err != nil || len(entries) == 0 {
			return
		}
		if root := entries[len(entries)-1].MerkleRoot; root != "" {
			roots = append(roots, root)
		}
	}
	if inScope["governance"] {
		appendRoot(domain.LedgerGovernance)
	}
	if inScope["consent"] {
		appendRoot(domain.LedgerConsent)
	}
	if inScope["federation"] {
		appendRoot(domain.LedgerFederation)
	}
	if len(roots) == 0 {
		return ""
	}
	return e.Crypto.MerkleFold(roots)
}

func deriveSystemState(status domain.LedgerStatus, pendingReviews int) domain.SystemState {
	healths := []domain.LedgerHealth{status.Governance, status.Consent, status.Federation, status.TrustProofs}
	for _, h := range healths {
		if h == domain.HealthCritical {
			return domain.StateAttentionRequired
		}
	}
	if pendingReviews > 0 {
		return domain.StateAttentionRequired
	}
	for _, h := range healths {
		if h == domain.HealthDegraded {
			return domain.StateDegraded
		}
	}
	return domain.StateHealthy
}

func missingRequiredFields(entry domain.LedgerEntry) []string {
	var missing []string
	if entry.Identifier() == "" {
		missing = append(missing, "id")
	}
	if entry.Timestamp == "" {
		missing = append(missing, "timestamp")
	}
	if entry.Hash == "" {
		missing = append(missing, "hash")
	}
	if entry.MerkleRoot == "" {
		missing = append(missing, "merkleRoot")
	}
	return missing
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
