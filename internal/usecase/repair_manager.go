package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
)

// ReviewSentinel is the value written into next_review by an applied repair.
// It is not a date: it forces every downstream date comparison to fail until
// a human schedules the real review.
const ReviewSentinel = "ATTENTION_REQUIRED"

// RepairPolicy decides, per issue, whether the manager may apply a repair or
// must escalate, and how many days the follow-up window gets.
type RepairPolicy interface {
	Decide(ctx context.Context, issue domain.IntegrityIssue) (domain.RepairDecision, error)
}

// followupDays mirrors the policy defaults, used when no policy engine is
// wired (tests, minimal CLI runs).
var followupDays = map[domain.IssueSeverity]int{
	domain.SeverityCritical: 1,
	domain.SeverityHigh:     2,
	domain.SeverityMedium:   5,
	domain.SeverityLow:      7,
}

// RepairManager is deliberately conservative: the only mutation it ever
// performs is replacing a stale next_review with the sentinel. Every action,
// applied or escalated, is recorded as an immutable governance ledger entry.
type RepairManager struct {
	Store  *ledger.Store
	Crypto *crypto.Service
	Clock  Clock
	Policy RepairPolicy

	logger *slog.Logger
}

func NewRepairManager(store *ledger.Store, cryptoSvc *crypto.Service, clock Clock, policy RepairPolicy) *RepairManager {
	if clock == nil {
		clock = time.Now
	}
	return &RepairManager{
		Store:  store,
		Crypto: cryptoSvc,
		Clock:  clock,
		Policy: policy,
		logger: slog.Default().With("component", "repair"),
	}
}

// ProcessIssues runs one repair pass over a verification report's issues.
// With dryRun set, decisions are computed and returned but nothing is written.
func (m *RepairManager) ProcessIssues(ctx context.Context, issues []domain.IntegrityIssue, dryRun bool) (domain.RepairRunSummary, error) {
	_, summary, err := m.ProcessIssuesDetailed(ctx, issues, dryRun)
	return summary, err
}

// ProcessIssuesDetailed additionally returns per-issue results in input
// order, for callers that pair results back to their issues (notifications).
func (m *RepairManager) ProcessIssuesDetailed(ctx context.Context, issues []domain.IntegrityIssue, dryRun bool) ([]domain.RepairResult, domain.RepairRunSummary, error) {
	summary := domain.RepairRunSummary{}
	results := make([]domain.RepairResult, 0, len(issues))
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return results, summary, err
		}
		result := m.AttemptRepair(ctx, issue, dryRun)
		results = append(results, result)
		switch {
		case !result.Success:
			summary.Failed = append(summary.Failed, result)
		case result.RepairEntry != nil && result.RepairEntry.Status == domain.RepairApplied:
			summary.Repaired = append(summary.Repaired, result)
		default:
			summary.Escalated = append(summary.Escalated, result)
		}
	}
	m.logger.Info("repair pass complete",
		"repaired", len(summary.Repaired),
		"escalated", len(summary.Escalated),
		"failed", len(summary.Failed),
		"dry_run", dryRun)
	return results, summary, nil
}

// AttemptRepair processes one issue. A failed result means no ledger entry
// was written; the issue surfaces again on the next verification run.
func (m *RepairManager) AttemptRepair(ctx context.Context, issue domain.IntegrityIssue, dryRun bool) domain.RepairResult {
	decision, err := m.decide(ctx, issue)
	if err != nil {
		m.logger.Error("repair policy evaluation failed", "issue", issue.IssueID, "err", err)
		return domain.RepairResult{Error: fmt.Sprintf("policy evaluation failed: %v", err)}
	}

	if decision.Action == domain.RepairActionApply {
		return m.applyStaleDate(ctx, issue, dryRun)
	}
	return m.escalate(ctx, issue, decision.FollowupDays, dryRun)
}

func (m *RepairManager) decide(ctx context.Context, issue domain.IntegrityIssue) (domain.RepairDecision, error) {
	if m.Policy != nil {
		return m.Policy.Decide(ctx, issue)
	}
	if issue.AutoRepairable && issue.Classification == domain.IssueStaleDate {
		return domain.RepairDecision{Action: domain.RepairActionApply}, nil
	}
	days, ok := followupDays[issue.Severity]
	if !ok {
		days = 3
	}
	return domain.RepairDecision{Action: domain.RepairActionEscalate, FollowupDays: days}, nil
}

func (m *RepairManager) applyStaleDate(ctx context.Context, issue domain.IntegrityIssue, dryRun bool) domain.RepairResult {
	if issue.EntryID == "" {
		return domain.RepairResult{Error: "stale_date issue has no entry_id"}
	}

	target, err := m.Store.FindEntry(issue.AffectedLedger, issue.EntryID)
	if err != nil {
		return domain.RepairResult{Error: fmt.Sprintf("repair target not found: %v", err)}
	}

	// Re-check the live value before mutating. If the entry was already
	// flagged, or the date was fixed since detection, this run must not
	// stamp it again.
	expected, _ := issue.OriginalState["next_review"].(string)
	current := target.StringField("next_review")
	if current != expected {
		return m.escalateWithRationale(ctx, issue, 3, dryRun,
			fmt.Sprintf("Target entry %q changed since detection (next_review is now %q); declining automatic repair", issue.EntryID, current))
	}

	entry := m.buildRepairEntry(issue, domain.RepairApplied, 0, issue.Rationale)

	if dryRun {
		return domain.RepairResult{Success: true, RepairEntry: &entry}
	}

	if err := m.Store.UpdateEntryFields(ctx, issue.AffectedLedger, issue.EntryID, map[string]any{
		"next_review": ReviewSentinel,
	}); err != nil {
		m.logger.Error("repair mutation failed", "issue", issue.IssueID, "err", err)
		return domain.RepairResult{Error: fmt.Sprintf("ledger update failed: %v", err)}
	}
	if err := m.Store.AppendRaw(ctx, domain.LedgerGovernance, entry); err != nil {
		m.logger.Error("repair entry append failed", "issue", issue.IssueID, "err", err)
		return domain.RepairResult{Error: fmt.Sprintf("repair entry append failed: %v", err)}
	}

	m.logger.Info("repair applied", "issue", issue.IssueID, "entry", entry.EntryID)
	return domain.RepairResult{Success: true, RepairEntry: &entry}
}

func (m *RepairManager) escalate(ctx context.Context, issue domain.IntegrityIssue, days int, dryRun bool) domain.RepairResult {
	rationale := issue.Rationale
	if rationale == "" {
		rationale = fmt.Sprintf("Escalated for human review: %s", issue.Description)
	}
	return m.escalateWithRationale(ctx, issue, days, dryRun, rationale)
}

func (m *RepairManager) escalateWithRationale(ctx context.Context, issue domain.IntegrityIssue, days int, dryRun bool, rationale string) domain.RepairResult {
	if days <= 0 {
		days = 3
	}
	entry := m.buildRepairEntry(issue, domain.RepairPendingReview, days, rationale)

	if dryRun {
		return domain.RepairResult{Success: true, RepairEntry: &entry}
	}
	if err := m.Store.AppendRaw(ctx, domain.LedgerGovernance, entry); err != nil {
		m.logger.Error("escalation append failed", "issue", issue.IssueID, "err", err)
		return domain.RepairResult{Error: fmt.Sprintf("escalation append failed: %v", err)}
	}
	m.logger.Info("issue escalated", "issue", issue.IssueID, "entry", entry.EntryID, "followup_days", days)
	return domain.RepairResult{Success: true, RepairEntry: &entry}
}

func (m *RepairManager) buildRepairEntry(issue domain.IntegrityIssue, status domain.RepairStatus, followupDays int, rationale string) domain.AutonomousRepairEntry {
	now := m.Clock().UTC()
	entry := domain.AutonomousRepairEntry{
		EntryID:             fmt.Sprintf("autonomous_repair-%s-%s", now.Format(time.RFC3339), uuid.NewString()[:8]),
		LedgerEntryType:     domain.EntryAutonomousRepair,
		Title:               fmt.Sprintf("Autonomous repair: %s", issue.Description),
		Status:              status,
		AppliedAt:           now.Format(time.RFC3339),
		ResponsibleRoles:    []string{"integrity-engine", "governance-officer"},
		IssueClassification: issue.Classification,
		OriginalState:       issue.OriginalState,
		NewState:            issue.ProposedState,
		Rationale:           rationale,
	}
	if entry.OriginalState == nil {
		entry.OriginalState = map[string]any{}
	}
	if entry.NewState == nil {
		entry.NewState = map[string]any{}
	}
	if followupDays > 0 {
		entry.RequiresFollowupBy = now.AddDate(0, 0, followupDays).Format(time.RFC3339)
		entry.FollowupOwner = "governance-officer"
	}

	entry.Hash = m.repairHash(entry)
	entry.MerkleRoot = m.repairMerkleRoot(entry)
	// Signature stays null until a signing authority is attached.
	return entry
}

// repairHash covers the entry minus its own hash, merkleRoot and signature.
func (m *RepairManager) repairHash(entry domain.AutonomousRepairEntry) string {
	stripped := hashableRepairEntry{
		EntryID:             entry.EntryID,
		LedgerEntryType:     entry.LedgerEntryType,
		Title:               entry.Title,
		Status:              entry.Status,
		AppliedAt:           entry.AppliedAt,
		ResponsibleRoles:    entry.ResponsibleRoles,
		IssueClassification: entry.IssueClassification,
		OriginalState:       entry.OriginalState,
		NewState:            entry.NewState,
		Rationale:           entry.Rationale,
		RequiresFollowupBy:  entry.RequiresFollowupBy,
		FollowupOwner:       entry.FollowupOwner,
	}

	hash, err := m.Crypto.SHA256Canonical(stripped)
	if err != nil {
		// Canonicalization of a repair entry cannot fail on the types it
		// carries; guard against silent divergence anyway.
		m.logger.Error("repair entry canonicalization failed", "err", err)
		return ""
	}
	return hash
}

// hashableRepairEntry drops the zero-valued hash fields entirely so their
// empty placeholders never enter the digest.
type hashableRepairEntry struct {
	EntryID             string                     `json:"entry_id"`
	LedgerEntryType     domain.EntryType           `json:"ledger_entry_type"`
	Title               string                     `json:"title"`
	Status              domain.RepairStatus        `json:"status"`
	AppliedAt           string                     `json:"applied_at"`
	ResponsibleRoles    []string                   `json:"responsible_roles"`
	IssueClassification domain.IssueClassification `json:"issue_classification"`
	OriginalState       map[string]any             `json:"original_state"`
	NewState            map[string]any             `json:"new_state"`
	Rationale           string                     `json:"rationale"`
	RequiresFollowupBy  string                     `json:"requires_followup_by,omitempty"`
	FollowupOwner       string                     `json:"followup_owner,omitempty"`
}

func (m *RepairManager) repairMerkleRoot(entry domain.AutonomousRepairEntry) string {
	original, _ := json.Marshal(entry.OriginalState)
	updated, _ := json.Marshal(entry.NewState)
	return m.Crypto.SHA256Hex(
		entry.EntryID + entry.AppliedAt + string(entry.IssueClassification) + string(original) + string(updated))
}

// RecentRepairs returns the newest repair entries, most recent first.
func (m *RepairManager) RecentRepairs(limit int) ([]domain.LedgerEntry, error) {
	entries, err := m.Store.EntriesByType(domain.LedgerGovernance, domain.EntryAutonomousRepair)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]domain.LedgerEntry, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// PendingRepairs returns repair entries still awaiting human review.
func (m *RepairManager) PendingRepairs() ([]domain.LedgerEntry, error) {
	entries, err := m.Store.EntriesByType(domain.LedgerGovernance, domain.EntryAutonomousRepair)
	if err != nil {
		return nil, err
	}
	var out []domain.LedgerEntry
	for _, entry := range entries {
		if entry.StringField("status") == string(domain.RepairPendingReview) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// CountOpenIssues reports, per classification, how many repair entries have
// not reached a terminal status.
func (m *RepairManager) CountOpenIssues() (map[domain.IssueClassification]int, error) {
	entries, err := m.Store.EntriesByType(domain.LedgerGovernance, domain.EntryAutonomousRepair)
	if err != nil {
		return nil, err
	}
	open := make(map[domain.IssueClassification]int)
	for _, entry := range entries {
		status := domain.RepairStatus(entry.StringField("status"))
		if status != domain.RepairResolved && status != domain.RepairRejected {
			open[domain.IssueClassification(entry.StringField("issue_classification"))]++
		}
	}
	return open, nil
}
