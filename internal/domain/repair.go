package domain

type RepairStatus string

const (
	RepairApplied       RepairStatus = "applied"
	RepairPendingReview RepairStatus = "pending_human_review"
	RepairResolved      RepairStatus = "resolved"
	RepairRejected      RepairStatus = "rejected"
)

// AutonomousRepairEntry records every repair-manager action, applied or
// escalated, as an immutable ledger entry. A later human-review process may
// update Status; nothing else is ever mutated.
type AutonomousRepairEntry struct {
	EntryID             string              `json:"entry_id"`
	LedgerEntryType     EntryType           `json:"ledger_entry_type"`
	Title               string              `json:"title"`
	Status              RepairStatus        `json:"status"`
	AppliedAt           string              `json:"applied_at"`
	ResponsibleRoles    []string            `json:"responsible_roles"`
	IssueClassification IssueClassification `json:"issue_classification"`
	OriginalState       map[string]any      `json:"original_state"`
	NewState            map[string]any      `json:"new_state"`
	Rationale           string              `json:"rationale"`
	RequiresFollowupBy  string              `json:"requires_followup_by,omitempty"`
	FollowupOwner       string              `json:"followup_owner,omitempty"`
	Hash                string              `json:"hash"`
	MerkleRoot          string              `json:"merkleRoot"`
	Signature           *string             `json:"signature"`
}

// RepairResult is the outcome of one attempted repair. A failed result means
// no ledger entry was written.
type RepairResult struct {
	Success     bool                   `json:"success"`
	RepairEntry *AutonomousRepairEntry `json:"repair_entry,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// RepairRunSummary buckets the results of a full repair pass.
type RepairRunSummary struct {
	Repaired  []RepairResult `json:"repaired"`
	Escalated []RepairResult `json:"escalated"`
	Failed    []RepairResult `json:"failed"`
}

// RepairDecision is the policy engine's verdict for one issue.
type RepairDecision struct {
	Action       RepairAction `json:"action"`
	FollowupDays int          `json:"followup_days"`
}

type RepairAction string

const (
	RepairActionApply    RepairAction = "apply"
	RepairActionEscalate RepairAction = "escalate"
)
