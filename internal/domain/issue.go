package domain

type IssueClassification string

const (
	IssueMinorInconsistency  IssueClassification = "minor_inconsistency"
	IssueStaleDate           IssueClassification = "stale_date"
	IssueHashMismatch        IssueClassification = "hash_mismatch"
	IssueMissingReference    IssueClassification = "missing_reference"
	IssueIntegrityBreak      IssueClassification = "integrity_break"
	IssueComplianceDowngrade IssueClassification = "compliance_downgrade"
	IssueAttestationExpired  IssueClassification = "attestation_expired"
	IssueFederationStale     IssueClassification = "federation_stale"
)

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// IntegrityIssue is produced fresh on every verification run and is never
// persisted directly; only the repair action it triggers reaches a ledger.
type IntegrityIssue struct {
	IssueID        string              `json:"issue_id"`
	Classification IssueClassification `json:"classification"`
	Severity       IssueSeverity       `json:"severity"`
	AffectedLedger LedgerName          `json:"affected_ledger"`
	EntryID        string              `json:"entry_id,omitempty"`
	Description    string              `json:"description"`
	Details        string              `json:"details,omitempty"`
	AutoRepairable bool                `json:"auto_repairable"`
	OriginalState  map[string]any      `json:"original_state,omitempty"`
	ProposedState  map[string]any      `json:"proposed_state,omitempty"`
	Rationale      string              `json:"rationale,omitempty"`
	DetectedAt     string              `json:"detected_at"`
}
