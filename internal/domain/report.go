package domain

type LedgerHealth string

const (
	HealthValid    LedgerHealth = "valid"
	HealthDegraded LedgerHealth = "degraded"
	HealthCritical LedgerHealth = "critical"
)

type SystemState string

const (
	StateHealthy           SystemState = "healthy"
	StateDegraded          SystemState = "degraded"
	StateAttentionRequired SystemState = "attention_required"
)

// LedgerStatus holds the per-ledger health of one verification run.
type LedgerStatus struct {
	Governance  LedgerHealth `json:"governance"`
	Consent     LedgerHealth `json:"consent"`
	Federation  LedgerHealth `json:"federation"`
	TrustProofs LedgerHealth `json:"trust_proofs"`
}

// IntegrityReport is the single channel by which defects reach the repair
// manager.
type IntegrityReport struct {
	Timestamp           string           `json:"timestamp"`
	VerificationScope   []string         `json:"verification_scope"`
	TotalIssues         int              `json:"total_issues"`
	AutoRepaired        int              `json:"auto_repaired"`
	RequiresHumanReview int              `json:"requires_human_review"`
	Issues              []IntegrityIssue `json:"issues"`
	LedgerStatus        LedgerStatus     `json:"ledger_status"`
	GlobalMerkleRoot    string           `json:"global_merkle_root"`
	SystemState         SystemState      `json:"system_state"`
}
