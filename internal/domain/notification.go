package domain

// EmailNotification is a fully formed notification body; delivery is an
// external collaborator's job.
type EmailNotification struct {
	To      string                `json:"to"`
	Subject string                `json:"subject"`
	Body    EmailNotificationBody `json:"body"`
}

type EmailNotificationBody struct {
	IssueClassification IssueClassification `json:"issue_classification"`
	Severity            IssueSeverity       `json:"severity"`
	DetectedAt          string              `json:"detected_at"`
	Description         string              `json:"description"`
	AffectedLedgers     []LedgerName        `json:"affected_ledgers"`
	ActionRequired      string              `json:"action_required"`
	ReviewURL           string              `json:"review_url"`
	LedgerEntryID       string              `json:"ledger_entry_id"`
}

// WebhookPayload is signed with HMAC-SHA256 over its JSON serialization with
// Signature left empty; the computed signature is then attached.
type WebhookPayload struct {
	EventType     string         `json:"event_type"`
	Timestamp     string         `json:"timestamp"`
	Severity      IssueSeverity  `json:"severity"`
	Issue         IntegrityIssue `json:"issue"`
	RepairEntryID string         `json:"repair_entry_id"`
	Signature     string         `json:"signature"`
}
