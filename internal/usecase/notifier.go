package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
)

// Notifier builds escalation payloads. Delivery is out of scope; callers hand
// the built notifications to whatever transport the deployment wires in.
type Notifier struct {
	Crypto        *crypto.Service
	Clock         Clock
	OfficerEmail  string
	ReviewBaseURL string
	WebhookSecret string

	logger *slog.Logger
}

func NewNotifier(cryptoSvc *crypto.Service, clock Clock, officerEmail, reviewBaseURL, webhookSecret string) *Notifier {
	if clock == nil {
		clock = time.Now
	}
	return &Notifier{
		Crypto:        cryptoSvc,
		Clock:         clock,
		OfficerEmail:  officerEmail,
		ReviewBaseURL: reviewBaseURL,
		WebhookSecret: webhookSecret,
		logger:        slog.Default().With("component", "notifier"),
	}
}

var severityPrefix = map[domain.IssueSeverity]string{
	domain.SeverityCritical: "[CRITICAL]",
	domain.SeverityHigh:     "[HIGH]",
	domain.SeverityMedium:   "[MEDIUM]",
	domain.SeverityLow:      "[LOW]",
}

var severityAction = map[domain.IssueSeverity]string{
	domain.SeverityCritical: "Immediate review required within 24 hours",
	domain.SeverityHigh:     "Review required within 48 hours",
	domain.SeverityMedium:   "Review required within 5 business days",
	domain.SeverityLow:      "Review at next scheduled governance meeting",
}

// BuildEmail produces the governance-officer notification for one escalated
// issue.
func (n *Notifier) BuildEmail(issue domain.IntegrityIssue, repairEntryID string) domain.EmailNotification {
	prefix, ok := severityPrefix[issue.Severity]
	if !ok {
		prefix = "[MEDIUM]"
	}
	action, ok := severityAction[issue.Severity]
	if !ok {
		action = severityAction[domain.SeverityMedium]
	}

	return domain.EmailNotification{
		To:      n.OfficerEmail,
		Subject: fmt.Sprintf("%s Governance integrity issue: %s", prefix, issue.Classification),
		Body: domain.EmailNotificationBody{
			IssueClassification: issue.Classification,
			Severity:            issue.Severity,
			DetectedAt:          issue.DetectedAt,
			Description:         issue.Description,
			AffectedLedgers:     []domain.LedgerName{issue.AffectedLedger},
			ActionRequired:      action,
			ReviewURL:           fmt.Sprintf("%s/governance/review/%s", strings.TrimRight(n.ReviewBaseURL, "/"), repairEntryID),
			LedgerEntryID:       repairEntryID,
		},
	}
}

// BuildWebhook produces the signed machine-to-machine escalation payload. The
// signature is HMAC-SHA256 over the JSON serialization with the signature
// field empty, so receivers verify by blanking the field and re-signing.
func (n *Notifier) BuildWebhook(issue domain.IntegrityIssue, repairEntryID string) (domain.WebhookPayload, error) {
	payload := domain.WebhookPayload{
		EventType:     "governance.integrity.escalation",
		Timestamp:     n.Clock().UTC().Format(time.RFC3339),
		Severity:      issue.Severity,
		Issue:         issue,
		RepairEntryID: repairEntryID,
	}

	unsigned, err := json.Marshal(payload)
	if err != nil {
		return domain.WebhookPayload{}, err
	}
	payload.Signature = n.Crypto.HMACSign(string(unsigned), n.WebhookSecret)
	return payload, nil
}

// VerifyWebhook checks a received payload's signature.
func (n *Notifier) VerifyWebhook(payload domain.WebhookPayload) (bool, error) {
	signature := payload.Signature
	payload.Signature = ""
	unsigned, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	return n.Crypto.HMACVerify(string(unsigned), signature, n.WebhookSecret), nil
}

// NotifyEscalations builds notifications for every escalated result of a
// repair pass. results[i] must correspond to issues[i], as returned by
// RepairManager.ProcessIssuesDetailed. Returns the built emails for callers
// that deliver them.
func (n *Notifier) NotifyEscalations(issues []domain.IntegrityIssue, results []domain.RepairResult) []domain.EmailNotification {
	var emails []domain.EmailNotification
	for i, result := range results {
		if i >= len(issues) {
			break
		}
		if !result.Success || result.RepairEntry == nil {
			continue
		}
		if result.RepairEntry.Status != domain.RepairPendingReview {
			continue
		}
		email := n.BuildEmail(issues[i], result.RepairEntry.EntryID)
		emails = append(emails, email)
		n.logger.Info("escalation notification built",
			"entry", result.RepairEntry.EntryID,
			"severity", issues[i].Severity,
			"to", email.To)
	}
	return emails
}
