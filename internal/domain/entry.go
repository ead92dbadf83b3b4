package domain

import (
	"regexp"
	"time"
)

// LedgerName identifies one of the append-only governance ledgers.
type LedgerName string

const (
	LedgerGovernance  LedgerName = "governance"
	LedgerConsent     LedgerName = "consent"
	LedgerFederation  LedgerName = "federation"
	LedgerTrustProofs LedgerName = "trust_proofs"
)

type EntryType string

const (
	EntryEIIBaseline             EntryType = "eii-baseline"
	EntryFeedbackSynthesis       EntryType = "feedback-synthesis"
	EntryAuditClosure            EntryType = "audit_closure"
	EntryLegalCompliance         EntryType = "legal_compliance"
	EntryConsentBaseline         EntryType = "consent_baseline"
	EntryEthicsReporting         EntryType = "ethics_reporting"
	EntryAutonomousAnalysis      EntryType = "autonomous_analysis"
	EntryFederationIntegration   EntryType = "federation_integration"
	EntryFederationVerification  EntryType = "federation_verification"
	EntryAutonomousRepair        EntryType = "autonomous_repair"
	EntryIntegrityActivation     EntryType = "integrity_layer_activation"
	EntryAttestationActivation   EntryType = "attestation_layer_activation"
	EntryImplementationVerified  EntryType = "implementation_verification"
	EntryTransparencyExtension   EntryType = "transparency_extension"
	EntryFinalAuditSignoff       EntryType = "final_audit_signoff"
)

// HashPattern is the required format for every entry hash.
var HashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LedgerEntry is one line of a JSONL ledger. The canonical fields are typed;
// domain payload fields vary per entry type and live in Extra. Hash covers
// the entry minus its own hash, merkleRoot and signature fields.
type LedgerEntry struct {
	ID         string         `json:"id,omitempty"`
	EntryID    string         `json:"entry_id,omitempty"`
	Timestamp  string         `json:"timestamp"`
	EntryType  EntryType      `json:"entryType,omitempty"`
	Hash       string         `json:"hash,omitempty"`
	MerkleRoot string         `json:"merkleRoot,omitempty"`
	Signature  string         `json:"signature,omitempty"`
	Extra      map[string]any `json:"-"`
}

// Identifier returns whichever of id / entry_id is set.
func (e LedgerEntry) Identifier() string {
	if e.ID != "" {
		return e.ID
	}
	return e.EntryID
}

// Type defaults to eii-baseline for legacy entries written before the
// entryType field existed. Repair entries carry their type in
// ledger_entry_type instead.
func (e LedgerEntry) Type() EntryType {
	if e.EntryType != "" {
		return e.EntryType
	}
	if s, ok := e.Extra["ledger_entry_type"].(string); ok && s != "" {
		return EntryType(s)
	}
	return EntryEIIBaseline
}

// Time parses the entry timestamp; the zero time signals an unparseable value.
func (e LedgerEntry) Time() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// EII returns the Ethics Integrity Index score carried by baseline entries.
func (e LedgerEntry) EII() (float64, bool) {
	v, ok := e.Extra["eii"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// StringField reads an untyped payload field as a string.
func (e LedgerEntry) StringField(name string) string {
	v, ok := e.Extra[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// StringsField reads an untyped payload field as a string slice.
func (e LedgerEntry) StringsField(name string) []string {
	v, ok := e.Extra[name]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// LedgerStats aggregates a parsed ledger.
type LedgerStats struct {
	TotalEntries int               `json:"total_entries"`
	EntryTypes   map[EntryType]int `json:"entry_types"`
	FirstEntry   string            `json:"first_entry,omitempty"`
	LastEntry    string            `json:"last_entry,omitempty"`
	AvgEII       *float64          `json:"avg_eii,omitempty"`
	MinEII       *float64          `json:"min_eii,omitempty"`
	MaxEII       *float64          `json:"max_eii,omitempty"`
}

// LedgerParseResult is the outcome of a full-ledger integrity read.
type LedgerParseResult struct {
	Entries      []LedgerEntry `json:"entries"`
	TotalEntries int           `json:"total_entries"`
	LastUpdate   string        `json:"last_update"`
	MerkleRoot   string        `json:"merkle_root"`
	Verified     bool          `json:"verified"`
}
