package domain

// TrustProofPayload is the signed portion of a trust proof token. Field order
// is fixed by this struct; serialization must stay stable or signatures
// diverge across ports.
type TrustProofPayload struct {
	ArtifactID      string            `json:"artifact_id"`
	ArtifactHash    string            `json:"artifact_hash"`
	IssuedAt        string            `json:"issued_at"`
	Issuer          string            `json:"issuer"`
	LedgerReference string            `json:"ledger_reference"`
	ExpiresAt       string            `json:"expires_at"`
	Metadata        map[string]string `json:"metadata"`
}

// TrustProofToken binds an artifact identifier to its content hash, signed
// with HMAC-SHA256 over the payload.
type TrustProofToken struct {
	TrustProofPayload
	Signature string `json:"signature"`
}

// AttestationPayload is the compact, QR-embeddable form. It is signed in a
// distinct domain from the full token: HMAC over "rid:h:ts" truncated to 32
// hex chars, with h the first 16 chars of the artifact hash.
type AttestationPayload struct {
	RID string `json:"rid"`
	Sig string `json:"sig"`
	TS  int64  `json:"ts"`
	H   string `json:"h,omitempty"`
}

type ProofStatus string

const (
	ProofValid        ProofStatus = "valid"
	ProofExpired      ProofStatus = "expired"
	ProofRevoked      ProofStatus = "revoked"
	ProofMismatch     ProofStatus = "mismatch"
	ProofNotFound     ProofStatus = "not_found"
	ProofInvalidToken ProofStatus = "invalid_token"
	ProofUnverified   ProofStatus = "unverified"
)

// TrustProofResponse is the externally visible verification result.
type TrustProofResponse struct {
	ArtifactID       string      `json:"artifact_id"`
	HashAlgorithm    string      `json:"hash_algorithm"`
	ArtifactHash     string      `json:"artifact_hash"`
	IssuedAt         string      `json:"issued_at"`
	Issuer           string      `json:"issuer"`
	LedgerReference  string      `json:"ledger_reference"`
	Status           ProofStatus `json:"status"`
	Notes            string      `json:"notes"`
	VerifiedAt       string      `json:"verified_at"`
	ExpiresAt        string      `json:"expires_at,omitempty"`
	RevocationReason string      `json:"revocation_reason,omitempty"`
	RevokedAt        string      `json:"revoked_at,omitempty"`
}

// ActiveProofRecord tracks an issued proof in active-proofs.jsonl.
type ActiveProofRecord struct {
	ArtifactID      string `json:"artifact_id"`
	ArtifactHash    string `json:"artifact_hash"`
	Token           string `json:"token"`
	IssuedAt        string `json:"issued_at"`
	ExpiresAt       string `json:"expires_at"`
	LedgerReference string `json:"ledger_reference"`
	Status          string `json:"status"`
	ArtifactType    string `json:"artifact_type,omitempty"`
	FilePath        string `json:"file_path,omitempty"`
}

// RevokedProofRecord tracks a revocation in revoked-proofs.jsonl.
type RevokedProofRecord struct {
	ArtifactID            string `json:"artifact_id"`
	OriginalToken         string `json:"original_token,omitempty"`
	RevokedAt             string `json:"revoked_at"`
	Reason                string `json:"reason"`
	RevokedBy             string `json:"revoked_by"`
	ReplacementArtifactID string `json:"replacement_artifact_id,omitempty"`
	LedgerReference       string `json:"ledger_reference,omitempty"`
}
