package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
)

// ProofVerifier checks trust proofs. Full tokens resolve against the
// governance ledger; compact attestations carry only truncated identifiers
// and resolve against the active-proof records instead. Failure statuses
// resolve in a fixed precedence: invalid_token, then revoked, then expired,
// then not_found, then mismatch. Revocation outranks expiry so that a proof
// pulled for cause never reports the softer status.
type ProofVerifier struct {
	Store  *ledger.Store
	Crypto *crypto.Service
	Clock  Clock
	Secret string

	logger *slog.Logger
}

func NewProofVerifier(store *ledger.Store, cryptoSvc *crypto.Service, clock Clock, secret string) *ProofVerifier {
	if clock == nil {
		clock = time.Now
	}
	return &ProofVerifier{
		Store:  store,
		Crypto: cryptoSvc,
		Clock:  clock,
		Secret: secret,
		logger: slog.Default().With("component", "verify"),
	}
}

// VerifyToken checks a standalone token's structure, signature and expiry.
// It does not consult the revocation or active-proof records; use
// VerifyArtifactProof for the full pipeline.
func (v *ProofVerifier) VerifyToken(token domain.TrustProofToken) error {
	if err := v.checkStructure(token); err != nil {
		return err
	}
	if err := v.checkSignature(token); err != nil {
		return err
	}
	return v.checkExpiry(token)
}

// VerifyArtifactProof runs the full verification pipeline for an encoded
// token against an artifact hash computed by the caller.
func (v *ProofVerifier) VerifyArtifactProof(encoded string, artifactHash string) domain.TrustProofResponse {
	now := v.Clock().UTC()

	token, err := decodeTrustToken(encoded)
	if err != nil {
		return v.failure(domain.TrustProofResponse{}, err, now)
	}

	response := domain.TrustProofResponse{
		ArtifactID:      token.ArtifactID,
		HashAlgorithm:   "sha256",
		ArtifactHash:    token.ArtifactHash,
		IssuedAt:        token.IssuedAt,
		Issuer:          token.Issuer,
		LedgerReference: token.LedgerReference,
		ExpiresAt:       token.ExpiresAt,
	}

	if err := v.checkStructure(token); err != nil {
		return v.failure(response, err, now)
	}
	if err := v.checkSignature(token); err != nil {
		return v.failure(response, err, now)
	}
	if revoked, record := v.revocationFor(token.ArtifactID); revoked {
		response.RevocationReason = record.Reason
		response.RevokedAt = record.RevokedAt
		return v.failure(response, domain.NewProofError("revoked",
			fmt.Sprintf("proof revoked at %s: %s", record.RevokedAt, record.Reason),
			domain.ProofRevoked), now)
	}
	if err := v.checkExpiry(token); err != nil {
		return v.failure(response, err, now)
	}
	entry, found := v.artifactEntry(token.ArtifactID)
	if !found {
		return v.failure(response, domain.NewProofError("not_found",
			"artifact not found in governance ledger", domain.ProofNotFound), now)
	}
	recorded, ok := recordedArtifactHash(entry)
	if !ok || recorded != token.ArtifactHash {
		return v.failure(response, domain.NewProofError("hash_mismatch",
			"artifact hash does not match ledger entry", domain.ProofMismatch), now)
	}
	if artifactHash != token.ArtifactHash {
		return v.failure(response, domain.NewProofError("hash_mismatch",
			"artifact content does not match the attested hash",
			domain.ProofMismatch), now)
	}

	response.Status = domain.ProofValid
	response.Notes = "Signature matches ledger entry and current key material"
	response.VerifiedAt = now.Format(time.RFC3339)
	return response
}

// VerifyAttestation checks a compact QR payload against the issued records.
// The attestation carries only a truncated hash, so the mismatch check runs
// over the stored full hash's prefix.
func (v *ProofVerifier) VerifyAttestation(attestation domain.AttestationPayload) domain.TrustProofResponse {
	now := v.Clock().UTC()
	response := domain.TrustProofResponse{
		ArtifactID:    attestation.RID,
		HashAlgorithm: "sha256",
	}

	if attestation.RID == "" || attestation.Sig == "" || attestation.TS == 0 {
		return v.failure(response, domain.NewProofError("malformed_attestation",
			"attestation payload is missing required fields", domain.ProofInvalidToken), now)
	}

	record, found := v.activeFor(attestation.RID)

	// The signature verifies before revocation or record state is disclosed,
	// so an unauthenticated payload learns nothing about the proof. The
	// signed hash prefix comes from the payload itself; a payload without
	// one can only be checked against the issued record.
	h := attestation.H
	if h == "" {
		if !found {
			return v.failure(response, domain.NewProofError("not_found",
				"no issued proof for artifact", domain.ProofNotFound), now)
		}
		if len(record.ArtifactHash) >= 16 {
			h = record.ArtifactHash[:16]
		}
	}
	signingString := fmt.Sprintf("%s:%s:%d", attestation.RID, h, attestation.TS)
	expected := v.Crypto.HMACSign(signingString, v.Secret)[:32]
	if !v.Crypto.EqualConstantTime(attestation.Sig, expected) {
		return v.failure(response, domain.NewProofError("bad_signature",
			"attestation signature does not verify", domain.ProofInvalidToken), now)
	}

	if revoked, revocation := v.revocationFor(attestation.RID); revoked {
		response.RevocationReason = revocation.Reason
		response.RevokedAt = revocation.RevokedAt
		return v.failure(response, domain.NewProofError("revoked",
			fmt.Sprintf("proof revoked at %s: %s", revocation.RevokedAt, revocation.Reason),
			domain.ProofRevoked), now)
	}

	if !found {
		return v.failure(response, domain.NewProofError("not_found",
			"no issued proof for artifact", domain.ProofNotFound), now)
	}
	response.ArtifactHash = record.ArtifactHash
	response.IssuedAt = record.IssuedAt
	response.LedgerReference = record.LedgerReference
	response.ExpiresAt = record.ExpiresAt

	if record.ExpiresAt != "" {
		if expiry, err := time.Parse(time.RFC3339, record.ExpiresAt); err == nil && expiry.Before(now) {
			return v.failure(response, domain.NewProofError("expired",
				fmt.Sprintf("proof expired at %s", record.ExpiresAt), domain.ProofExpired), now)
		}
	}
	if attestation.H != "" && len(record.ArtifactHash) >= 16 && attestation.H != record.ArtifactHash[:16] {
		return v.failure(response, domain.NewProofError("hash_mismatch",
			"attestation hash prefix does not match issued record", domain.ProofMismatch), now)
	}

	response.Status = domain.ProofValid
	response.Notes = "Compact attestation verified against issued records"
	response.VerifiedAt = now.Format(time.RFC3339)
	return response
}

func (v *ProofVerifier) checkStructure(token domain.TrustProofToken) error {
	switch {
	case token.ArtifactID == "":
		return domain.NewProofError("missing_field", "token has no artifact_id", domain.ProofInvalidToken)
	case !domain.HashPattern.MatchString(token.ArtifactHash):
		return domain.NewProofError("missing_field", "token artifact_hash is not 64 hex chars", domain.ProofInvalidToken)
	case token.IssuedAt == "" || token.ExpiresAt == "":
		return domain.NewProofError("missing_field", "token has no issuance window", domain.ProofInvalidToken)
	case token.Signature == "":
		return domain.NewProofError("missing_field", "token is unsigned", domain.ProofInvalidToken)
	}
	return nil
}

func (v *ProofVerifier) checkSignature(token domain.TrustProofToken) error {
	payload := token.TrustProofPayload
	serialized, err := json.Marshal(payload)
	if err != nil {
		return domain.NewProofError("unserializable", "token payload cannot be serialized", domain.ProofInvalidToken)
	}
	if !v.Crypto.HMACVerify(string(serialized), token.Signature, v.Secret) {
		return domain.NewProofError("bad_signature", "token signature does not verify", domain.ProofInvalidToken)
	}
	return nil
}

func (v *ProofVerifier) checkExpiry(token domain.TrustProofToken) error {
	expiry, err := time.Parse(time.RFC3339, token.ExpiresAt)
	if err != nil {
		return domain.NewProofError("bad_expiry", "token expiry is unparseable", domain.ProofInvalidToken)
	}
	if expiry.Before(v.Clock().UTC()) {
		return domain.NewProofError("expired",
			fmt.Sprintf("token expired at %s", token.ExpiresAt), domain.ProofExpired)
	}
	return nil
}

// artifactEntry locates the attested artifact in the governance ledger,
// matching the entry id directly or a documents reference containing it.
func (v *ProofVerifier) artifactEntry(artifactID string) (domain.LedgerEntry, bool) {
	entries, _, err := v.Store.Parse(domain.LedgerGovernance)
	if err != nil {
		v.logger.Error("governance ledger read failed", "err", err)
		return domain.LedgerEntry{}, false
	}
	for _, entry := range entries {
		if entry.Identifier() == artifactID {
			return entry, true
		}
		for _, doc := range entry.StringsField("documents") {
			if strings.Contains(doc, artifactID) {
				return entry, true
			}
		}
	}
	return domain.LedgerEntry{}, false
}

// recordedArtifactHash returns the hash the ledger holds for an entry: the
// entry hash itself, or a pdf_hash payload field for document artifacts.
func recordedArtifactHash(entry domain.LedgerEntry) (string, bool) {
	if entry.Hash != "" {
		return entry.Hash, true
	}
	if h := entry.StringField("pdf_hash"); h != "" {
		return h, true
	}
	return "", false
}

func (v *ProofVerifier) revocationFor(artifactID string) (bool, domain.RevokedProofRecord) {
	records, err := v.Store.RevokedProofs()
	if err != nil {
		v.logger.Error("revocation read failed", "err", err)
		return false, domain.RevokedProofRecord{}
	}
	for _, record := range records {
		if record.ArtifactID == artifactID {
			return true, record
		}
	}
	return false, domain.RevokedProofRecord{}
}

func (v *ProofVerifier) activeFor(artifactID string) (domain.ActiveProofRecord, bool) {
	records, err := v.Store.ActiveProofs()
	if err != nil {
		v.logger.Error("active proof read failed", "err", err)
		return domain.ActiveProofRecord{}, false
	}
	// Latest record wins when an artifact was re-issued.
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ArtifactID == artifactID {
			return records[i], true
		}
	}
	return domain.ActiveProofRecord{}, false
}

func (v *ProofVerifier) failure(response domain.TrustProofResponse, err error, now time.Time) domain.TrustProofResponse {
	status := domain.ProofUnverified
	notes := err.Error()
	if perr, ok := err.(*domain.ProofError); ok {
		status = perr.Status
	}
	response.Status = status
	response.Notes = notes
	response.VerifiedAt = now.Format(time.RFC3339)
	v.logger.Info("verification failed", "artifact", response.ArtifactID, "status", status)
	return response
}
