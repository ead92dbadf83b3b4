package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
)

// ProofIssuer mints trust proof tokens and their compact QR attestations.
// The two forms sign in distinct domains: the full token signs the canonical
// payload JSON, the attestation signs "rid:h:ts" and truncates.
type ProofIssuer struct {
	Store   *ledger.Store
	Crypto  *crypto.Service
	Clock   Clock
	Secret  string
	Issuer  string
	TTL     time.Duration
	BaseURL string

	logger *slog.Logger
}

func NewProofIssuer(store *ledger.Store, cryptoSvc *crypto.Service, clock Clock, secret, issuer string, ttl time.Duration, baseURL string) *ProofIssuer {
	if clock == nil {
		clock = time.Now
	}
	return &ProofIssuer{
		Store:   store,
		Crypto:  cryptoSvc,
		Clock:   clock,
		Secret:  secret,
		Issuer:  issuer,
		TTL:     ttl,
		BaseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default().With("component", "proof"),
	}
}

// GenerateTrustToken builds and signs a full trust proof token.
func (p *ProofIssuer) GenerateTrustToken(artifactID, artifactHash, ledgerReference string, metadata map[string]string) (domain.TrustProofToken, error) {
	if !domain.HashPattern.MatchString(artifactHash) {
		return domain.TrustProofToken{}, fmt.Errorf("artifact hash is not 64 hex chars: %q", artifactHash)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	now := p.Clock().UTC()
	payload := domain.TrustProofPayload{
		ArtifactID:      artifactID,
		ArtifactHash:    artifactHash,
		IssuedAt:        now.Format(time.RFC3339),
		Issuer:          p.Issuer,
		LedgerReference: ledgerReference,
		ExpiresAt:       now.Add(p.TTL).Format(time.RFC3339),
		Metadata:        metadata,
	}
	signature, err := p.signPayload(payload)
	if err != nil {
		return domain.TrustProofToken{}, err
	}
	return domain.TrustProofToken{TrustProofPayload: payload, Signature: signature}, nil
}

// signPayload signs the payload's serialized form. Field order is fixed by
// the payload struct declaration.
func (p *ProofIssuer) signPayload(payload domain.TrustProofPayload) (string, error) {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return p.Crypto.HMACSign(string(serialized), p.Secret), nil
}

// EncodeToken packs a token into its URL-safe transport form.
func (p *ProofIssuer) EncodeToken(token domain.TrustProofToken) (string, error) {
	raw, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeToken unpacks the transport form. Undecodable input maps to
// invalid_token; no detail about which check failed leaks out.
func (p *ProofIssuer) DecodeToken(encoded string) (domain.TrustProofToken, error) {
	return decodeTrustToken(encoded)
}

func decodeTrustToken(encoded string) (domain.TrustProofToken, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return domain.TrustProofToken{}, domain.NewProofError("malformed_token", "token is not valid base64", domain.ProofInvalidToken)
	}
	var token domain.TrustProofToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return domain.TrustProofToken{}, domain.NewProofError("malformed_token", "token payload is not valid JSON", domain.ProofInvalidToken)
	}
	return token, nil
}

// GenerateAttestationPayload derives the compact QR form from a full token.
// The signature domain is "rid:h:ts" with h the first 16 chars of the
// artifact hash, truncated to 32 hex chars. Collision resistance is
// deliberately traded for QR density; the full token remains the
// authoritative proof.
func (p *ProofIssuer) GenerateAttestationPayload(token domain.TrustProofToken) (domain.AttestationPayload, error) {
	if len(token.ArtifactHash) < 16 {
		return domain.AttestationPayload{}, fmt.Errorf("artifact hash too short for attestation: %q", token.ArtifactHash)
	}
	issuedAt, err := time.Parse(time.RFC3339, token.IssuedAt)
	if err != nil {
		return domain.AttestationPayload{}, fmt.Errorf("unparseable issued_at: %w", err)
	}
	h := token.ArtifactHash[:16]
	ts := issuedAt.Unix()
	signingString := fmt.Sprintf("%s:%s:%d", token.ArtifactID, h, ts)
	sig := p.Crypto.HMACSign(signingString, p.Secret)[:32]
	return domain.AttestationPayload{
		RID: token.ArtifactID,
		Sig: sig,
		TS:  ts,
		H:   h,
	}, nil
}

// IssueProof mints a token, records it in the active-proofs ledger, and
// returns both forms.
func (p *ProofIssuer) IssueProof(ctx context.Context, artifactID, artifactHash, ledgerReference, artifactType, filePath string, metadata map[string]string) (domain.TrustProofToken, domain.AttestationPayload, error) {
	token, err := p.GenerateTrustToken(artifactID, artifactHash, ledgerReference, metadata)
	if err != nil {
		return domain.TrustProofToken{}, domain.AttestationPayload{}, err
	}
	attestation, err := p.GenerateAttestationPayload(token)
	if err != nil {
		return domain.TrustProofToken{}, domain.AttestationPayload{}, err
	}
	encoded, err := p.EncodeToken(token)
	if err != nil {
		return domain.TrustProofToken{}, domain.AttestationPayload{}, err
	}

	record := domain.ActiveProofRecord{
		ArtifactID:      token.ArtifactID,
		ArtifactHash:    token.ArtifactHash,
		Token:           encoded,
		IssuedAt:        token.IssuedAt,
		ExpiresAt:       token.ExpiresAt,
		LedgerReference: token.LedgerReference,
		Status:          "active",
		ArtifactType:    artifactType,
		FilePath:        filePath,
	}
	if err := p.Store.AppendActiveProof(ctx, record); err != nil {
		return domain.TrustProofToken{}, domain.AttestationPayload{}, err
	}
	p.logger.Info("trust proof issued", "artifact", artifactID, "expires", token.ExpiresAt)
	return token, attestation, nil
}

// Revoke appends a revocation record. The active record is never rewritten;
// revocation status is derived at verification time.
func (p *ProofIssuer) Revoke(ctx context.Context, artifactID, reason, revokedBy, replacementArtifactID string) (domain.RevokedProofRecord, error) {
	var original string
	actives, err := p.Store.ActiveProofs()
	if err != nil {
		return domain.RevokedProofRecord{}, err
	}
	found := false
	for _, active := range actives {
		if active.ArtifactID == artifactID {
			original = active.Token
			found = true
		}
	}
	if !found {
		return domain.RevokedProofRecord{}, fmt.Errorf("%w: no active proof for %s", domain.ErrNotFound, artifactID)
	}

	record := domain.RevokedProofRecord{
		ArtifactID:            artifactID,
		OriginalToken:         original,
		RevokedAt:             p.Clock().UTC().Format(time.RFC3339),
		Reason:                reason,
		RevokedBy:             revokedBy,
		ReplacementArtifactID: replacementArtifactID,
	}
	if err := p.Store.AppendRevokedProof(ctx, record); err != nil {
		return domain.RevokedProofRecord{}, err
	}
	p.logger.Info("trust proof revoked", "artifact", artifactID, "reason", reason)
	return record, nil
}

// VerificationURL builds the shareable link carrying an encoded token.
func (p *ProofIssuer) VerificationURL(token domain.TrustProofToken) (string, error) {
	encoded, err := p.EncodeToken(token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/verify-trust?token=%s", p.BaseURL, url.QueryEscape(encoded)), nil
}

// ParseVerificationURL extracts the token from a verification link.
func (p *ProofIssuer) ParseVerificationURL(link string) (domain.TrustProofToken, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return domain.TrustProofToken{}, domain.NewProofError("malformed_url", "verification URL is not parseable", domain.ProofInvalidToken)
	}
	encoded := parsed.Query().Get("token")
	if encoded == "" {
		return domain.TrustProofToken{}, domain.NewProofError("missing_token", "verification URL has no token parameter", domain.ProofInvalidToken)
	}
	return p.DecodeToken(encoded)
}
