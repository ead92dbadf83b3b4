package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrMalformedEntry   = errors.New("malformed ledger entry")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrProofRevoked     = errors.New("proof revoked")
	ErrHashMismatch     = errors.New("artifact hash mismatch")
	ErrRepairTarget     = errors.New("repair target not found")
)

// ProofError is the typed verification failure carried across the trust
// proof service boundary; Status drives the externally visible result.
type ProofError struct {
	Code    string
	Message string
	Status  ProofStatus
}

func (e *ProofError) Error() string {
	return e.Message
}

func NewProofError(code, message string, status ProofStatus) *ProofError {
	return &ProofError{Code: code, Message: message, Status: status}
}
