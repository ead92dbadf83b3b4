// Package crypto provides the hashing and signing primitives shared by the
// integrity, repair, and trust proof components.
//
// The Merkle root here is NOT a binary tree: it is a rolling fold, the
// SHA-256 of the ordered concatenation of prior hashes. Legacy ledgers were
// written with this fold, so it must be preserved exactly for
// hash-compatibility; do not "fix" it to a real Merkle tree.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// SHA256Hex hashes a raw string.
func (s *Service) SHA256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// SHA256Canonical hashes the canonical JSON serialization of a structured
// value. Struct values hash over their declared field order; maps hash over
// sorted keys. Either way the result is stable across runs and ports.
func (s *Service) SHA256Canonical(v any) (string, error) {
	canonical, err := CanonicalizeAny(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MerkleFold computes the rolling-fold root: hash of the in-order
// concatenation of the given hex hashes.
func (s *Service) MerkleFold(hashes []string) string {
	return s.SHA256Hex(strings.Join(hashes, ""))
}

// HMACSign returns the hex-encoded HMAC-SHA256 of payload under secret.
func (s *Service) HMACSign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACVerify compares in constant time.
func (s *Service) HMACVerify(payload, signature, secret string) bool {
	expected := s.HMACSign(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// EqualConstantTime compares two pre-computed signatures.
func (s *Service) EqualConstantTime(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
