// Package artifact computes content hashes for attestable artifacts. It is
// the public helper embedders use to produce the hash a trust proof binds to.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

// ComputeFileHash returns the hex SHA-256 of a file's contents.
func ComputeFileHash(path string) (string, error) {
	if path == "" {
		return "", errors.New("artifact path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ComputeHash(f)
}

// ComputeHash returns the hex SHA-256 of a stream.
func ComputeHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeBytesHash returns the hex SHA-256 of an in-memory artifact.
func ComputeBytesHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
