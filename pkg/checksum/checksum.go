// Package checksum provides SHA256 helpers for verifying the integrity of
// uploaded project documents. The checksum computed at upload time is stored
// alongside the file and checked again when the indexing pipeline downloads
// the document from object storage.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// CalculateSHA256 computes the SHA256 checksum of the data read from r
// and returns it as a lowercase hex string.
func CalculateSHA256(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to read data for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifySHA256 computes the checksum of the data read from r and compares it
// against the expected hex string. It returns an error if they differ.
func VerifySHA256(r io.Reader, expected string) error {
	actual, err := CalculateSHA256(r)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
