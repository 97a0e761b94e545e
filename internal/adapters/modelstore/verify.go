package modelstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/errkind"
)

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify checks data against expected. An empty expected hash skips the
// check; a mismatch fails with model.ErrIntegrity.
func Verify(data []byte, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return nil
	}
	if got := Digest(data); got != expected {
		return errkind.Wrap("modelstore.verify", model.ErrIntegrity,
			fmt.Errorf("sha256 %s, want %s", got, expected))
	}
	return nil
}
