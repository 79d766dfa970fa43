// Package artifact validates and fingerprints the resolved engine binary.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Validate checks that path names a runnable binary: it exists, is a regular
// file, and has an execute bit. The stat error is wrapped, not replaced, so a
// vanished artifact surfaces the underlying OS error.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("artifact %s is not a regular file", path)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("artifact %s is not executable", path)
	}
	return nil
}

// HashFile streams the file through SHA-256, keeping memory flat for large
// binaries.
func HashFile(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [32]byte{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// FormatDigest renders a digest in the canonical form used in logs and
// launch reports.
func FormatDigest(digest [32]byte) string {
	return "sha256:" + hex.EncodeToString(digest[:])
}

// Digest is the one-call form: hash the file and format the result. An
// unreadable artifact yields an empty digest and the error.
func Digest(path string) (string, error) {
	sum, err := HashFile(path)
	if err != nil {
		return "", err
	}
	return FormatDigest(sum), nil
}
