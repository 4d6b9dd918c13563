// Package dedup rejects repeated submissions inside a configurable time
// window. A submission's identity is a deterministic fingerprint over the
// store, the text fields, and the media content hash — not over anything
// the caller could trivially vary, like a filename.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/storeberg/crosspost/internal/publish"
)

// Fingerprint identifies one logical submission for dedup purposes.
type Fingerprint string

// Compute derives the fingerprint from the submission fields and the media
// content. mediaPath is hashed by content, so re-uploading the same bytes
// under a different name still dedups.
func Compute(sub publish.Submission, mediaPath string) (Fingerprint, error) {
	contentHash, err := hashFile(mediaPath)
	if err != nil {
		return "", fmt.Errorf("hash media content: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", sub.StoreID, sub.Title, sub.ProductURL, contentHash)
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
