// Package fingerprint computes content and perceptual fingerprints of images.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentFingerprint identifies byte-identical images.
type ContentFingerprint struct {
	PhotoID string `json:"photo_id"`
	HashHex string `json:"hash"`
}

// PerceptualFingerprint identifies visually near-identical images.
type PerceptualFingerprint struct {
	PhotoID   string `json:"photo_id"`
	HashHex   string `json:"hash"`
	SourceURL string `json:"source_url"`
}

// Similarity compares two perceptual fingerprints.
func (p PerceptualFingerprint) Similarity(other PerceptualFingerprint) float64 {
	return HexSimilarity(p.HashHex, other.HashHex)
}

// ContentHash returns the lowercase hex SHA-256 digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewContentFingerprint hashes data for the given photo.
func NewContentFingerprint(photoID string, data []byte) ContentFingerprint {
	return ContentFingerprint{PhotoID: photoID, HashHex: ContentHash(data)}
}
