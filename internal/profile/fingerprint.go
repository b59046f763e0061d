// Package profile derives and registers candidate-profile identities.
//
// A profile version is identified by the SHA-256 of its raw bytes. Nothing is
// normalised first: any edit to the resume, whitespace included, is a new
// version and re-opens the dedup scope for every search.
package profile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// Fingerprint returns the lowercase hex SHA-256 of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ContentProvider supplies raw profile bytes on demand.
type ContentProvider interface {
	Content(ctx context.Context) ([]byte, error)
}

// FileProvider reads the profile from a file on every call.
type FileProvider struct {
	Path string
}

// Content implements ContentProvider.
func (p FileProvider) Content(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", p.Path, err)
	}
	return data, nil
}
