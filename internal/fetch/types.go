// Package fetch implements the resilient download pipeline: URL validation,
// cache lookup, pooled download with retries, and fallback recovery when the
// network refuses to cooperate. Every fetch produces a usable artifact or a
// terminal classified error.
package fetch

import (
	"time"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Hasher produces content checksums.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator mints identifiers for artifacts.
type IDGenerator interface {
	NewID() (string, error)
}

// ArtifactKind says what kind of payload a fetch produced.
type ArtifactKind string

// Artifact kinds.
const (
	KindFile        ArtifactKind = "file"
	KindPlaceholder ArtifactKind = "placeholder"
	KindText        ArtifactKind = "text"
)

// Request identifies one piece of media to fetch.
type Request struct {
	URL     string `json:"url"`
	OwnerID string `json:"owner_id,omitempty"`
}

// Artifact is the outcome of a fetch: always something deliverable.
type Artifact struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Kind        ArtifactKind `json:"kind"`
	Path        string       `json:"path,omitempty"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	Checksum    string       `json:"checksum,omitempty"`
	Level       string       `json:"level"`
	Strategy    string       `json:"strategy,omitempty"`
	FromCache   bool         `json:"from_cache"`
	RetryCount  int          `json:"retry_count"`
	FetchedAt   time.Time    `json:"fetched_at"`
	Data        []byte       `json:"-"`
}
