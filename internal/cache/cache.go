// Package cache provides the response cache used to dedupe identical
// model queries. Identical prompts against the same model within the
// TTL are served from cache instead of hitting the provider again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is a cached model response.
type Entry struct {
	Key        string    `json:"key"`
	Model      string    `json:"model"`
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Cache stores model responses keyed by Key(model, prompt).
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Close() error
}

// Key derives the cache key for a model/prompt pair.
func Key(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
