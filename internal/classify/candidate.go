// Package classify decides whether candidate tools are developer tools.
//
// The pipeline is tiered: a cheap keyword pre-filter rejects obviously
// irrelevant candidates, a TTL+LRU cache answers repeats, and only the
// remaining misses reach the remote model, batched into fixed-size chunks
// dispatched across a bounded worker pool. Every failure mode degrades to a
// cheaper tier instead of surfacing an error.
package classify

import "strings"

// Candidate is one input item to be judged devtools-related or not.
// ID is caller-supplied and opaque; it must be unique within one
// ClassifyCandidates call (later duplicates overwrite earlier ones).
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// fingerprintSep joins name and text in cache keys. A unit separator is not
// expected to appear in either field.
const fingerprintSep = "\x1f"

// Fingerprint returns the normalized cache key for a (name, text) pair.
// The same pair always yields the same key regardless of case or surrounding
// whitespace.
func Fingerprint(name, text string) string {
	return strings.ToLower(strings.TrimSpace(name)) + fingerprintSep + strings.ToLower(strings.TrimSpace(text))
}
