// Package id generates prefixed, URL-safe identifiers for server-side records
// such as event-stream clients, pending intents and published events.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes in use. Catalog items keep the integer keys assigned upstream.
const (
	PrefixClient = "sse"
	PrefixEvent  = "evt"
	PrefixIntent = "int"
	PrefixToken  = "tok"
)

// Generate returns prefix + "-" + a 21 character nanoid.
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// MustGenerate is like Generate but panics when the system has no entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}
