// Package id generates public identifiers.
package id

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewToken returns a URL-safe, lexicographically sortable public token.
func NewToken() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// IsToken reports whether s has the shape of a token produced by NewToken.
func IsToken(s string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(s))
	return err == nil
}
