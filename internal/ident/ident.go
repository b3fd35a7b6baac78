// Package ident canonicalizes student identifiers so gallery labels, stored
// bindings and typed commands compare equal.
package ident

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize trims whitespace and a leading byte-order mark and puts id in
// Unicode NFC form.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "\ufeff")
	return norm.NFC.String(strings.TrimSpace(id))
}
