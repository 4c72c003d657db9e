package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims value and composes it to Unicode NFC.
func NormalizeName(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

// SameName reports whether two endpoint names are equal after
// normalization. Comparison stays case sensitive; hosts treat "Synth" and
// "synth" as different ports.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
