// Package code generates the short identifiers participants type or scan:
// activity codes and the 3-digit check-in verify codes.
package code

import (
	"fmt"
	"math/rand"
	"regexp"
)

// Lookalike characters (0/o, 1/i/l) are excluded so codes survive being read
// aloud or retyped from a projector.
const alphabet = "abcdefghjkmnpqrstuvwxyz23456789"

const (
	DefaultLength  = 6
	FallbackLength = 8
	MaxAttempts    = 10
)

var codeRegex = regexp.MustCompile(`^[a-z0-9]{4,10}$`)

// GenerateCode returns a random code of the given length drawn from the
// unambiguous alphabet.
func GenerateCode(length int) string {
	if length <= 0 {
		length = DefaultLength
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// GenerateUniqueCode retries GenerateCode until exists reports the code as
// free. After MaxAttempts collisions it falls back to a longer code, whose
// collision probability is treated as negligible.
func GenerateUniqueCode(exists func(string) bool) string {
	for i := 0; i < MaxAttempts; i++ {
		c := GenerateCode(DefaultLength)
		if !exists(c) {
			return c
		}
	}
	return GenerateCode(FallbackLength)
}

// GenerateVerifyCode returns the 3-digit proof-of-check-in code shown to a
// participant. Collisions between participants are fine; it is not a key.
func GenerateVerifyCode() string {
	return fmt.Sprintf("%03d", rand.Intn(1000))
}

// IsValidCode reports whether s is acceptable as an activity code lookup.
// Lookup is deliberately more lenient than generation.
func IsValidCode(s string) bool {
	return codeRegex.MatchString(s)
}
