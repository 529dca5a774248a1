package code

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		c := GenerateCode(DefaultLength)
		require.Len(t, c, DefaultLength)
		for _, r := range c {
			assert.True(t, strings.ContainsRune(alphabet, r), "unexpected character %q in %q", r, c)
		}
		seen[c] = true
	}
	// 200 draws from a 6-char space should essentially never all collide.
	assert.Greater(t, len(seen), 150)
}

func TestGenerateCodeExcludesAmbiguousCharacters(t *testing.T) {
	for _, bad := range "0o1il" {
		assert.False(t, strings.ContainsRune(alphabet, bad), "alphabet must not contain %q", bad)
	}
}

func TestGenerateUniqueCodeFirstFree(t *testing.T) {
	calls := 0
	c := GenerateUniqueCode(func(string) bool {
		calls++
		return false
	})
	assert.Len(t, c, DefaultLength)
	assert.Equal(t, 1, calls)
}

func TestGenerateUniqueCodeFallsBack(t *testing.T) {
	// An exists check that always collides must terminate with a longer code.
	c := GenerateUniqueCode(func(s string) bool {
		return len(s) == DefaultLength
	})
	assert.Len(t, c, FallbackLength)
}

func TestGenerateVerifyCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := GenerateVerifyCode()
		require.Len(t, v, 3)
		for _, r := range v {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}

func TestIsValidCode(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"abc2", true},
		{"x9k2mp", true},
		{"abcdefghij", true},
		{"abc", false},
		{"abcdefghijk", false},
		{"ABC123", false},
		{"ab c2", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, IsValidCode(tc.in), "code %q", tc.in)
	}
}
