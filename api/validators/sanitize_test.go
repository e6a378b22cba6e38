package validators

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStringTrims(t *testing.T) {
	assert.Equal(t, "Anna Kowalska", SanitizeString("  Anna Kowalska \n", 200))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
	assert.Equal(t, "abcdef", SanitizeString("abcdef", 0))
}

func TestSanitizeStringCutsOnRuneBoundary(t *testing.T) {
	name := strings.Repeat("Łucja Żółć ", 30)

	got := SanitizeString(name, 200)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 200)
	assert.True(t, strings.HasPrefix(name, got))

	cyrillic := SanitizeString("Анна", 3)
	assert.Equal(t, "Анн", cyrillic)
}

func TestSanitizeStringDropsInvalidBytes(t *testing.T) {
	got := SanitizeString("Ola\xff", 10)
	assert.Equal(t, "Ola", got)
	assert.True(t, utf8.ValidString(got))
}
