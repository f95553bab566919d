package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims whitespace", "  World Bank  ", "World Bank"},
		{"collapses internal runs", "World \t  Bank", "World Bank"},
		{"strips accents", "Société Générale", "Societe Generale"},
		{"keeps allowed punctuation", "Smith & Wesson (Holdings), Inc.", "Smith & Wesson (Holdings), Inc."},
		{"drops disallowed characters", "Acme™ #1 Über*Corp", "Acme 1 UberCorp"},
		{"keeps apostrophes and hyphens", "O'Neil-Rothschild", "O'Neil-Rothschild"},
		{"empty input", "", ""},
		{"whitespace only", "   \t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Société Générale",
		"  Banco   do  Brasil S.A. ",
		"Ünïcödé Ltd.",
		"plain name",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestNormalize_AccentInvariance(t *testing.T) {
	assert.Equal(t, Normalize("Societe Generale"), Normalize("Société Générale"))
}

func TestKey_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Key("World Bank"), Key("world BANK"))
}

func TestExtractSuffix(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		suffix string
		found  bool
	}{
		{"plain llc", "Acme LLC", "llc", true},
		{"punctuated", "Acme L.L.C.", "llc", true},
		{"comma separated", "Acme, Ltd", "ltd", true},
		{"gmbh", "Müller GmbH", "gmbh", true},
		{"no suffix", "World Bank", "", false},
		{"suffix only is a name", "LLC", "", false},
		{"suffix not at end", "Ltd Acme", "", false},
		{"embedded without separator", "AcmeLLC", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suffix, found := ExtractSuffix(tt.input)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.suffix, suffix)
		})
	}
}

func TestStripSuffix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"llc", "Acme LLC", "acme"},
		{"punctuated corp", "Acme Corp.", "acme"},
		{"corporation is not in the equivalence set", "Acme Corporation", ""},
		{"country suffix is not in the equivalence set", "Petroquim SA", ""},
		{"no suffix", "World Bank", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripSuffix(tt.input))
		})
	}
}

func TestStripAnySuffix(t *testing.T) {
	assert.Equal(t, "acme", StripAnySuffix("Acme Incorporated"))
	assert.Equal(t, "petroquim", StripAnySuffix("Petroquim SA"))
	assert.Equal(t, "", StripAnySuffix("World Bank"))
}

func TestGenerateShortName(t *testing.T) {
	t.Run("short names pass through", func(t *testing.T) {
		assert.Equal(t, "World Bank", GenerateShortName("World Bank", 50))
	})

	t.Run("drops a recognized suffix", func(t *testing.T) {
		name := "Extremely Long Institutional Name Limited"
		assert.Equal(t, "Extremely Long Institutional Name", GenerateShortName(name, 36))
	})

	t.Run("falls back to an acronym", func(t *testing.T) {
		name := "European Bank For Reconstruction And Development"
		short := GenerateShortName(name, 20)
		assert.Equal(t, "EBFRAD", short)
	})

	t.Run("truncates with ellipsis as a last resort", func(t *testing.T) {
		name := strings.Repeat("x", 80)
		short := GenerateShortName(name, 20)
		assert.Len(t, short, 20)
		assert.True(t, strings.HasSuffix(short, "..."))
	})

	t.Run("truncates multi-byte names on rune boundaries", func(t *testing.T) {
		name := strings.Repeat("Ö", 80)
		short := GenerateShortName(name, 20)
		assert.True(t, utf8.ValidString(short))
		assert.Equal(t, strings.Repeat("Ö", 17)+"...", short)
	})
}
