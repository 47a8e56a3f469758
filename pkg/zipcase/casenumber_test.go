package zipcase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCaseNumbers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single canonical number",
			input: "22CR714844-590",
			want:  []string{"22CR714844-590"},
		},
		{
			name:  "lowercase is canonicalized",
			input: "22cr714844-590",
			want:  []string{"22CR714844-590"},
		},
		{
			name:  "embedded in prose",
			input: "please look up 22CR714844-590 for me",
			want:  []string{"22CR714844-590"},
		},
		{
			name:  "multiple numbers keep input order",
			input: "23CV001234-100 then 22CR714844-590",
			want:  []string{"23CV001234-100", "22CR714844-590"},
		},
		{
			name:  "duplicates are preserved",
			input: "22CR714844-590 22CR714844-590",
			want:  []string{"22CR714844-590", "22CR714844-590"},
		},
		{
			name:  "lexis nexis layout with type and space",
			input: "5902022CR 714844",
			want:  []string{"22CR714844-590"},
		},
		{
			name:  "lexis nexis layout without separator",
			input: "5902022CR714844",
			want:  []string{"22CR714844-590"},
		},
		{
			name:  "lexis nexis layout without case type defaults to CR",
			input: "5902022714844",
			want:  []string{"22CR714844-590"},
		},
		{
			name:  "lexis nexis mixed with canonical",
			input: "5902022CR 714844 and 23CV001234-100",
			want:  []string{"22CR714844-590", "23CV001234-100"},
		},
		{
			name:  "no case numbers",
			input: "no numbers here",
			want:  []string{},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
		{
			name:  "near miss with short sequence",
			input: "22CR12345-590",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCaseNumbers(tt.input))
		})
	}
}

// Feeding the canonicalizer its own output must not change it.
func TestParseCaseNumbersIdempotent(t *testing.T) {
	inputs := []string{
		"22CR714844-590",
		"5902022CR 714844 plus 23cv001234-100",
		"random text with 5902022714844 inside",
	}
	for _, input := range inputs {
		first := ParseCaseNumbers(input)
		rejoined := ""
		for i, n := range first {
			if i > 0 {
				rejoined += " "
			}
			rejoined += n
		}
		assert.Equal(t, first, ParseCaseNumbers(rejoined), "input %q", input)
	}
}

func TestNormalizeCaseNumber(t *testing.T) {
	assert.Equal(t, "22CR714844-590", NormalizeCaseNumber(" 22cr714844-590 "))
	assert.Equal(t, "22CR714844-590", NormalizeCaseNumber("22CR714844-590"))
}
