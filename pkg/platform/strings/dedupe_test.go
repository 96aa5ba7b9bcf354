package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		fold     bool
		expected []string
	}{
		{"nil slice", nil, false, nil},
		{"empty slice", []string{}, true, []string{}},
		{"trims and drops blanks", []string{"  CBSE ", "", "   "}, false, []string{"CBSE"}},
		{"keeps first occurrence", []string{"ICSE", "CBSE", "ICSE"}, false, []string{"ICSE", "CBSE"}},
		{"case differences survive without fold", []string{"CBSE", "cbse"}, false, []string{"CBSE", "cbse"}},
		{"fold lower-cases and merges", []string{" CBSE", "cbse", "Maharashtra"}, true, []string{"cbse", "maharashtra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input, tt.fold))
		})
	}
}
