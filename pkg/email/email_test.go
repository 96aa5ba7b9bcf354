package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGreetingName(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"asha.patil@example.edu", "Asha"},
		{"RAVI_K@example.edu", "Ravi"},
		{"meera+admissions@example.edu", "Meera"},
		{"2024student@example.edu", "Student"},
		{"@example.edu", "Student"},
		{"", "Student"},
		{"...@example.edu", "Student"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, GreetingName(tt.address))
		})
	}
}
