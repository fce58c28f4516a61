package drivestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain.pdf", "plain.pdf"},
		{"o'brien statement.pdf", `o\'brien statement.pdf`},
		{`back\slash.pdf`, `back\\slash.pdf`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeQuery(tt.in))
	}
}
