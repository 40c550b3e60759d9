package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextSanitizer(t *testing.T) {
	s := NewTextSanitizer(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "oi, tudo bem?", "oi, tudo bem?"},
		{"ampersand and quotes", `Tom & Jerry, it's "ok"`, `Tom & Jerry, it's "ok"`},
		{"comparison", "2 < 3 and 5 > 4", "2 < 3 and 5 > 4"},
		{"script", "<script>alert(1)</script>oi", "oi"},
		{"markup", "<b>bold</b> <a href=\"x\">link</a>", "bold link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.in))
		})
	}
}
