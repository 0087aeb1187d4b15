package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"plain", "Chief Technology Officer", "Chief Technology Officer"},
		{"markup removed", "<b>CTO</b> at <script>alert(1)</script>Acme", "CTO at Acme"},
		{"entities decoded", "R&amp;D Lead", "R&D Lead"},
		{"whitespace collapsed", "  VP\tSupply \n Chain  ", "VP Supply Chain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Text(tt.input))
		})
	}
}

func TestTextTruncates(t *testing.T) {
	long := strings.Repeat("é", MaxTextLength+20)
	out := Text(long)
	assert.Equal(t, MaxTextLength, len([]rune(out)))
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://media.licdn.com/p.jpg", URL(" https://media.licdn.com/p.jpg "))
	assert.Equal(t, "http://example.com/a.png", URL("http://example.com/a.png"))
	assert.Empty(t, URL("javascript:alert(1)"))
	assert.Empty(t, URL("/relative.png"))
	assert.Empty(t, URL("https://x.com/a b.png"))
}
