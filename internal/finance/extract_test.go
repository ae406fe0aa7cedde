package finance

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateHistoryKeepsValidUTF8(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"short stays whole", "tudo certo", 150, "tudo certo"},
		{"long ascii cut", strings.Repeat("a", 10), 4, "aaaa..."},
		{"cut inside accented rune backs off", "você", 4, "voc..."},
		{"exact length untouched", "você", 5, "você"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateHistory(tt.in, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncateHistory(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result is not valid UTF-8: %q", got)
			}
		})
	}
}
