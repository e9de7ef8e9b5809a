package util

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestPadRight(t *testing.T) {
	tests := []struct {
		name     string
		str      string
		width    int
		expected string
	}{
		{"pads short names", "a.txt", 8, "a.txt   "},
		{"keeps exact width", "hello", 5, "hello"},
		{"truncates long names", "quarterly-report.pdf", 10, "quarter..."},
		{"empty", "", 3, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PadRight(tt.str, tt.width))
		})
	}
}

func TestPadRight_WideRunes(t *testing.T) {
	got := PadRight("文件.txt", 12)
	assert.Equal(t, 12, runewidth.StringWidth(got))

	got = PadRight("很长的文件名字.txt", 8)
	assert.LessOrEqual(t, runewidth.StringWidth(got), 8)
}
