package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// PadRight pads or truncates str to exactly width terminal cells, so wide
// characters in file names keep columns aligned.
func PadRight(str string, width int) string {
	w := runewidth.StringWidth(str)
	if w > width {
		return runewidth.Truncate(str, width, "...")
	}
	return str + strings.Repeat(" ", width-w)
}
