package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	pxPerChar   = 5
	pxPerLine   = 28
	textPadding = 12
	minWidth    = 360
)

// EstimateHeight approximates the pixel height a note of the given width
// needs to show text without scrolling. Wide runes count double.
func EstimateHeight(text string, width int) int {
	if width < minWidth {
		width = minWidth
	}
	perLine := width / pxPerChar
	lines := 0
	for _, line := range strings.Split(text, "\n") {
		w := runewidth.StringWidth(line)
		lines += max(1, (w+perLine-1)/perLine)
	}
	return textPadding + lines*pxPerLine
}
