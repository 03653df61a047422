package util

import (
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// GetDisplayWidth calculates the actual display width of a string, accounting
// for wide Unicode characters.
func GetDisplayWidth(text string) int {
	return runewidth.StringWidth(text)
}

// PadDisplayWidth pads a string to a specific display width, handling wide
// characters correctly.
func PadDisplayWidth(text string, width int, leftAlign bool) string {
	actualWidth := GetDisplayWidth(text)
	if actualWidth >= width {
		return text
	}

	padding := strings.Repeat(" ", width-actualWidth)
	if leftAlign {
		return text + padding
	}
	return padding + text
}

// GetTerminalWidth returns the width of the attached terminal, with a
// fallback when stdout is not a terminal.
func GetTerminalWidth() int {
	termWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || termWidth < 40 {
		return 60
	}
	if termWidth > 120 {
		return 120
	}
	return termWidth
}
