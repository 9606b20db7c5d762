// Package editor implements the key handling of the code textarea as pure
// text-buffer transforms. Offsets are UTF-16 code units, matching what a
// browser textarea reports for selectionStart and selectionEnd.
package editor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

// IndentWidth is the number of spaces inserted by the indent key
const IndentWidth = 6

// Keys handled by PressKey
const (
	KeyTab   = "Tab"
	KeyEnter = "Enter"
)

// ErrUnsupportedKey is returned by PressKey for keys without a transform
var ErrUnsupportedKey = errors.New("unsupported editor key")

// Buffer is the textarea content and selection before a key press
type Buffer struct {
	Text           string
	SelectionStart int
	SelectionEnd   int
}

// Result is the textarea content and collapsed cursor after a key press
type Result struct {
	Text   string
	Cursor int
}

// PressKey dispatches key to its transform
func PressKey(key string, b Buffer) (Result, error) {
	switch key {
	case KeyTab:
		return Indent(b), nil
	case KeyEnter:
		return Newline(b), nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}
}

// Indent replaces the selection with IndentWidth spaces
func Indent(b Buffer) Result {
	units := utf16.Encode([]rune(b.Text))
	start, end := clampSelection(len(units), b.SelectionStart, b.SelectionEnd)

	insert := utf16.Encode([]rune(strings.Repeat(" ", IndentWidth)))
	return Result{
		Text:   splice(units, start, end, insert),
		Cursor: start + len(insert),
	}
}

// Newline replaces the selection with a line break followed by the leading
// whitespace of the line the selection starts on
func Newline(b Buffer) Result {
	units := utf16.Encode([]rune(b.Text))
	start, end := clampSelection(len(units), b.SelectionStart, b.SelectionEnd)

	lineStart := 0
	for i := start - 1; i >= 0; i-- {
		if units[i] == '\n' {
			lineStart = i + 1
			break
		}
	}

	indentEnd := lineStart
	for indentEnd < start && isSpaceUnit(units[indentEnd]) {
		indentEnd++
	}

	insert := make([]uint16, 0, 1+indentEnd-lineStart)
	insert = append(insert, '\n')
	insert = append(insert, units[lineStart:indentEnd]...)

	return Result{
		Text:   splice(units, start, end, insert),
		Cursor: start + len(insert),
	}
}

// isSpaceUnit matches the whitespace class of a browser regular expression.
// U+0085 is not part of it.
func isSpaceUnit(u uint16) bool {
	switch {
	case u >= '\t' && u <= '\r', u == ' ', u == 0x00A0, u == 0x1680:
		return true
	case u >= 0x2000 && u <= 0x200A:
		return true
	case u == 0x2028, u == 0x2029, u == 0x202F, u == 0x205F, u == 0x3000, u == 0xFEFF:
		return true
	}
	return false
}

func clampSelection(n, start, end int) (int, int) {
	start = clamp(start, 0, n)
	end = clamp(end, 0, n)
	if end < start {
		start, end = end, start
	}
	return start, end
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func splice(units []uint16, start, end int, insert []uint16) string {
	out := make([]uint16, 0, len(units)-(end-start)+len(insert))
	out = append(out, units[:start]...)
	out = append(out, insert...)
	out = append(out, units[end:]...)
	return string(utf16.Decode(out))
}
