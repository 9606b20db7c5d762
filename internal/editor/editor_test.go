package editor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndent(t *testing.T) {
	tests := []struct {
		name       string
		buf        Buffer
		wantText   string
		wantCursor int
	}{
		{
			name:       "cursor at end",
			buf:        Buffer{Text: "abcd", SelectionStart: 4, SelectionEnd: 4},
			wantText:   "abcd      ",
			wantCursor: 10,
		},
		{
			name:       "replaces selection",
			buf:        Buffer{Text: "abcd", SelectionStart: 1, SelectionEnd: 3},
			wantText:   "a      d",
			wantCursor: 7,
		},
		{
			name:       "empty buffer",
			buf:        Buffer{},
			wantText:   "      ",
			wantCursor: 6,
		},
		{
			name:       "reversed selection",
			buf:        Buffer{Text: "abcd", SelectionStart: 3, SelectionEnd: 1},
			wantText:   "a      d",
			wantCursor: 7,
		},
		{
			name:       "offsets past the end are clamped",
			buf:        Buffer{Text: "ab", SelectionStart: 10, SelectionEnd: 12},
			wantText:   "ab      ",
			wantCursor: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Indent(tt.buf)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantCursor, got.Cursor)
		})
	}
}

func TestNewline(t *testing.T) {
	tests := []struct {
		name       string
		buf        Buffer
		wantText   string
		wantCursor int
	}{
		{
			name:       "copies leading spaces",
			buf:        Buffer{Text: "    x", SelectionStart: 5, SelectionEnd: 5},
			wantText:   "    x\n    ",
			wantCursor: 10,
		},
		{
			name:       "uses line of the cursor",
			buf:        Buffer{Text: "def f():\n\treturn 1\nend", SelectionStart: 18, SelectionEnd: 18},
			wantText:   "def f():\n\treturn 1\n\t\nend",
			wantCursor: 20,
		},
		{
			name:       "no indentation",
			buf:        Buffer{Text: "x", SelectionStart: 1, SelectionEnd: 1},
			wantText:   "x\n",
			wantCursor: 2,
		},
		{
			name:       "cursor inside indentation",
			buf:        Buffer{Text: "    x", SelectionStart: 2, SelectionEnd: 2},
			wantText:   "  \n    x",
			wantCursor: 5,
		},
		{
			name:       "replaces selection",
			buf:        Buffer{Text: "  ab cd", SelectionStart: 4, SelectionEnd: 5},
			wantText:   "  ab\n  cd",
			wantCursor: 7,
		},
		{
			name:       "unicode spaces count as indentation",
			buf:        Buffer{Text: "\u3000\u00a0x", SelectionStart: 3, SelectionEnd: 3},
			wantText:   "\u3000\u00a0x\n\u3000\u00a0",
			wantCursor: 6,
		},
		{
			name:       "next line character is not indentation",
			buf:        Buffer{Text: "\u0085x", SelectionStart: 2, SelectionEnd: 2},
			wantText:   "\u0085x\n",
			wantCursor: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Newline(tt.buf)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantCursor, got.Cursor)
		})
	}
}

func TestOffsetsAreUTF16Units(t *testing.T) {
	// "한" is one UTF-16 unit, the emoji is two
	buf := Buffer{Text: "한😀", SelectionStart: 3, SelectionEnd: 3}

	got := Indent(buf)

	assert.Equal(t, "한😀      ", got.Text)
	assert.Equal(t, 9, got.Cursor)
}

func TestPressKey(t *testing.T) {
	got, err := PressKey(KeyTab, Buffer{Text: "abcd", SelectionStart: 4, SelectionEnd: 4})
	require.NoError(t, err)
	assert.Equal(t, 10, got.Cursor)

	got, err = PressKey(KeyEnter, Buffer{Text: "    x", SelectionStart: 5, SelectionEnd: 5})
	require.NoError(t, err)
	assert.Equal(t, "    x\n    ", got.Text)

	_, err = PressKey("Backspace", Buffer{})
	assert.True(t, errors.Is(err, ErrUnsupportedKey))
}
