package app

import (
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"

	"rtcaps/hal"
	"rtcaps/internal/font"
)

// fbDisplay lets tinyfont draw into a HAL framebuffer.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = fbDisplay{}

func (d fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	hal.SetPixelRGB(d.fb, int(x), int(y), c.R, c.G, c.B)
}

func (d fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// text writes s with its top-left corner at (x, y) and returns the y of the
// next line.
func (d fbDisplay) text(x, y int16, s string, c color.RGBA) int16 {
	tinyfont.WriteLine(d, font.Font5x7, x, y+font.Ascent, s, c)
	return y + font.Height
}

// wrap splits s into lines of at most cols runes.
func wrap(s string, cols int) []string {
	if cols <= 0 {
		cols = 1
	}
	var lines []string
	for _, raw := range strings.Split(s, "\n") {
		raw = strings.TrimRight(raw, " \t")
		if raw == "" {
			continue
		}
		for raw != "" {
			chunk, rest := takeRunes(raw, cols)
			lines = append(lines, chunk)
			raw = strings.TrimLeft(rest, " ")
		}
	}
	return lines
}

func takeRunes(s string, n int) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	i, count := 0, 0
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		count++
	}
	return s[:i], s[i:]
}
