package font

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

type pixelGrid struct {
	w, h int16
	set  map[[2]int16]bool
}

var _ drivers.Displayer = (*pixelGrid)(nil)

func newGrid(w, h int16) *pixelGrid {
	return &pixelGrid{w: w, h: h, set: make(map[[2]int16]bool)}
}

func (g *pixelGrid) Size() (int16, int16) { return g.w, g.h }

func (g *pixelGrid) SetPixel(x, y int16, _ color.RGBA) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	g.set[[2]int16{x, y}] = true
}

func (g *pixelGrid) Display() error { return nil }

func TestGlyphTableCoversASCII(t *testing.T) {
	assert.Len(t, glyphData, '_'-' '+1)
}

func TestDrawI(t *testing.T) {
	g := newGrid(8, 10)
	tinyfont.DrawChar(g, Font5x7, 0, Ascent, 'I', color.RGBA{A: 255})

	// Column 2 is the full stem.
	for row := int16(0); row < 7; row++ {
		assert.True(t, g.set[[2]int16{2, row}], "stem row %d", row)
	}
	assert.True(t, g.set[[2]int16{1, 0}])
	assert.True(t, g.set[[2]int16{3, 6}])
	assert.False(t, g.set[[2]int16{0, 3}])
	assert.Len(t, g.set, 11)
}

func TestLowerCaseAndUnknownRunes(t *testing.T) {
	assert.Equal(t, columns('A'), columns('a'))
	assert.Equal(t, columns('?'), columns('~'))
	assert.Equal(t, columns('?'), columns('Ж'))
	assert.Equal(t, columns('?'), columns('\n'))
}

func TestLineWidth(t *testing.T) {
	_, outbox := tinyfont.LineWidth(Font5x7, "heap")
	assert.Equal(t, uint32(4*Width), outbox)
}
