//go:build cgo

package hal

import (
	"image"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"rtcaps/internal/buildinfo"
)

// RunWindow opens a desktop window showing the framebuffer. It blocks until
// the window closes or the step function fails.
func RunWindow(newApp func(HAL) func() error, cfg HostConfig) error {
	h := NewHost(cfg)
	step := newApp(h)

	g := &hostGame{h: h, step: step}
	ebiten.SetWindowTitle("rtcaps (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *Host
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	step    func() error
}

func (g *hostGame) Update() error {
	g.h.Advance(time.Now())
	if g.step != nil {
		return g.step()
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	n := g.h.Snapshot(g.scratch)
	toRGBA(g.img.Pix, g.scratch[:n])
	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(_, _ int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
