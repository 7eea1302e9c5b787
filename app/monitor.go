package app

import (
	"fmt"
	"image/color"

	"rtcaps/hal"
	"rtcaps/heapcaps"
	"rtcaps/internal/buildinfo"
	"rtcaps/internal/font"
)

var (
	colorBackground = color.RGBA{R: 16, G: 16, B: 24, A: 255}
	colorText       = color.RGBA{R: 230, G: 230, B: 230, A: 255}
	colorDim        = color.RGBA{R: 140, G: 140, B: 160, A: 255}
	colorUsed       = color.RGBA{R: 80, G: 170, B: 255, A: 255}
	colorFree       = color.RGBA{R: 48, G: 48, B: 64, A: 255}
	colorPeak       = color.RGBA{R: 255, G: 120, B: 60, A: 255}
)

const (
	monitorMargin = 4
	barHeight     = 6
)

// paint draws one bar per heap region. The filled part is the memory in
// use; the marker is the highest use seen since boot.
func (s *System) paint() error {
	disp := s.h.Display()
	if disp == nil {
		return nil
	}
	fb := disp.Framebuffer()
	if fb == nil {
		return nil
	}
	fb.ClearRGB(colorBackground.R, colorBackground.G, colorBackground.B)
	d := fbDisplay{fb: fb}

	st := s.Stats()
	y := int16(monitorMargin)
	y = d.text(monitorMargin, y, "rtcaps "+buildinfo.Short(), colorText)
	y = d.text(monitorMargin, y, fmt.Sprintf("tick %d  cycles %d  failures %d",
		s.k.Ticks(), st.Cycles, st.Failures), colorDim)
	y += font.Height / 2

	barWidth := fb.Width() - 2*monitorMargin
	for _, r := range s.heap.Regions() {
		y = d.text(monitorMargin, y, fmt.Sprintf("%s %d/%d", r.Name, r.Total-r.Free, r.Total), colorText)
		y = d.text(monitorMargin, y, r.Caps.String(), colorDim)
		drawBar(fb, monitorMargin, int(y), barWidth, r)
		y += barHeight + font.Height/2
		if int(y) >= fb.Height() {
			break
		}
	}
	return d.Display()
}

func drawBar(fb hal.Framebuffer, x, y, w int, r heapcaps.RegionInfo) {
	hal.FillRectRGB(fb, x, y, w, barHeight, colorFree.R, colorFree.G, colorFree.B)
	if r.Total <= 0 {
		return
	}
	used := w * (r.Total - r.Free) / r.Total
	hal.FillRectRGB(fb, x, y, used, barHeight, colorUsed.R, colorUsed.G, colorUsed.B)
	peak := w * (r.Total - r.MinimumFree) / r.Total
	if peak > 0 {
		hal.FillRectRGB(fb, x+peak-1, y, 2, barHeight, colorPeak.R, colorPeak.G, colorPeak.B)
	}
}
