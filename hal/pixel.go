package hal

// RGB565 packs an 8-bit-per-channel color.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// RGB888 expands an RGB565 pixel to 8 bits per channel.
func RGB888(p uint16) (r, g, b uint8) {
	r = uint8(uint32(p>>11&0x1F) * 255 / 31)
	g = uint8(uint32(p>>5&0x3F) * 255 / 63)
	b = uint8(uint32(p&0x1F) * 255 / 31)
	return r, g, b
}

// SetPixelRGB writes one pixel into an RGB565 framebuffer. Out-of-range
// coordinates and other formats are ignored.
func SetPixelRGB(fb Framebuffer, x, y int, r, g, b uint8) {
	if fb == nil || fb.Format() != PixelFormatRGB565 {
		return
	}
	if x < 0 || y < 0 || x >= fb.Width() || y >= fb.Height() {
		return
	}
	buf := fb.Buffer()
	off := y*fb.StrideBytes() + x*2
	if off+1 >= len(buf) {
		return
	}
	p := RGB565(r, g, b)
	buf[off] = byte(p)
	buf[off+1] = byte(p >> 8)
}

// FillRectRGB fills the clipped rectangle [x, x+w) x [y, y+h).
func FillRectRGB(fb Framebuffer, x, y, w, h int, r, g, b uint8) {
	if fb == nil {
		return
	}
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+w, fb.Width()), min(y+h, fb.Height())
	for yy := y0; yy < y1; yy++ {
		for xx := x0; xx < x1; xx++ {
			SetPixelRGB(fb, xx, yy, r, g, b)
		}
	}
}

// toRGBA converts little-endian RGB565 pixels in src to opaque RGBA in dst.
func toRGBA(dst, src []byte) {
	for i := 0; i+1 < len(src) && i*2+3 < len(dst); i += 2 {
		r, g, b := RGB888(uint16(src[i]) | uint16(src[i+1])<<8)
		j := i * 2
		dst[j] = r
		dst[j+1] = g
		dst[j+2] = b
		dst[j+3] = 0xFF
	}
}
