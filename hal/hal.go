// Package hal is the boundary between rtcaps and the machine it runs on:
// a line console, an RGB565 framebuffer and a tick source.
package hal

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp little-endian: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer, if there is one.
type Display interface {
	Framebuffer() Framebuffer
}

// Time provides the kernel tick stream. Each value is a tick sequence
// number; ticks are dropped when the consumer falls behind.
type Time interface {
	Ticks() <-chan uint64
}

// HAL is the only contact point between rtcaps and the outside world.
type HAL interface {
	Logger() Logger
	Display() Display
	Time() Time
}
