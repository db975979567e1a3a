// Package framebuffer holds the in-memory mirror of the remote device display.
package framebuffer

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

const bytesPerPixel = 4

// MaxDimension is the largest width or height New accepts.
const MaxDimension = 8192

// ErrInvalidDimensions is returned by New for non-positive or oversized dimensions.
var ErrInvalidDimensions = errors.New("invalid framebuffer dimensions")

// PixelWriter accepts point writes addressed by linear pixel index.
type PixelWriter interface {
	WritePixel(index int, r, g, b uint8) bool
}

// Framebuffer is a fixed-size RGBA8 pixel store, row-major, alpha always 255.
type Framebuffer struct {
	mu     sync.RWMutex
	width  int
	height int
	pix    []byte
}

func New(width, height int) (*Framebuffer, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	f := &Framebuffer{
		width:  width,
		height: height,
		pix:    make([]byte, width*height*bytesPerPixel),
	}
	f.clear()

	return f, nil
}

func (f *Framebuffer) Width() int  { return f.width }
func (f *Framebuffer) Height() int { return f.height }

// Len returns the number of pixels.
func (f *Framebuffer) Len() int { return f.width * f.height }

// WritePixel sets the pixel at index to (r, g, b, 255). Out of range indices
// are ignored and reported by a false return.
func (f *Framebuffer) WritePixel(index int, r, g, b uint8) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writePixel(index, r, g, b)
}

func (f *Framebuffer) writePixel(index int, r, g, b uint8) bool {
	if index < 0 || index >= f.width*f.height {
		return false
	}

	addr := index * bytesPerPixel
	f.pix[addr] = r
	f.pix[addr+1] = g
	f.pix[addr+2] = b
	f.pix[addr+3] = 255

	return true
}

// Batch runs fn with exclusive access. Readers never observe a partially
// applied batch.
func (f *Framebuffer) Batch(fn func(w PixelWriter)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(lockedWriter{f})
}

type lockedWriter struct {
	f *Framebuffer
}

func (w lockedWriter) WritePixel(index int, r, g, b uint8) bool {
	return w.f.writePixel(index, r, g, b)
}

// Snapshot returns a copy of the pixel data.
func (f *Framebuffer) Snapshot() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]byte, len(f.pix))
	copy(out, f.pix)

	return out
}

// View calls fn with the live pixel data under the read lock. fn must not
// retain or modify pix.
func (f *Framebuffer) View(fn func(pix []byte)) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	fn(f.pix)
}

// Image returns a copy of the framebuffer as an *image.RGBA.
func (f *Framebuffer) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))

	f.mu.RLock()
	copy(img.Pix, f.pix)
	f.mu.RUnlock()

	return img
}

// Clear resets every pixel to opaque black.
func (f *Framebuffer) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clear()
}

func (f *Framebuffer) clear() {
	for i := 0; i < len(f.pix); i += bytesPerPixel {
		f.pix[i] = 0
		f.pix[i+1] = 0
		f.pix[i+2] = 0
		f.pix[i+3] = 255
	}
}
