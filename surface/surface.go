// Package surface defines render targets of surface sinks.
package surface

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// ErrNotReady is returned when a surface can't accept frames.
var ErrNotReady = errors.New("surface is not ready")

// Surface is a render target bound to a surface sink.
type Surface interface {
	// Ready returns true when the surface can accept frames.
	Ready() bool
	// Render draws the frame. It's called on the sink goroutine.
	Render(img image.Image) error
}

// Canvas is an in-memory surface of fixed size. Frames are scaled to fit
// the canvas.
type Canvas struct {
	mu         sync.Mutex
	img        *image.RGBA
	keepAspect bool
	released   bool
	frames     int
}

// NewCanvas returns canvas of the given size. Canvas of zero size is
// never ready.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))}
}

// KeepAspect makes the canvas letterbox frames instead of stretching them.
func (c *Canvas) KeepAspect(keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keepAspect = keep
}

// Ready returns true if canvas has an area and wasn't released.
func (c *Canvas) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.released && !c.img.Rect.Empty()
}

// Release makes the canvas not ready.
func (c *Canvas) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
}

// Render scales frame into the canvas.
func (c *Canvas) Render(img image.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || c.img.Rect.Empty() {
		return ErrNotReady
	}
	dst := c.img.Bounds()
	if c.keepAspect {
		draw.Draw(c.img, dst, &image.Uniform{color.Black}, image.Point{}, draw.Src)
		dst = fit(img.Bounds(), dst)
	}
	draw.BiLinear.Scale(c.img, dst, img, img.Bounds(), draw.Src, nil)
	c.frames++
	return nil
}

// Frames returns number of rendered frames.
func (c *Canvas) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Snapshot returns copy of canvas content.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewRGBA(c.img.Rect)
	copy(out.Pix, c.img.Pix)
	return out
}

// fit returns the largest rectangle of src aspect centered in dst.
func fit(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}
	w, h := dw, dw*sh/sw
	if h > dh {
		w, h = dh*sw/sh, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}
