package element

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/nnsuite/nnpipe/surface"
	"github.com/nnsuite/nnpipe/tensor"
)

// TensorSink hands received tensors to the pipeline's callback registry.
type TensorSink struct {
	base
	deliver func(*tensor.Data)
	emit    bool
	// minimal interval between deliveries, zero means every buffer
	interval time.Duration
	last     time.Time
}

func init() {
	Register("tensor_sink", newTensorSink)
	Register("fakesink", newFakeSink)
	Register("glimagesink", newSurfaceSink)
	Register("surfacesink", newSurfaceSink)
}

func newTensorSink(env Env) (Element, error) {
	emit, err := boolProp(env, "emit-signal", true)
	if err != nil {
		return nil, err
	}
	rate, err := intProp(env, "signal-rate", 0)
	if err != nil {
		return nil, err
	}
	if rate < 0 {
		return nil, fmt.Errorf("%w: signal-rate=%d", ErrBadProperty, rate)
	}
	s := TensorSink{base: newBase(env), deliver: env.Deliver, emit: emit}
	if rate > 0 {
		s.interval = time.Second / time.Duration(rate)
	}
	return &s, nil
}

// Process delivers tensors to listeners.
func (s *TensorSink) Process(_ context.Context, _ int, in Buffer, _ EmitFunc) error {
	if !s.emit || s.deliver == nil {
		return nil
	}
	if s.interval > 0 {
		now := time.Now()
		if !s.last.IsZero() && now.Sub(s.last) < s.interval {
			return nil
		}
		s.last = now
	}
	s.deliver(in.Data)
	return nil
}

// FakeSink discards buffers.
type FakeSink struct {
	base
}

func newFakeSink(env Env) (Element, error) {
	return &FakeSink{base: newBase(env)}, nil
}

// Process discards the buffer.
func (s *FakeSink) Process(context.Context, int, Buffer, EmitFunc) error {
	return nil
}

// SurfaceSink renders video frames to the bound surface. Frames are
// discarded while no surface is bound.
type SurfaceSink struct {
	base

	mu       sync.Mutex
	surface  surface.Surface
	rendered int
}

func newSurfaceSink(env Env) (Element, error) {
	return &SurfaceSink{base: newBase(env)}, nil
}

// SetSurface binds the surface. Nil unbinds current one. Surface must be
// ready. The previous surface isn't used after SetSurface returns.
func (s *SurfaceSink) SetSurface(sf surface.Surface) error {
	if sf != nil && !sf.Ready() {
		return surface.ErrNotReady
	}
	s.mu.Lock()
	s.surface = sf
	s.mu.Unlock()
	return nil
}

// Close unbinds the surface.
func (s *SurfaceSink) Close() error {
	return s.SetSurface(nil)
}

// Surface returns bound surface.
func (s *SurfaceSink) Surface() surface.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

// Rendered returns number of frames rendered to surfaces.
func (s *SurfaceSink) Rendered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered
}

// Process renders the frame. The lock is held while rendering, so
// unbinding waits for the frame in flight.
func (s *SurfaceSink) Process(_ context.Context, _ int, in Buffer, _ EmitFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return nil
	}
	if !s.surface.Ready() {
		s.log.Debug("surface isn't ready, frame dropped")
		return nil
	}
	img, err := toImage(in)
	if err != nil {
		return err
	}
	if err := s.surface.Render(img); err != nil {
		s.log.Warnf("render: %v", err)
		return nil
	}
	s.rendered++
	return nil
}

// toImage converts video frame or uint8 image tensor into RGBA image.
func toImage(in Buffer) (*image.RGBA, error) {
	f := in.Format
	if f.Media == MediaTensor {
		t := in.Data.Info().Tensors[0]
		if t.Type != tensor.Uint8 {
			return nil, fmt.Errorf("%w: render %v tensor", ErrUnsupported, t.Type)
		}
		f = VideoFormat("", t.Dimension.At(1), t.Dimension.At(2))
		switch t.Dimension.At(0) {
		case 1:
			f.Sample = "GRAY8"
		case 3:
			f.Sample = "RGB"
		case 4:
			f.Sample = "RGBA"
		default:
			return nil, fmt.Errorf("%w: render %d channels", ErrUnsupported, t.Dimension.At(0))
		}
	} else if f.Media != MediaVideo {
		return nil, fmt.Errorf("%w: render %v", ErrUnsupported, f.Media)
	}
	ch, _ := channelsOf(f.Sample)
	frame := in.Data.Tensor(0)
	if len(frame) < ch*f.Width*f.Height {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d %s", ErrShapeMismatch, len(frame), f.Width, f.Height, f.Sample)
	}
	pix, err := convertPixels(frame[:ch*f.Width*f.Height], f.Sample, "RGBA")
	if err != nil {
		return nil, err
	}
	return &image.RGBA{Pix: pix, Stride: 4 * f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}, nil
}
