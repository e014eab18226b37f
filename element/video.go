package element

import (
	"context"
	"fmt"

	"github.com/nnsuite/nnpipe/tensor"
)

// convertPixels converts packed pixels between formats listed in pixelChannels.
func convertPixels(src []byte, from, to string) ([]byte, error) {
	if from == to {
		return src, nil
	}
	fc, ok := pixelChannels[from]
	if !ok {
		return nil, fmt.Errorf("%w: pixel format %q", ErrUnsupported, from)
	}
	tc, ok := pixelChannels[to]
	if !ok {
		return nil, fmt.Errorf("%w: pixel format %q", ErrUnsupported, to)
	}
	n := len(src) / fc
	dst := make([]byte, n*tc)
	for i := 0; i < n; i++ {
		r, g, b, a := decodePixel(src[i*fc:(i+1)*fc], from)
		encodePixel(dst[i*tc:(i+1)*tc], to, r, g, b, a)
	}
	return dst, nil
}

func decodePixel(p []byte, format string) (r, g, b, a byte) {
	if format == "GRAY8" {
		return p[0], p[0], p[0], 255
	}
	a = 255
	for i, c := range format {
		switch c {
		case 'R':
			r = p[i]
		case 'G':
			g = p[i]
		case 'B':
			b = p[i]
		case 'A':
			a = p[i]
		}
	}
	return r, g, b, a
}

func encodePixel(p []byte, format string, r, g, b, a byte) {
	if format == "GRAY8" {
		p[0] = byte((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
		return
	}
	for i, c := range format {
		switch c {
		case 'R':
			p[i] = r
		case 'G':
			p[i] = g
		case 'B':
			p[i] = b
		case 'A':
			p[i] = a
		case 'x':
			p[i] = 255
		}
	}
}

// scalePixels resizes packed frame with nearest neighbour sampling.
func scalePixels(src []byte, ch, sw, sh, dw, dh int) []byte {
	dst := make([]byte, dw*dh*ch)
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			copy(dst[(y*dw+x)*ch:(y*dw+x+1)*ch], src[(sy*sw+sx)*ch:])
		}
	}
	return dst
}

// VideoConvert converts frames into the pixel format required downstream.
type VideoConvert struct {
	base
	target string
}

// VideoScale resizes frames into the size required downstream.
type VideoScale struct {
	base
	width, height int
}

func init() {
	Register("videoconvert", newVideoConvert)
	Register("videoscale", newVideoScale)
}

func newVideoConvert(env Env) (Element, error) {
	caps := env.Graph.DownstreamCaps(env.Element)
	target, _ := caps.Get("format")
	if target != "" {
		if _, ok := channelsOf(target); !ok {
			return nil, fmt.Errorf("%w: pixel format %q", ErrUnsupported, target)
		}
	}
	return &VideoConvert{base: newBase(env), target: target}, nil
}

// Process converts the frame.
func (e *VideoConvert) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	if e.target == "" || in.Format.Media != MediaVideo || in.Format.Sample == e.target {
		return emit(0, in)
	}
	pix, err := convertPixels(in.Data.Tensor(0), in.Format.Sample, e.target)
	if err != nil {
		return err
	}
	f := VideoFormat(e.target, in.Format.Width, in.Format.Height)
	d, err := frameData(f, pix)
	if err != nil {
		return err
	}
	return emit(0, derive(in, d, f))
}

func newVideoScale(env Env) (Element, error) {
	caps := env.Graph.DownstreamCaps(env.Element)
	s := VideoScale{base: newBase(env)}
	s.width, _ = caps.Int("width")
	s.height, _ = caps.Int("height")
	return &s, nil
}

// Process scales the frame.
func (e *VideoScale) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	if in.Format.Media != MediaVideo {
		return emit(0, in)
	}
	w, h := e.width, e.height
	if w == 0 {
		w = in.Format.Width
	}
	if h == 0 {
		h = in.Format.Height
	}
	if w == in.Format.Width && h == in.Format.Height {
		return emit(0, in)
	}
	ch := in.Format.Channels
	pix := scalePixels(in.Data.Tensor(0), ch, in.Format.Width, in.Format.Height, w, h)
	f := in.Format
	f.Width, f.Height = w, h
	d, err := frameData(f, pix)
	if err != nil {
		return err
	}
	return emit(0, derive(in, d, f))
}

func frameData(f Format, pix []byte) (*tensor.Data, error) {
	info, err := f.FrameInfo(1)
	if err != nil {
		return nil, err
	}
	return tensor.NewData(info, pix)
}
