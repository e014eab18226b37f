package element

import (
	"fmt"
	"strings"

	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/tensor"
)

// Media identifies how buffer data should be interpreted.
type Media int

// Media kinds.
const (
	MediaTensor Media = iota
	MediaVideo
	MediaAudio
	MediaOctet
	MediaFlatbuf
)

func (m Media) String() string {
	switch m {
	case MediaTensor:
		return graph.MediaTensors
	case MediaVideo:
		return graph.MediaVideo
	case MediaAudio:
		return graph.MediaAudio
	case MediaOctet:
		return graph.MediaOctet
	case MediaFlatbuf:
		return graph.MediaFlatbuf
	}
	return "unknown"
}

// Format describes media of a buffer. Tensor buffers are described by
// their data only. Video frames are single uint8 tensors with dimension
// channels:width:height:1, audio are single tensors of channels:frames.
type Format struct {
	Media Media
	// Video and audio sample format, e.g. "RGB" or "S16LE".
	Sample   string
	Width    int
	Height   int
	Rate     int
	Channels int
}

var pixelChannels = map[string]int{
	"RGB":   3,
	"BGR":   3,
	"RGBA":  4,
	"BGRA":  4,
	"RGBx":  4,
	"BGRx":  4,
	"xRGB":  4,
	"xBGR":  4,
	"ARGB":  4,
	"ABGR":  4,
	"GRAY8": 1,
}

var sampleTypes = map[string]tensor.Type{
	"S8":    tensor.Int8,
	"U8":    tensor.Uint8,
	"S16LE": tensor.Int16,
	"U16LE": tensor.Uint16,
	"S32LE": tensor.Int32,
	"U32LE": tensor.Uint32,
	"F32LE": tensor.Float32,
	"F64LE": tensor.Float64,
}

// VideoFormat returns format of a video frame.
func VideoFormat(pixel string, width, height int) Format {
	return Format{Media: MediaVideo, Sample: pixel, Width: width, Height: height, Channels: pixelChannels[pixel]}
}

// AudioFormat returns format of audio samples.
func AudioFormat(sample string, rate, channels int) Format {
	return Format{Media: MediaAudio, Sample: sample, Rate: rate, Channels: channels}
}

// FrameInfo returns tensor info of a single video frame or audio buffer of
// n frames.
func (f Format) FrameInfo(n int) (tensor.Info, error) {
	switch f.Media {
	case MediaVideo:
		ch, ok := pixelChannels[f.Sample]
		if !ok {
			return tensor.Info{}, fmt.Errorf("%w: pixel format %q", ErrUnsupported, f.Sample)
		}
		if f.Width <= 0 || f.Height <= 0 {
			return tensor.Info{}, fmt.Errorf("%w: video size %dx%d", ErrUnsupported, f.Width, f.Height)
		}
		return tensor.Info{Tensors: []tensor.Tensor{{
			Type:      tensor.Uint8,
			Dimension: tensor.Dimension{uint32(ch), uint32(f.Width), uint32(f.Height), uint32(n)},
		}}}, nil
	case MediaAudio:
		t, ok := sampleTypes[f.Sample]
		if !ok {
			return tensor.Info{}, fmt.Errorf("%w: sample format %q", ErrUnsupported, f.Sample)
		}
		if f.Channels <= 0 || n <= 0 {
			return tensor.Info{}, fmt.Errorf("%w: %d channels, %d frames", ErrUnsupported, f.Channels, n)
		}
		return tensor.Info{Tensors: []tensor.Tensor{{
			Type:      t,
			Dimension: tensor.Dimension{uint32(f.Channels), uint32(n)},
		}}}, nil
	}
	return tensor.Info{}, fmt.Errorf("%w: frame info of %v", ErrUnsupported, f.Media)
}

// SampleType returns tensor type of audio samples.
func (f Format) SampleType() (tensor.Type, bool) {
	t, ok := sampleTypes[f.Sample]
	return t, ok
}

// Caps formats media as caps.
func (f Format) Caps() graph.Caps {
	c := graph.Caps{Media: f.Media.String()}
	add := func(k, v string) {
		c.Fields = append(c.Fields, graph.Field{Key: k, Value: v})
	}
	switch f.Media {
	case MediaVideo:
		add("format", f.Sample)
		add("width", fmt.Sprint(f.Width))
		add("height", fmt.Sprint(f.Height))
	case MediaAudio:
		add("format", f.Sample)
		add("rate", fmt.Sprint(f.Rate))
		add("channels", fmt.Sprint(f.Channels))
	}
	return c
}

// ParseFormat parses format from caps written by Caps.
func ParseFormat(s string) (Format, error) {
	c, err := graph.ParseCaps(s)
	if err != nil {
		return Format{}, err
	}
	f, _, err := formatOf(c)
	return f, err
}

// formatOf returns format and, for fixed tensor caps, expected info.
// Empty info means the shape is negotiated by the first buffer.
func formatOf(c graph.Caps) (Format, tensor.Info, error) {
	switch c.Media {
	case "", graph.MediaTensor, graph.MediaTensors:
		info, err := tensorInfoOf(c)
		return Format{Media: MediaTensor}, info, err
	case graph.MediaVideo:
		f := Format{Media: MediaVideo}
		f.Sample, _ = c.Get("format")
		f.Width, _ = c.Int("width")
		f.Height, _ = c.Int("height")
		f.Channels = pixelChannels[f.Sample]
		if f.Sample == "" || f.Width == 0 || f.Height == 0 {
			return f, tensor.Info{}, nil
		}
		info, err := f.FrameInfo(1)
		return f, info, err
	case graph.MediaAudio:
		f := Format{Media: MediaAudio}
		f.Sample, _ = c.Get("format")
		f.Rate, _ = c.Int("rate")
		f.Channels, _ = c.Int("channels")
		return f, tensor.Info{}, nil
	case graph.MediaOctet:
		return Format{Media: MediaOctet}, tensor.Info{}, nil
	case graph.MediaFlatbuf:
		return Format{Media: MediaFlatbuf}, tensor.Info{}, nil
	}
	return Format{}, tensor.Info{}, fmt.Errorf("%w: media %q", ErrUnsupported, c.Media)
}

func tensorInfoOf(c graph.Caps) (tensor.Info, error) {
	if c.Media == graph.MediaTensor {
		dim, hasDim := c.Get("dimension")
		typ, hasType := c.Get("type")
		if !hasDim || !hasType {
			return tensor.Info{}, nil
		}
		return tensor.ParseInfo(dim, typ, "")
	}
	dims, hasDim := c.Get("dimensions")
	types, hasType := c.Get("types")
	if !hasDim || !hasType {
		return tensor.Info{}, nil
	}
	info, err := tensor.ParseInfo(dims, types, "")
	if err != nil {
		return tensor.Info{}, err
	}
	if n, ok := c.Int("num_tensors"); ok && n != info.Len() {
		return tensor.Info{}, fmt.Errorf("%w: num_tensors=%d but %d dimensions", tensor.ErrInvalidInfo, n, info.Len())
	}
	return info, nil
}

// channelsOf returns the number of channels of a pixel format.
func channelsOf(pixel string) (int, bool) {
	ch, ok := pixelChannels[strings.TrimSpace(pixel)]
	return ch, ok
}
