package element

import (
	"context"
	"fmt"
	"io"

	"github.com/nnsuite/nnpipe/tensor"
	"github.com/nnsuite/nnpipe/wav"
)

// WavSrc reads PCM samples from a wav file.
type WavSrc struct {
	base
	reader  *wav.Reader
	format  Format
	samples int
}

// WavSink writes PCM samples into a wav file. The file is created when
// the first buffer arrives, its format defines the file format.
type WavSink struct {
	base
	path     string
	bitDepth int
	writer   *wav.Writer
	format   Format
}

func init() {
	Register("wavsrc", newWavSrc)
	Register("wavsink", newWavSink)
}

func newWavSrc(env Env) (Element, error) {
	path := env.Props().String("location", "")
	if path == "" {
		return nil, fmt.Errorf("%w: location is required", ErrBadProperty)
	}
	samples, err := intProp(env, "samplesperbuffer", 1024)
	if err != nil {
		return nil, err
	}
	if samples <= 0 {
		return nil, fmt.Errorf("%w: samplesperbuffer=%d", ErrBadProperty, samples)
	}
	r, err := wav.Open(path)
	if err != nil {
		return nil, err
	}
	sample := "S16LE"
	if r.Type() == tensor.Int32 {
		sample = "S32LE"
	}
	return &WavSrc{
		base:    newBase(env),
		reader:  r,
		format:  AudioFormat(sample, r.SampleRate(), r.Channels()),
		samples: samples,
	}, nil
}

// Read returns next buffer of samples.
func (s *WavSrc) Read(context.Context) (Buffer, error) {
	d, err := s.reader.Read(s.samples)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Data: d, Format: s.format}, nil
}

// Close closes the file.
func (s *WavSrc) Close() error {
	return s.reader.Close()
}

func newWavSink(env Env) (Element, error) {
	path := env.Props().String("location", "")
	if path == "" {
		return nil, fmt.Errorf("%w: location is required", ErrBadProperty)
	}
	bitDepth, err := intProp(env, "bit-depth", 16)
	if err != nil {
		return nil, err
	}
	if bitDepth != 16 && bitDepth != 32 {
		return nil, fmt.Errorf("%w: %v", ErrBadProperty, wav.ErrUnsupportedBitDepth)
	}
	return &WavSink{base: newBase(env), path: path, bitDepth: bitDepth}, nil
}

// Process writes samples.
func (s *WavSink) Process(_ context.Context, _ int, in Buffer, _ EmitFunc) error {
	if in.Format.Media != MediaAudio {
		return fmt.Errorf("%w: wav of %v", ErrUnsupported, in.Format.Media)
	}
	if s.writer == nil {
		w, err := wav.Create(s.path, in.Format.Rate, in.Format.Channels, s.bitDepth)
		if err != nil {
			return err
		}
		s.writer, s.format = w, in.Format
	} else if in.Format.Rate != s.format.Rate || in.Format.Channels != s.format.Channels {
		return fmt.Errorf("%w: format changed from %v to %v", ErrShapeMismatch, s.format.Caps(), in.Format.Caps())
	}
	t := in.Data.Info().Tensors[0].Type
	return s.writer.Write(t, in.Data.Tensor(0))
}

// Close flushes the file.
func (s *WavSink) Close() error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

var _ io.Closer = (*WavSink)(nil)
