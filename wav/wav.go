// Package wav reads and writes PCM wav files as audio tensors of
// channels:frames dimension.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/nnsuite/nnpipe/tensor"
)

type (
	// Reader reads samples from wav file.
	Reader struct {
		file     *os.File
		decoder  *wav.Decoder
		channels int
		rate     int
		typ      tensor.Type
		ib       *audio.IntBuffer
	}

	// Writer saves samples to wav file.
	Writer struct {
		file     *os.File
		encoder  *wav.Encoder
		channels int
		bitDepth int
		ib       *audio.IntBuffer
	}
)

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")
	// ErrInvalidFile is returned when file isn't a valid wav.
	ErrInvalidFile = errors.New("wav is not valid")
)

// sampleType returns tensor type holding samples of bit depth.
func sampleType(bitDepth int) (tensor.Type, error) {
	switch bitDepth {
	case 16:
		return tensor.Int16, nil
	case 32:
		return tensor.Int32, nil
	}
	return tensor.Invalid, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
}

// Open opens wav file for reading.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	typ, err := sampleType(int(decoder.BitDepth))
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Reader{
		file:     file,
		decoder:  decoder,
		channels: decoder.Format().NumChannels,
		rate:     int(decoder.SampleRate),
		typ:      typ,
	}, nil
}

// Channels returns number of channels.
func (r *Reader) Channels() int {
	return r.channels
}

// SampleRate returns sample rate.
func (r *Reader) SampleRate() int {
	return r.rate
}

// Type returns tensor type of samples.
func (r *Reader) Type() tensor.Type {
	return r.typ
}

// Read returns up to frames frames. Last buffer of the file may be
// shorter. io.EOF is returned when there are no samples left.
func (r *Reader) Read(frames int) (*tensor.Data, error) {
	if r.ib == nil || len(r.ib.Data) != frames*r.channels {
		r.ib = &audio.IntBuffer{
			Format:         r.decoder.Format(),
			Data:           make([]int, frames*r.channels),
			SourceBitDepth: int(r.decoder.BitDepth),
		}
	}
	n, err := r.decoder.PCMBuffer(r.ib)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}
	n -= n % r.channels
	if n == 0 {
		return nil, io.EOF
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(r.ib.Data[i])
	}
	info := tensor.Info{Tensors: []tensor.Tensor{{
		Type:      r.typ,
		Dimension: tensor.Dimension{uint32(r.channels), uint32(n / r.channels)},
	}}}
	d := info.Allocate()
	tensor.PutFloat64s(r.typ, d.Tensor(0), values)
	return d, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Create creates wav file for writing.
func Create(path string, rate, channels, bitDepth int) (*Writer, error) {
	if _, err := sampleType(bitDepth); err != nil {
		return nil, err
	}
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: %d Hz, %d channels", rate, channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		file:     f,
		encoder:  wav.NewEncoder(f, rate, bitDepth, channels, 1),
		channels: channels,
		bitDepth: bitDepth,
		ib: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  rate,
			},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Write appends interleaved samples of type t. Float samples are in
// [-1, 1] range, integer samples are rescaled to the file bit depth.
func (w *Writer) Write(t tensor.Type, b []byte) error {
	values := tensor.Float64s(t, b)
	if len(values)%w.channels != 0 {
		return fmt.Errorf("%d samples aren't aligned to %d channels", len(values), w.channels)
	}
	scale := fullScale(w.bitDepth)
	if t != tensor.Float32 && t != tensor.Float64 && t != tensor.Float16 {
		scale /= fullScale(t.Size() * 8)
	}
	data := make([]int, len(values))
	for i, v := range values {
		v *= scale
		switch {
		case v > fullScale(w.bitDepth)-1:
			v = fullScale(w.bitDepth) - 1
		case v < -fullScale(w.bitDepth):
			v = -fullScale(w.bitDepth)
		}
		data[i] = int(v)
	}
	w.ib.Data = data
	return w.encoder.Write(w.ib)
}

// Close flushes encoder and closes the file.
func (w *Writer) Close() error {
	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func fullScale(bits int) float64 {
	return float64(uint64(1) << (bits - 1))
}
