package element

import (
	"context"
	"fmt"

	"github.com/nnsuite/nnpipe/mutable"
	"github.com/nnsuite/nnpipe/tensor"
)

// Converter turns media buffers into tensors. Video frames and audio
// samples are collected into tensors of frames-per-tensor frames, octet
// streams are cut into tensors described by input-dim and input-type.
// Serialized frames are decoded back into the tensor sets they carry.
type Converter struct {
	base
	mutable.Context
	framesPerTensor int
	octet           tensor.Info

	// adapter holds bytes not yet converted and the epoch they belong to.
	adapter []byte
	epoch   uint64
}

func init() {
	Register("tensor_converter", newConverter)
}

func newConverter(env Env) (Element, error) {
	fpt, err := intProp(env, "frames-per-tensor", 1)
	if err != nil {
		return nil, err
	}
	if fpt <= 0 {
		return nil, fmt.Errorf("%w: frames-per-tensor=%d", ErrBadProperty, fpt)
	}
	c := Converter{
		base:            newBase(env),
		Context:         mutable.Mutable(),
		framesPerTensor: fpt,
	}
	dims, hasDims := env.Props().Get("input-dim")
	types, hasTypes := env.Props().Get("input-type")
	if hasDims != hasTypes {
		return nil, fmt.Errorf("%w: input-dim and input-type must be set together", ErrBadProperty)
	}
	if hasDims {
		if c.octet, err = tensor.ParseInfo(dims, types, ""); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadProperty, err)
		}
		if err := env.Limits.Validate(c.octet); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Mutability returns mutable context of the converter.
func (c *Converter) Mutability() mutable.Context {
	return c.Context
}

// Reset returns mutation which discards partially collected frames.
func (c *Converter) Reset() mutable.Mutation {
	return c.Mutate(func() error {
		c.adapter = c.adapter[:0]
		return nil
	})
}

// Process converts the buffer.
func (c *Converter) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	switch in.Format.Media {
	case MediaTensor:
		return emit(0, in)
	case MediaVideo:
		frame, err := in.Format.FrameInfo(1)
		if err != nil {
			return err
		}
		out, err := in.Format.FrameInfo(c.framesPerTensor)
		if err != nil {
			return err
		}
		return c.collect(in, frame.Size(0)*c.framesPerTensor, out, emit)
	case MediaAudio:
		t, ok := in.Format.SampleType()
		if !ok || in.Format.Channels <= 0 {
			return fmt.Errorf("%w: audio %q with %d channels", ErrUnsupported, in.Format.Sample, in.Format.Channels)
		}
		frameSize := t.Size() * in.Format.Channels
		if c.framesPerTensor == 1 {
			// whole buffer is a single tensor
			n := in.Data.Size() / frameSize
			if n == 0 || n*frameSize != in.Data.Size() {
				return fmt.Errorf("%w: %d bytes of %s audio", ErrShapeMismatch, in.Data.Size(), in.Format.Sample)
			}
			out, err := in.Format.FrameInfo(n)
			if err != nil {
				return err
			}
			return c.collect(in, out.Size(0), out, emit)
		}
		out, err := in.Format.FrameInfo(c.framesPerTensor)
		if err != nil {
			return err
		}
		return c.collect(in, out.Size(0), out, emit)
	case MediaOctet:
		if c.octet.Len() == 0 {
			return fmt.Errorf("%w: octet stream requires input-dim and input-type", ErrUnsupported)
		}
		var size int
		for i := 0; i < c.octet.Len(); i++ {
			size += c.octet.Size(i)
		}
		return c.collect(in, size, c.octet, emit)
	case MediaFlatbuf:
		d, err := tensor.Unmarshal(in.Data.Tensor(0))
		if err != nil {
			return err
		}
		return emit(0, derive(in, d, Format{Media: MediaTensor}))
	}
	return fmt.Errorf("%w: media %v", ErrUnsupported, in.Format.Media)
}

// collect appends buffer bytes to the adapter and emits a tensor set of
// info for every chunk of size bytes.
func (c *Converter) collect(in Buffer, size int, info tensor.Info, emit EmitFunc) error {
	if in.Epoch != c.epoch {
		c.adapter = c.adapter[:0]
		c.epoch = in.Epoch
	}
	for i := 0; i < in.Data.Len(); i++ {
		c.adapter = append(c.adapter, in.Data.Tensor(i)...)
	}
	for len(c.adapter) >= size {
		d, err := split(info, c.adapter[:size])
		if err != nil {
			return err
		}
		c.adapter = append(c.adapter[:0], c.adapter[size:]...)
		if err := emit(0, derive(in, d, Format{Media: MediaTensor})); err != nil {
			return err
		}
	}
	return nil
}

// split copies b into regions of info.
func split(info tensor.Info, b []byte) (*tensor.Data, error) {
	regions := make([][]byte, info.Len())
	var off int
	for i := range regions {
		n := info.Size(i)
		if off+n > len(b) {
			return nil, fmt.Errorf("%w: %d bytes for %v", ErrShapeMismatch, len(b), info)
		}
		regions[i] = append([]byte(nil), b[off:off+n]...)
		off += n
	}
	return tensor.NewData(info, regions...)
}
