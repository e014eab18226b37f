package element

import (
	"context"
	"fmt"

	"github.com/nnsuite/nnpipe/mutable"
	"github.com/nnsuite/nnpipe/tensor"
)

// Aggregator collects frames of incoming tensors and emits windows of
// frames-out frames, dropping frames-flush frames after every window.
// Frames are slices of the tensor along axis frames-dim, an incoming
// tensor carries frames-in of them.
type Aggregator struct {
	base
	mutable.Context
	framesIn    int
	framesOut   int
	framesFlush int
	axis        int
	concat      bool

	frames [][]byte
	// shape of a single frame and layout around the axis
	frame tensor.Tensor
	outer int
	inner int
}

func init() {
	Register("tensor_aggregator", newAggregator)
}

func newAggregator(env Env) (Element, error) {
	a := Aggregator{base: newBase(env), Context: mutable.Mutable()}
	var err error
	if a.framesIn, err = intProp(env, "frames-in", 1); err != nil {
		return nil, err
	}
	if a.framesOut, err = intProp(env, "frames-out", 1); err != nil {
		return nil, err
	}
	if a.framesFlush, err = intProp(env, "frames-flush", 0); err != nil {
		return nil, err
	}
	if a.axis, err = intProp(env, "frames-dim", env.Limits.MaxRank-1); err != nil {
		return nil, err
	}
	if a.concat, err = boolProp(env, "concat", true); err != nil {
		return nil, err
	}
	if a.framesFlush <= 0 {
		a.framesFlush = a.framesOut
	}
	switch {
	case a.framesIn <= 0, a.framesOut <= 0:
		return nil, fmt.Errorf("%w: frames-in=%d frames-out=%d", ErrBadProperty, a.framesIn, a.framesOut)
	case a.framesFlush > a.framesOut:
		return nil, fmt.Errorf("%w: frames-flush=%d exceeds frames-out=%d", ErrBadProperty, a.framesFlush, a.framesOut)
	case a.axis < 0 || (env.Limits.MaxRank > 0 && a.axis >= env.Limits.MaxRank):
		return nil, fmt.Errorf("%w: frames-dim=%d", ErrBadProperty, a.axis)
	}
	return &a, nil
}

// Mutability returns mutable context of the aggregator.
func (a *Aggregator) Mutability() mutable.Context {
	return a.Context
}

// Reset returns mutation which discards collected frames.
func (a *Aggregator) Reset() mutable.Mutation {
	return a.Mutate(func() error {
		a.frames = nil
		return nil
	})
}

// Process splits the tensor into frames and emits full windows.
func (a *Aggregator) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	if in.Data.Len() != 1 {
		return fmt.Errorf("%w: aggregation of %d tensors", ErrUnsupported, in.Data.Len())
	}
	t := in.Data.Info().Tensors[0]
	if err := a.layout(t); err != nil {
		return err
	}
	b := in.Data.Tensor(0)
	axisBytes := a.inner * a.framesIn
	for f := 0; f < a.framesIn; f++ {
		frame := make([]byte, 0, a.outer*a.inner)
		for o := 0; o < a.outer; o++ {
			off := o*axisBytes + f*a.inner
			frame = append(frame, b[off:off+a.inner]...)
		}
		a.frames = append(a.frames, frame)
	}
	for len(a.frames) >= a.framesOut {
		d, err := a.window()
		if err != nil {
			return err
		}
		a.frames = a.frames[a.framesFlush:]
		if err := emit(0, derive(in, d, in.Format)); err != nil {
			return err
		}
	}
	return nil
}

// layout derives frame shape from tensor. Shape change drops collected
// frames.
func (a *Aggregator) layout(t tensor.Tensor) error {
	dim := t.Dimension.Pad(a.axis + 1)
	if int(dim[a.axis])%a.framesIn != 0 {
		return fmt.Errorf("%w: axis %d of %v isn't divisible by frames-in=%d", ErrShapeMismatch, a.axis, t.Dimension, a.framesIn)
	}
	frame := tensor.Tensor{Name: t.Name, Type: t.Type, Dimension: append(tensor.Dimension(nil), dim...)}
	frame.Dimension[a.axis] /= uint32(a.framesIn)
	if a.frame.Type == frame.Type && a.frame.Dimension.Equal(frame.Dimension) {
		return nil
	}
	if len(a.frames) > 0 {
		a.log.Warnf("frame shape changed from %v to %v, dropping %d frames", a.frame.Dimension, frame.Dimension, len(a.frames))
		a.frames = nil
	}
	a.frame = frame
	a.inner = t.Type.Size()
	for i := 0; i < a.axis; i++ {
		a.inner *= int(dim[i])
	}
	a.inner *= int(frame.Dimension[a.axis])
	a.outer = 1
	for i := a.axis + 1; i < len(dim); i++ {
		a.outer *= int(dim[i])
	}
	return nil
}

// window interleaves first frames-out frames back along the axis. Without
// concat frames are stacked one after another along the outermost axis.
func (a *Aggregator) window() (*tensor.Data, error) {
	out := a.frame
	out.Dimension = append(tensor.Dimension(nil), a.frame.Dimension...)
	b := make([]byte, 0, a.outer*a.inner*a.framesOut)
	if a.concat {
		out.Dimension[a.axis] *= uint32(a.framesOut)
		for o := 0; o < a.outer; o++ {
			for _, f := range a.frames[:a.framesOut] {
				b = append(b, f[o*a.inner:(o+1)*a.inner]...)
			}
		}
	} else {
		last := len(out.Dimension) - 1
		out.Dimension[last] *= uint32(a.framesOut)
		for _, f := range a.frames[:a.framesOut] {
			b = append(b, f...)
		}
	}
	return tensor.NewData(tensor.Info{Tensors: []tensor.Tensor{out}}, b)
}
