package element

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nnsuite/nnpipe/tensor"
)

// transformFunc converts a single tensor.
type transformFunc func(t tensor.Tensor, b []byte) (tensor.Tensor, []byte, error)

// Transform applies an operation to every tensor of a set, or to the
// tensors listed in the apply property.
type Transform struct {
	base
	mode  string
	fn    transformFunc
	apply map[int]bool
}

func init() {
	Register("tensor_transform", newTransform)
}

func newTransform(env Env) (Element, error) {
	mode := env.Props().String("mode", "")
	option := env.Props().String("option", "")
	var (
		fn  transformFunc
		err error
	)
	switch mode {
	case "typecast":
		fn, err = typecastTransform(option)
	case "arithmetic":
		fn, err = arithmeticTransform(option)
	case "dimchg":
		fn, err = dimchgTransform(option)
	case "transpose":
		fn, err = transposeTransform(option)
	case "clamp":
		fn, err = clampTransform(option)
	case "stand":
		fn, err = standTransform(option)
	case "":
		return nil, fmt.Errorf("%w: mode is required", ErrBadProperty)
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrUnsupported, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mode, err)
	}
	t := Transform{base: newBase(env), mode: mode, fn: fn}
	if v := env.Props().String("apply", ""); v != "" {
		t.apply = make(map[int]bool)
		for _, s := range strings.Split(v, ",") {
			i, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || i < 0 {
				return nil, fmt.Errorf("%w: apply=%q", ErrBadProperty, v)
			}
			t.apply[i] = true
		}
	}
	return &t, nil
}

// Process transforms the buffer.
func (t *Transform) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	if in.Format.Media != MediaTensor {
		return fmt.Errorf("%w: %s of %v", ErrUnsupported, t.mode, in.Format.Media)
	}
	info := in.Data.Info()
	regions := make([][]byte, in.Data.Len())
	for i := range regions {
		if t.apply != nil && !t.apply[i] {
			regions[i] = in.Data.Tensor(i)
			continue
		}
		out, b, err := t.fn(info.Tensors[i], in.Data.Tensor(i))
		if err != nil {
			return err
		}
		info.Tensors[i] = out
		regions[i] = b
	}
	d, err := tensor.NewData(info, regions...)
	if err != nil {
		return err
	}
	return emit(0, derive(in, d, in.Format))
}

func typecastTransform(option string) (transformFunc, error) {
	to, err := tensor.ParseType(option)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadProperty, err)
	}
	return func(t tensor.Tensor, b []byte) (tensor.Tensor, []byte, error) {
		out := tensor.Cast(t.Type, to, b)
		t.Type = to
		return t, out, nil
	}, nil
}

type arithmeticOp struct {
	op    string
	value float64
	to    tensor.Type
}

// arithmeticTransform parses option like "typecast:float32,add:-127.5,div:127.5".
func arithmeticTransform(option string) (transformFunc, error) {
	var ops []arithmeticOp
	for _, s := range strings.Split(option, ",") {
		name, arg, ok := strings.Cut(strings.TrimSpace(s), ":")
		if !ok {
			return nil, fmt.Errorf("%w: arithmetic operation %q", ErrBadProperty, s)
		}
		op := arithmeticOp{op: name}
		switch name {
		case "typecast":
			to, err := tensor.ParseType(arg)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadProperty, err)
			}
			op.to = to
		case "add", "mul", "div":
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: arithmetic operand %q", ErrBadProperty, arg)
			}
			if name == "div" && v == 0 {
				return nil, fmt.Errorf("%w: division by zero", ErrBadProperty)
			}
			op.value = v
		default:
			return nil, fmt.Errorf("%w: arithmetic operation %q", ErrUnsupported, name)
		}
		ops = append(ops, op)
	}
	return func(t tensor.Tensor, b []byte) (tensor.Tensor, []byte, error) {
		values := tensor.Float64s(t.Type, b)
		typ := t.Type
		for _, op := range ops {
			switch op.op {
			case "typecast":
				typ = op.to
				values = quantize(typ, values)
				continue
			case "add":
				for i := range values {
					values[i] += op.value
				}
			case "mul":
				for i := range values {
					values[i] *= op.value
				}
			case "div":
				for i := range values {
					values[i] /= op.value
				}
			}
			values = quantize(typ, values)
		}
		out := make([]byte, len(values)*typ.Size())
		tensor.PutFloat64s(typ, out, values)
		t.Type = typ
		return t, out, nil
	}, nil
}

// quantize rounds values to what type t can hold.
func quantize(t tensor.Type, v []float64) []float64 {
	b := make([]byte, len(v)*t.Size())
	tensor.PutFloat64s(t, b, v)
	return tensor.Float64s(t, b)
}

// dimchgTransform moves axis "from:to" shifting the others.
func dimchgTransform(option string) (transformFunc, error) {
	from, to, err := parsePair(option)
	if err != nil {
		return nil, err
	}
	if from < 0 || to < 0 {
		return nil, fmt.Errorf("%w: dimchg %q", ErrBadProperty, option)
	}
	return func(t tensor.Tensor, b []byte) (tensor.Tensor, []byte, error) {
		rank := len(t.Dimension)
		if from >= rank || to >= rank {
			rank = max(from, to) + 1
		}
		perm := make([]int, 0, rank)
		for i := 0; i < rank; i++ {
			if i != from {
				perm = append(perm, i)
			}
		}
		perm = append(perm[:to], append([]int{from}, perm[to:]...)...)
		return transpose(t, b, perm)
	}, nil
}

// transposeTransform reorders axes, option lists source axis of every
// destination axis, e.g. "1:2:0:3".
func transposeTransform(option string) (transformFunc, error) {
	parts := strings.Split(option, ":")
	perm := make([]int, len(parts))
	seen := make(map[int]bool)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v >= len(parts) || seen[v] {
			return nil, fmt.Errorf("%w: transpose %q", ErrBadProperty, option)
		}
		seen[v] = true
		perm[i] = v
	}
	return func(t tensor.Tensor, b []byte) (tensor.Tensor, []byte, error) {
		return transpose(t, b, perm)
	}, nil
}

// transpose returns tensor whose axis i is axis perm[i] of t.
func transpose(t tensor.Tensor, b []byte, perm []int) (tensor.Tensor, []byte, error) {
	rank := len(perm)
	if len(t.Dimension) > rank {
		return t, nil, fmt.Errorf("%w: rank %d tensor permuted by %d axes", ErrShapeMismatch, len(t.Dimension), rank)
	}
	in := t.Dimension.Pad(rank)
	strides := make([]int, rank)
	stride := 1
	for i := 0; i < rank; i++ {
		strides[i] = stride
		stride *= int(in[i])
	}
	outDim := make(tensor.Dimension, rank)
	for i, p := range perm {
		outDim[i] = in[p]
	}
	size := t.Type.Size()
	out := make([]byte, len(b))
	idx := make([]int, rank)
	n := outDim.Count()
	for o := 0; o < n; o++ {
		src := 0
		for i := 0; i < rank; i++ {
			src += idx[i] * strides[perm[i]]
		}
		copy(out[o*size:(o+1)*size], b[src*size:(src+1)*size])
		// next output index, innermost first
		for i := 0; i < rank; i++ {
			idx[i]++
			if idx[i] < int(outDim[i]) {
				break
			}
			idx[i] = 0
		}
	}
	t.Dimension = outDim
	return t, out, nil
}

func clampTransform(option string) (transformFunc, error) {
	lo, hi, ok := strings.Cut(option, ":")
	if !ok {
		return nil, fmt.Errorf("%w: clamp %q", ErrBadProperty, option)
	}
	minV, err1 := strconv.ParseFloat(lo, 64)
	maxV, err2 := strconv.ParseFloat(hi, 64)
	if err1 != nil || err2 != nil || minV > maxV {
		return nil, fmt.Errorf("%w: clamp %q", ErrBadProperty, option)
	}
	return func(t tensor.Tensor, b []byte) (tensor.Tensor, []byte, error) {
		values := tensor.Float64s(t.Type, b)
		for i, v := range values {
			values[i] = math.Min(math.Max(v, minV), maxV)
		}
		out := make([]byte, len(b))
		tensor.PutFloat64s(t.Type, out, values)
		return t, out, nil
	}, nil
}

// standTransform standardizes values. Mode "default" outputs float32
// (x-mean)/stddev, "dc-average" subtracts the mean keeping the type.
func standTransform(option string) (transformFunc, error) {
	mode := option
	if mode == "" {
		mode = "default"
	}
	if mode != "default" && mode != "dc-average" {
		return nil, fmt.Errorf("%w: stand %q", ErrUnsupported, option)
	}
	return func(t tensor.Tensor, b []byte) (tensor.Tensor, []byte, error) {
		values := tensor.Float64s(t.Type, b)
		var mean float64
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))
		var std float64
		for _, v := range values {
			std += (v - mean) * (v - mean)
		}
		std = math.Sqrt(std / float64(len(values)))
		for i, v := range values {
			values[i] = v - mean
			if mode == "default" {
				values[i] /= std + 1e-10
			}
		}
		if mode == "default" {
			t.Type = tensor.Float32
		}
		out := make([]byte, len(values)*t.Type.Size())
		tensor.PutFloat64s(t.Type, out, values)
		return t, out, nil
	}, nil
}

func parsePair(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadProperty, s)
	}
	x, err1 := strconv.Atoi(strings.TrimSpace(a))
	y, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadProperty, s)
	}
	return x, y, nil
}
