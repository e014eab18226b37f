package element

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nnsuite/nnpipe/filter"
	"github.com/nnsuite/nnpipe/tensor"
)

// Filter invokes a model on every buffer.
type Filter struct {
	base
	framework string
	instance  filter.Instance
	names     []string
	latency   bool
	invokes   int
	total     time.Duration
}

func init() {
	Register("tensor_filter", newFilter)
}

func newFilter(env Env) (Element, error) {
	props := env.Props()
	framework := props.String("framework", "auto")
	p := filter.Properties{
		Custom:      props.String("custom", ""),
		Accelerator: props.String("accelerator", ""),
	}
	if model := props.String("model", ""); model != "" {
		for _, m := range strings.Split(model, ",") {
			p.Model = append(p.Model, strings.TrimSpace(m))
		}
	}
	var err error
	if p.Input, err = declaredInfo(env, "input", "inputtype", "inputname"); err != nil {
		return nil, err
	}
	if p.Output, err = declaredInfo(env, "output", "outputtype", "outputname"); err != nil {
		return nil, err
	}
	if p.Input.Len() == 0 && framework == "passthrough" {
		// passthrough takes its shape from upstream caps
		if _, info, err := formatOf(env.Graph.UpstreamCaps(env.Element)); err == nil {
			p.Input = info
		}
	}
	inst, err := filter.Open(framework, p)
	if err != nil {
		return nil, err
	}
	if err := env.Limits.Validate(inst.OutputInfo()); err != nil {
		inst.Close()
		return nil, err
	}
	latency, err := intProp(env, "latency", 0)
	if err != nil {
		inst.Close()
		return nil, err
	}
	f := Filter{
		base:      newBase(env),
		framework: framework,
		instance:  inst,
		latency:   latency > 0,
	}
	if names := props.String("outputname", ""); names != "" {
		f.names = strings.Split(names, ",")
	}
	return &f, nil
}

// declaredInfo parses info from dimension, type and name properties. All
// of them are optional.
func declaredInfo(env Env, dimKey, typeKey, nameKey string) (tensor.Info, error) {
	dims, hasDims := env.Props().Get(dimKey)
	types, hasTypes := env.Props().Get(typeKey)
	if !hasDims && !hasTypes {
		return tensor.Info{}, nil
	}
	if !hasDims || !hasTypes {
		return tensor.Info{}, fmt.Errorf("%w: %s and %s must be set together", ErrBadProperty, dimKey, typeKey)
	}
	info, err := tensor.ParseInfo(dims, types, env.Props().String(nameKey, ""))
	if err != nil {
		return tensor.Info{}, fmt.Errorf("%w: %v", ErrBadProperty, err)
	}
	return info, nil
}

// Process invokes the model.
func (f *Filter) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	expected := f.instance.InputInfo()
	if err := matchSizes(expected, in.Data); err != nil {
		return err
	}
	data, err := in.Data.WithInfo(expected)
	if err != nil {
		return err
	}
	start := time.Now()
	out, err := f.instance.Invoke(data)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", f.framework, err)
	}
	if f.latency {
		f.invokes++
		f.total += time.Since(start)
		if f.invokes%100 == 0 {
			f.log.Infof("average invoke latency %v", f.total/time.Duration(f.invokes))
		}
	}
	if len(f.names) > 0 {
		info := out.Info()
		for i := range info.Tensors {
			if i < len(f.names) {
				info.Tensors[i].Name = strings.TrimSpace(f.names[i])
			}
		}
		if out, err = out.WithInfo(info); err != nil {
			return err
		}
	}
	return emit(0, derive(in, out, Format{Media: MediaTensor}))
}

// Close releases the model.
func (f *Filter) Close() error {
	return f.instance.Close()
}
