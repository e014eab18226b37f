package filter

import (
	"fmt"
	"sync"

	"github.com/nnsuite/nnpipe/tensor"
)

// InvokeFunc computes output for input data.
type InvokeFunc func(in *tensor.Data) (*tensor.Data, error)

type customEasy struct {
	in, out tensor.Info
	fn      InvokeFunc
}

var (
	customMu sync.RWMutex
	customs  = make(map[string]customEasy)
)

func init() {
	Register("custom-easy", FrameworkFunc(openCustomEasy))
	Register("passthrough", FrameworkFunc(openPassthrough))
}

// RegisterCustomEasy registers callback model available as
// framework=custom-easy model=name.
func RegisterCustomEasy(name string, in, out tensor.Info, fn InvokeFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: custom model needs name and function", ErrModel)
	}
	if err := tensor.DefaultLimits.Validate(in); err != nil {
		return err
	}
	if err := tensor.DefaultLimits.Validate(out); err != nil {
		return err
	}
	customMu.Lock()
	defer customMu.Unlock()
	if _, ok := customs[name]; ok {
		return fmt.Errorf("%w: custom model %q is registered", ErrModel, name)
	}
	customs[name] = customEasy{in: in.Clone(), out: out.Clone(), fn: fn}
	return nil
}

// UnregisterCustomEasy removes callback model.
func UnregisterCustomEasy(name string) {
	customMu.Lock()
	defer customMu.Unlock()
	delete(customs, name)
}

func openCustomEasy(p Properties) (Instance, error) {
	if len(p.Model) == 0 {
		return nil, fmt.Errorf("%w: custom model name is required", ErrModel)
	}
	customMu.RLock()
	c, ok := customs[p.Model[0]]
	customMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: custom model %q isn't registered", ErrModel, p.Model[0])
	}
	return &c, nil
}

func (c *customEasy) InputInfo() tensor.Info  { return c.in.Clone() }
func (c *customEasy) OutputInfo() tensor.Info { return c.out.Clone() }
func (c *customEasy) Close() error            { return nil }

func (c *customEasy) Invoke(in *tensor.Data) (*tensor.Data, error) {
	out, err := c.fn(in)
	if err != nil {
		return nil, err
	}
	if !out.Info().Equal(c.out) {
		return nil, fmt.Errorf("%w: output %v, declared %v", ErrModel, out.Info(), c.out)
	}
	return out, nil
}

// passthrough returns input unchanged. Its info is the requested input.
type passthrough struct {
	info tensor.Info
}

func openPassthrough(p Properties) (Instance, error) {
	if p.Input.Len() == 0 {
		return nil, fmt.Errorf("%w: passthrough requires input info", ErrModel)
	}
	return &passthrough{info: p.Input.Clone()}, nil
}

func (p *passthrough) InputInfo() tensor.Info  { return p.info.Clone() }
func (p *passthrough) OutputInfo() tensor.Info { return p.info.Clone() }
func (p *passthrough) Close() error            { return nil }

func (p *passthrough) Invoke(in *tensor.Data) (*tensor.Data, error) {
	return in, nil
}
