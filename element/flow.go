package element

import (
	"context"
	"fmt"
	"sync"

	"github.com/nnsuite/nnpipe/mutable"
)

// Passthrough forwards buffers unchanged. It serves capsfilter, identity,
// queue and join. Queue capacity is applied to the link by the runtime.
type Passthrough struct {
	base
}

func init() {
	for _, kind := range []string{"capsfilter", "identity", "queue", "join"} {
		Register(kind, newPassthrough)
	}
	Register("tee", newTee)
	Register("output-selector", newOutputSelector)
	Register("input-selector", newInputSelector)
	Register("valve", newValve)
}

func newPassthrough(env Env) (Element, error) {
	return &Passthrough{base: newBase(env)}, nil
}

// Process forwards the buffer.
func (p *Passthrough) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	return emit(0, in)
}

// Tee copies buffers to every output.
type Tee struct {
	base
	outputs int
}

func newTee(env Env) (Element, error) {
	return &Tee{base: newBase(env), outputs: len(env.Element.Outputs)}, nil
}

// Process emits a copy of buffer to every output. Last output gets the
// original.
func (t *Tee) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	for i := 0; i < t.outputs; i++ {
		b := in
		if i < t.outputs-1 {
			b.Data = in.Data.Clone()
		}
		if err := emit(i, b); err != nil {
			return err
		}
	}
	return nil
}

// selector holds the pad selection shared by input and output selectors.
// Active pad is read by the element goroutine and changed by mutations,
// mu guards reads made from other goroutines.
type selector struct {
	mutable.Context
	pads []string

	mu     sync.Mutex
	active int
}

func newSelector(env Env, pads []string) (*selector, error) {
	s := &selector{
		Context: mutable.Mutable(),
		pads:    pads,
	}
	if name, ok := env.Props().Get("active-pad"); ok && name != "" {
		i, err := s.index(name)
		if err != nil {
			return nil, fmt.Errorf("%w: active-pad=%q", ErrBadProperty, name)
		}
		s.active = i
	}
	return s, nil
}

// Mutability returns mutable context of the selector.
func (s *selector) Mutability() mutable.Context {
	return s.Context
}

// Pads returns names of switchable pads.
func (s *selector) Pads() []string {
	return append([]string(nil), s.pads...)
}

// Active returns name of active pad.
func (s *selector) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active < len(s.pads) {
		return s.pads[s.active]
	}
	return ""
}

// SelectPad returns mutation which makes the named pad active.
func (s *selector) SelectPad(name string) (mutable.Mutation, error) {
	i, err := s.index(name)
	if err != nil {
		return mutable.Mutation{}, err
	}
	return s.Mutate(func() error {
		s.mu.Lock()
		s.active = i
		s.mu.Unlock()
		return nil
	}), nil
}

func (s *selector) index(name string) (int, error) {
	for i, p := range s.pads {
		if p == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrNoSuchPad, name)
}

func (s *selector) current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// OutputSelector routes buffers to the active output.
type OutputSelector struct {
	base
	*selector
}

func newOutputSelector(env Env) (Element, error) {
	s, err := newSelector(env, env.Element.SrcPads())
	if err != nil {
		return nil, err
	}
	return &OutputSelector{base: newBase(env), selector: s}, nil
}

// Process emits buffer to the active output.
func (s *OutputSelector) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	if len(s.pads) == 0 {
		return nil
	}
	return emit(s.current(), in)
}

// InputSelector forwards buffers arriving on the active input.
type InputSelector struct {
	base
	*selector
}

func newInputSelector(env Env) (Element, error) {
	s, err := newSelector(env, env.Element.SinkPads())
	if err != nil {
		return nil, err
	}
	return &InputSelector{base: newBase(env), selector: s}, nil
}

// Process drops buffers of inactive inputs.
func (s *InputSelector) Process(_ context.Context, pad int, in Buffer, emit EmitFunc) error {
	if pad != s.current() {
		return nil
	}
	return emit(0, in)
}

// Valve drops buffers while closed.
type Valve struct {
	base
	mutable.Context

	mu   sync.Mutex
	drop bool
}

func newValve(env Env) (Element, error) {
	drop, err := boolProp(env, "drop", false)
	if err != nil {
		return nil, err
	}
	return &Valve{
		base:    newBase(env),
		Context: mutable.Mutable(),
		drop:    drop,
	}, nil
}

// Mutability returns mutable context of the valve.
func (v *Valve) Mutability() mutable.Context {
	return v.Context
}

// SetOpen returns mutation which opens or closes the valve.
func (v *Valve) SetOpen(open bool) mutable.Mutation {
	return v.Mutate(func() error {
		v.mu.Lock()
		v.drop = !open
		v.mu.Unlock()
		return nil
	})
}

// IsOpen returns true if valve passes buffers.
func (v *Valve) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.drop
}

// Process forwards the buffer if valve is open.
func (v *Valve) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	if !v.IsOpen() {
		return nil
	}
	return emit(0, in)
}
