package nnpipe

import (
	"context"
	"fmt"

	"github.com/nnsuite/nnpipe/element"
	"github.com/nnsuite/nnpipe/mutable"
	"github.com/nnsuite/nnpipe/surface"
)

// Surface is a render target of surface sinks.
type Surface = surface.Surface

// switcher is implemented by input and output selectors.
type switcher interface {
	element.Mutable
	Pads() []string
	SelectPad(name string) (mutable.Mutation, error)
}

// SwitchPads returns pads of the selector in declaration order.
func (p *Pipeline) SwitchPads(name string) ([]string, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: selector name", ErrInvalidArgument)
	}
	if err := p.open(); err != nil {
		return nil, err
	}
	s, err := lookup[switcher](p, name, "selector")
	if err != nil {
		return nil, err
	}
	return s.Pads(), nil
}

// SelectSwitchPad makes the pad of the selector active.
func (p *Pipeline) SelectSwitchPad(name, pad string) error {
	if name == "" || pad == "" {
		return fmt.Errorf("%w: selector and pad names", ErrInvalidArgument)
	}
	if err := p.open(); err != nil {
		return err
	}
	s, err := lookup[switcher](p, name, "selector")
	if err != nil {
		return err
	}
	m, err := s.SelectPad(pad)
	if err != nil {
		return boundary(err)
	}
	return p.mutate(m)
}

// ControlValve opens or closes the valve. Closed valve drops buffers.
func (p *Pipeline) ControlValve(name string, open bool) error {
	if name == "" {
		return fmt.Errorf("%w: valve name", ErrInvalidArgument)
	}
	if err := p.open(); err != nil {
		return err
	}
	v, err := lookup[*element.Valve](p, name, "valve")
	if err != nil {
		return err
	}
	return p.mutate(v.SetOpen(open))
}

// SetSurface binds surface to the surface sink. Nil surface unbinds and
// releases the current one immediately. Surface must be ready for
// rendering.
func (p *Pipeline) SetSurface(name string, s Surface) error {
	if name == "" {
		return fmt.Errorf("%w: sink name", ErrInvalidArgument)
	}
	if err := p.open(); err != nil {
		return err
	}
	sink, err := lookup[*element.SurfaceSink](p, name, "surface sink")
	if err != nil {
		return err
	}
	return boundary(sink.SetSurface(s))
}

func (p *Pipeline) mutate(m mutable.Mutation) error {
	return p.closed(p.runtime.Mutate(context.Background(), m))
}
