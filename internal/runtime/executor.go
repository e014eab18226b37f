package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nnsuite/nnpipe/element"
	"github.com/nnsuite/nnpipe/metric"
	"github.com/nnsuite/nnpipe/mutable"
)

// Gate lets sources emit buffers.
type Gate interface {
	Give(ctx context.Context) error
}

// executor runs a single element in its own goroutine.
type executor struct {
	element.Element
	kind    string
	inbox   inbox
	inputs  int
	outlets []outlet
	// mutations of the element, nil if it's immutable.
	mutations mutable.Destination
	meter     metric.ResetFunc
	drop      metric.DropFunc
}

// execute runs the element until the end of stream or ctx is done.
func (e *executor) execute(ctx context.Context, r *Runtime, gate Gate) error {
	switch el := e.Element.(type) {
	case element.Source:
		return e.source(ctx, r, el, gate)
	case element.Processor:
		return e.process(ctx, r, el)
	}
	return fmt.Errorf("element %s: %w: %T", e.Name(), element.ErrUnsupported, e.Element)
}

func (e *executor) source(ctx context.Context, r *Runtime, s element.Source, gate Gate) error {
	measure := e.meter()
	for {
		b, err := s.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.log.WithField("element", e.Name()).Debug("end of stream")
				return done(ctx, eos(ctx, e.outlets))
			}
			return done(ctx, fmt.Errorf("source %s: %w", e.Name(), err))
		}
		if err := gate.Give(ctx); err != nil {
			return nil
		}
		current := r.Epoch()
		if b.Epoch == 0 {
			b.Epoch = current
		}
		if b.Epoch != current {
			e.drop()
			continue
		}
		if err := e.mutate(); err != nil {
			return err
		}
		measure(int64(b.Data.Size()))
		for _, o := range e.outlets {
			if err := o.send(ctx, Message{Buffer: b}); err != nil {
				return nil
			}
		}
	}
}

func (e *executor) process(ctx context.Context, r *Runtime, p element.Processor) error {
	measure := e.meter()
	ended := make([]bool, e.inputs)
	remaining := e.inputs
	emit := func(pad int, b element.Buffer) error {
		if pad < 0 || pad >= len(e.outlets) {
			return fmt.Errorf("%w: output %d", element.ErrNoSuchPad, pad)
		}
		return e.outlets[pad].send(ctx, Message{Buffer: b})
	}
	for {
		m, ok := e.inbox.receive(ctx)
		if !ok {
			return nil
		}
		if m.EOS {
			if m.Pad < len(ended) && !ended[m.Pad] {
				ended[m.Pad] = true
				remaining--
			}
			if remaining <= 0 {
				r.log.WithField("element", e.Name()).Debug("end of stream")
				return done(ctx, eos(ctx, e.outlets))
			}
			continue
		}
		if err := e.mutate(); err != nil {
			return err
		}
		if m.Epoch < r.Epoch() {
			e.drop()
			continue
		}
		measure(int64(m.Data.Size()))
		if err := p.Process(ctx, m.Pad, m.Buffer, emit); err != nil {
			return done(ctx, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
}

// mutate applies pending mutations of the element.
func (e *executor) mutate() error {
	if e.mutations == nil {
		return nil
	}
	ms := e.mutations.Receive()
	if ms == nil {
		return nil
	}
	m := e.Element.(element.Mutable)
	if err := ms.ApplyTo(m.Mutability()); err != nil {
		return fmt.Errorf("%s: mutation: %w", e.Name(), err)
	}
	return nil
}

// done returns nil if ctx is done, errors of cancelled elements are
// expected.
func done(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
