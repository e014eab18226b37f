package nnpipe

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/tensor"
)

// Listener receives tensors delivered to a sink. Listeners are compared
// by value, so they must be comparable.
//
// OnData runs on the data flow goroutine while the sink's listeners are
// locked. It must not call Close of the pipeline, nor register or
// unregister listeners of its own sink: the call never returns. Run them
// in a separate goroutine instead.
type Listener interface {
	OnData(*tensor.Data)
}

type listenerFunc struct {
	fn func(*tensor.Data)
}

func (l *listenerFunc) OnData(d *tensor.Data) {
	l.fn(d)
}

// ListenerFunc returns listener calling fn. Every call returns a distinct
// listener.
func ListenerFunc(fn func(*tensor.Data)) Listener {
	return &listenerFunc{fn: fn}
}

// sinkListeners is ordered set of listeners of a single sink.
type sinkListeners struct {
	mu        sync.Mutex
	listeners []Listener
}

func (s *sinkListeners) add(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, registered := range s.listeners {
		if registered == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

func (s *sinkListeners) remove(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, registered := range s.listeners {
		if registered == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// deliver calls every listener under the lock of the sink. Listeners
// must not register or unregister on the same sink.
func (s *sinkListeners) deliver(d *tensor.Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		l.OnData(d)
	}
}

// registry holds listeners of every tensor sink. Set of sinks is fixed
// at construction.
type registry struct {
	sinks map[string]*sinkListeners
}

func newRegistry(g *graph.Graph) *registry {
	r := registry{sinks: make(map[string]*sinkListeners)}
	for _, e := range g.Sinks() {
		if e.Kind.Name == "tensor_sink" {
			r.sinks[e.Name] = &sinkListeners{}
		}
	}
	return &r
}

// deliverer returns delivery function for tensor sinks.
func (r *registry) deliverer(sink string) func(*tensor.Data) {
	s, ok := r.sinks[sink]
	if !ok {
		return nil
	}
	return s.deliver
}

func (r *registry) clear() {
	for _, s := range r.sinks {
		s.mu.Lock()
		s.listeners = nil
		s.mu.Unlock()
	}
}

func (r *registry) sink(name string, l Listener) (*sinkListeners, error) {
	if name == "" || l == nil {
		return nil, fmt.Errorf("%w: sink name and listener are required", ErrInvalidArgument)
	}
	if !reflect.TypeOf(l).Comparable() {
		return nil, fmt.Errorf("%w: listener %T isn't comparable", ErrInvalidArgument, l)
	}
	s, ok := r.sinks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q isn't tensor_sink", ErrNoSuchElement, name)
	}
	return s, nil
}

// RegisterSinkCallback adds listener to the tensor sink. Registering the
// same listener twice has no effect.
func (p *Pipeline) RegisterSinkCallback(sink string, l Listener) error {
	s, err := p.registry.sink(sink, l)
	if err != nil {
		return err
	}
	if err := p.open(); err != nil {
		return err
	}
	s.add(l)
	return nil
}

// UnregisterSinkCallback removes listener from the tensor sink.
func (p *Pipeline) UnregisterSinkCallback(sink string, l Listener) error {
	s, err := p.registry.sink(sink, l)
	if err != nil {
		return err
	}
	if err := p.open(); err != nil {
		return err
	}
	if !s.remove(l) {
		return fmt.Errorf("%w: sink %q", ErrNotRegistered, sink)
	}
	return nil
}
