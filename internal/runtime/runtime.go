// Package runtime executes constructed elements of a graph. Every element
// runs in its own goroutine, elements are connected with buffered
// channels. Buffers are stamped with the flush epoch at the source and
// stale ones are dropped before processing.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nnsuite/nnpipe/element"
	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/metric"
	"github.com/nnsuite/nnpipe/mutable"
	"github.com/nnsuite/nnpipe/tensor"
)

// Options configure the runtime.
type Options struct {
	Limits     tensor.Limits
	QueueSize  int
	LinkBuffer int
	NATSURL    string
	Logger     logrus.FieldLogger
	Metric     *metric.Registry
	// Deliver returns delivery function for the tensor sink.
	Deliver func(sink string) func(*tensor.Data)
}

// Runtime owns constructed elements of a graph.
type Runtime struct {
	graph     *graph.Graph
	log       logrus.FieldLogger
	executors []*executor
	byName    map[string]*executor
	pusher    *mutable.Pusher
	epoch     atomic.Uint64

	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	closeOnce sync.Once
	closeErr  error
}

// New constructs every element of the graph in topological order. Already
// constructed elements are closed if any of them fails.
func New(g *graph.Graph, opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Metric == nil {
		opts.Metric = metric.New("")
	}
	if opts.LinkBuffer <= 0 {
		opts.LinkBuffer = 1
	}
	r := Runtime{
		graph:  g,
		log:    opts.Logger,
		byName: make(map[string]*executor),
		pusher: mutable.NewPusher(),
	}
	r.epoch.Store(1)
	for _, ge := range g.Sorted() {
		env := element.Env{
			Element:   ge,
			Graph:     g,
			Logger:    opts.Logger,
			Limits:    opts.Limits,
			QueueSize: opts.QueueSize,
			NATSURL:   opts.NATSURL,
		}
		if opts.Deliver != nil {
			env.Deliver = opts.Deliver(ge.Name)
		}
		el, err := element.New(env)
		if err != nil {
			r.closeElements()
			return nil, err
		}
		e := executor{
			Element: el,
			kind:    ge.Kind.Name,
			inputs:  len(ge.Inputs),
			meter:   opts.Metric.Meter(ge.Name, ge.Kind.Name),
			drop:    opts.Metric.Dropper(ge.Name, ge.Kind.Name),
		}
		if e.inputs > 0 {
			e.inbox = make(inbox, linkBuffer(ge, opts.LinkBuffer))
		}
		if m, ok := el.(element.Mutable); ok {
			e.mutations = mutable.NewDestination()
			r.pusher.AddDestination(m.Mutability(), e.mutations)
		}
		r.executors = append(r.executors, &e)
		r.byName[ge.Name] = &e
	}
	// outlets are known once every inbox exists
	for _, e := range r.executors {
		ge, _ := g.Element(e.Name())
		for _, l := range ge.Outputs {
			to := r.byName[l.To.Name]
			e.outlets = append(e.outlets, outlet{to: to.inbox, pad: padIndex(l.To, l)})
		}
	}
	return &r, nil
}

// linkBuffer returns capacity of the element inbox. Queues widen it.
func linkBuffer(e *graph.Element, def int) int {
	if e.Kind.Name != "queue" {
		return def
	}
	n, err := e.Properties.Int("max-size-buffers", 200)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func padIndex(e *graph.Element, l *graph.Link) int {
	for i, in := range e.Inputs {
		if in == l {
			return i
		}
	}
	return 0
}

// Element returns constructed element by name.
func (r *Runtime) Element(name string) (element.Element, bool) {
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.Element, true
}

// Elements returns constructed elements in topological order.
func (r *Runtime) Elements() []element.Element {
	out := make([]element.Element, 0, len(r.executors))
	for _, e := range r.executors {
		out = append(out, e.Element)
	}
	return out
}

// Epoch returns the current flush epoch.
func (r *Runtime) Epoch() uint64 {
	return r.epoch.Load()
}

// Run calls start hooks and launches executors. Sources emit only buffers
// given by the gate. Data flow error is passed to fail once all
// executors are done.
func (r *Runtime) Run(ctx context.Context, gate Gate, fail func(error)) error {
	ctx, cancel := context.WithCancel(ctx)
	for _, e := range r.executors {
		if s, ok := e.Element.(element.Starter); ok {
			if err := s.Start(ctx); err != nil {
				cancel()
				return fmt.Errorf("start %s: %w", e.Name(), err)
			}
		}
	}
	r.cancel = cancel
	r.done = make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range r.executors {
		e := e
		g.Go(func() error {
			return e.execute(ctx, r, gate)
		})
	}
	go func() {
		r.err = g.Wait()
		close(r.done)
		if r.err != nil {
			r.log.Errorf("pipeline failed: %v", r.err)
			if fail != nil {
				fail(r.err)
			}
		}
	}()
	return nil
}

// Done returns a channel closed when every executor is done.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Mutate pushes mutations to elements. They are applied before the
// element handles its next buffer.
func (r *Runtime) Mutate(ctx context.Context, ms ...mutable.Mutation) error {
	return r.pusher.Push(ctx, ms...)
}

// Flush drops every buffer queued in the graph. If reset is true,
// accumulated state of elements is discarded too.
func (r *Runtime) Flush(ctx context.Context, reset bool) error {
	epoch := r.epoch.Add(1)
	var (
		dropped int
		resets  []mutable.Mutation
	)
	for _, e := range r.executors {
		if s, ok := e.Element.(*element.AppSrc); ok {
			dropped += s.Drain()
		}
		if rs, ok := e.Element.(element.Resetter); ok && reset {
			resets = append(resets, rs.Reset())
		}
	}
	r.log.WithField("epoch", epoch).Debugf("flush: %d queued buffers dropped", dropped)
	if len(resets) == 0 {
		return nil
	}
	return r.Mutate(ctx, resets...)
}

// Close stops executors, waits for them and closes elements. It's safe to
// call Close multiple times.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
		r.closeErr = r.closeElements()
	})
	return r.closeErr
}

func (r *Runtime) closeElements() error {
	var errs closeErrors
	for _, e := range r.executors {
		if c, ok := e.Element.(element.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.Name(), err))
			}
		}
	}
	return errs.ret()
}

type closeErrors []error

func (e closeErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows to match any of the errors.
func (e closeErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e closeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
