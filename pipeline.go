package nnpipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/nnsuite/nnpipe/config"
	"github.com/nnsuite/nnpipe/element"
	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/internal/runtime"
	"github.com/nnsuite/nnpipe/internal/state"
	"github.com/nnsuite/nnpipe/log"
	"github.com/nnsuite/nnpipe/metric"
	"github.com/nnsuite/nnpipe/tensor"
)

// State identifies one of the possible states pipeline can be in.
type State = state.State

// States of the pipeline.
const (
	Unknown = state.Unknown
	Null    = state.Null
	Ready   = state.Ready
	Paused  = state.Paused
	Playing = state.Playing
)

// ParseState returns state by its name.
func ParseState(s string) (State, error) {
	return state.ParseState(s)
}

// Pipeline is a running graph of elements.
type Pipeline struct {
	uid      string
	name     string
	graph    *graph.Graph
	runtime  *runtime.Runtime
	handle   *state.Handle
	registry *registry
	metric   *metric.Registry
	log      logrus.FieldLogger
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// New parses the description, constructs every element and returns
// the pipeline in Paused state. Failures are wrapped into
// ErrConstruction. Resources acquired before the failure are released.
func New(description string, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfg, err := configOf(o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	p := Pipeline{
		uid:    newUID(),
		name:   o.name,
		metric: o.metric,
	}
	if p.name == "" {
		p.name = p.uid
	}
	if p.metric == nil {
		p.metric = metric.New(p.name)
	}
	p.log = loggerOf(o, cfg).WithField("pipeline", p.name)

	if p.graph, err = graph.Parse(description); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	p.registry = newRegistry(p.graph)
	p.runtime, err = runtime.New(p.graph, runtime.Options{
		Limits:     cfg.TensorLimits(),
		QueueSize:  cfg.QueueSize,
		LinkBuffer: cfg.LinkBuffer,
		NATSURL:    cfg.NATSURL,
		Logger:     p.log,
		Metric:     p.metric,
		Deliver:    p.registry.deliverer,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	p.handle = state.NewHandle(p.runtime.Close, p.notifier(o.onState))
	if err := p.runtime.Run(context.Background(), p.handle, p.handle.Fail); err != nil {
		p.handle.Close()
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	p.log.Debugf("constructed: %v", p.graph)
	return &p, nil
}

func configOf(o options) (config.Config, error) {
	if o.config != nil {
		return *o.config, o.config.Validate()
	}
	return config.Load()
}

func loggerOf(o options, cfg config.Config) logrus.FieldLogger {
	if o.logger != nil {
		return log.Adapt(o.logger)
	}
	l := log.GetLogger()
	if cfg.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// notifier records the state and forwards it to the callback.
func (p *Pipeline) notifier(fn func(State)) state.NotifyFunc {
	return func(s state.State) {
		p.metric.SetState(int(s))
		p.log.Debugf("state %v", s)
		if fn != nil {
			fn(s)
		}
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Graph returns the parsed description.
func (p *Pipeline) Graph() *graph.Graph {
	return p.graph
}

// Metric returns the registry of element metrics.
func (p *Pipeline) Metric() *metric.Registry {
	return p.metric
}

// State returns the last known state. It never blocks.
func (p *Pipeline) State() State {
	return p.handle.State()
}

// Start requests the Playing state. It doesn't wait for the data flow.
func (p *Pipeline) Start() error {
	return p.closed(p.handle.Start())
}

// Stop requests the Paused state. Buffers which already passed sources
// may still reach sinks.
func (p *Pipeline) Stop() error {
	return p.closed(p.handle.Stop())
}

// Done returns a channel closed when every element reached the end of
// stream or the pipeline failed.
func (p *Pipeline) Done() <-chan struct{} {
	return p.runtime.Done()
}

// Err returns the data flow error which closed the pipeline.
func (p *Pipeline) Err() error {
	return p.handle.Err()
}

// InputData copies data into the queue of the appsrc element. The first
// accepted data fixes the shape unless caps define it.
func (p *Pipeline) InputData(source string, data *tensor.Data) error {
	if source == "" || data == nil {
		return fmt.Errorf("%w: source and data are required", ErrInvalidArgument)
	}
	if err := p.open(); err != nil {
		return err
	}
	src, err := lookup[*element.AppSrc](p, source, "appsrc")
	if err != nil {
		return err
	}
	return boundary(src.Push(data, p.runtime.Epoch()))
}

// Flush drops buffers queued in the pipeline. If reset is true, elements
// also discard accumulated data.
func (p *Pipeline) Flush(reset bool) error {
	if err := p.open(); err != nil {
		return err
	}
	return p.runtime.Flush(context.Background(), reset)
}

// Close stops the pipeline, waits for every element and releases
// resources. Listeners aren't called after Close returns. Repeated calls
// return nil. Close waits for the listener in flight, so a listener
// closing its pipeline must do it from another goroutine.
func (p *Pipeline) Close() error {
	err := p.handle.Close()
	p.registry.clear()
	if errors.Is(err, state.ErrClosed) {
		return nil
	}
	return err
}

// open returns error if pipeline is closed.
func (p *Pipeline) open() error {
	if p.handle.State() == Null {
		return p.closed(state.ErrClosed)
	}
	return nil
}

// closed converts the handle error.
func (p *Pipeline) closed(err error) error {
	if !errors.Is(err, state.ErrClosed) {
		return err
	}
	if cause := p.handle.Err(); cause != nil {
		return fmt.Errorf("%w: %w", ErrClosedPipeline, cause)
	}
	return ErrClosedPipeline
}

// lookup returns constructed element of the type.
func lookup[T any](p *Pipeline, name, kind string) (T, error) {
	var zero T
	el, ok := p.runtime.Element(name)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNoSuchElement, name)
	}
	t, ok := el.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q isn't %s", ErrNoSuchElement, name, kind)
	}
	return t, nil
}

// IsElementAvailable returns true if the element kind can be used in
// descriptions.
func IsElementAvailable(kind string) (bool, error) {
	ok, err := graph.IsElementAvailable(kind)
	if err != nil || !ok {
		return false, err
	}
	return element.Available(kind), nil
}
