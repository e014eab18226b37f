// Package element implements the kinds of elements a pipeline is built of.
//
// An element is either a Source, which produces buffers, or a Processor,
// which handles buffers arriving on its input pads and emits results to
// its output pads. Optional hooks are expressed with Starter, Closer and
// Resetter interfaces.
package element

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/mutable"
	"github.com/nnsuite/nnpipe/tensor"
)

var (
	// ErrUnsupported is returned when element can't handle the buffer or configuration.
	ErrUnsupported = errors.New("unsupported")
	// ErrBadProperty is returned when element property has invalid value.
	ErrBadProperty = errors.New("bad property")
	// ErrShapeMismatch is returned when buffer doesn't match expected shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrQueueFull is returned when source queue has no room for a buffer.
	ErrQueueFull = errors.New("queue is full")
	// ErrNoSuchPad is returned when selector has no pad with requested name.
	ErrNoSuchPad = errors.New("no such pad")
	// ErrNotAvailable is returned when element kind has no implementation.
	ErrNotAvailable = errors.New("element not available")
)

// Buffer is the unit of data travelling between elements.
type Buffer struct {
	Data   *tensor.Data
	Format Format
	// Epoch is the flush generation the buffer belongs to.
	Epoch uint64
	// Meta carries per-buffer values between cooperating elements.
	Meta map[string]string
}

type (
	// Element is a constructed element of any kind.
	Element interface {
		Name() string
	}

	// Source produces buffers. io.EOF is returned at the end of stream.
	Source interface {
		Element
		Read(ctx context.Context) (Buffer, error)
	}

	// Processor handles buffer arrived at input pad.
	Processor interface {
		Element
		Process(ctx context.Context, pad int, in Buffer, emit EmitFunc) error
	}

	// EmitFunc pushes buffer to the output pad.
	EmitFunc func(pad int, b Buffer) error

	// Starter is implemented by elements which acquire resources before
	// the pipeline runs.
	Starter interface {
		Start(ctx context.Context) error
	}

	// Closer is implemented by elements which release resources when the
	// pipeline is closed.
	Closer interface {
		Close() error
	}

	// Resetter is implemented by elements which accumulate state across
	// buffers. Reset returns mutation which discards that state.
	Resetter interface {
		Mutable
		Reset() mutable.Mutation
	}

	// Mutable is implemented by elements which can be changed while the
	// pipeline runs. Mutations are applied on the element goroutine.
	Mutable interface {
		Element
		Mutability() mutable.Context
	}
)

// Env is everything a factory needs to construct an element.
type Env struct {
	Element *graph.Element
	Graph   *graph.Graph
	Logger  logrus.FieldLogger
	Limits  tensor.Limits
	// QueueSize is the default capacity of source queues.
	QueueSize int
	// NATSURL is the default server for network elements.
	NATSURL string
	// Deliver is called by tensor sinks for every buffer.
	Deliver func(*tensor.Data)
}

// Props returns properties of the element.
func (env Env) Props() graph.Properties {
	return env.Element.Properties
}

// Factory constructs an element.
type Factory func(env Env) (Element, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register adds factory for the element kind. Kind must be known to the
// graph catalog.
func Register(kind string, f Factory) {
	if _, ok := graph.LookupKind(kind); !ok {
		panic(fmt.Sprintf("register unknown element kind %q", kind))
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

// Available returns true if the element kind can be constructed.
func Available(kind string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[kind]
	return ok
}

// New constructs element described by env.
func New(env Env) (Element, error) {
	factoriesMu.RLock()
	f, ok := factories[env.Element.Kind.Name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, env.Element.Kind.Name)
	}
	if env.Logger == nil {
		env.Logger = logrus.StandardLogger()
	}
	if env.Limits == (tensor.Limits{}) {
		env.Limits = tensor.DefaultLimits
	}
	e, err := f(env)
	if err != nil {
		return nil, fmt.Errorf("element %s (%s): %w", env.Element.Name, env.Element.Kind.Name, err)
	}
	return e, nil
}

// base is embedded by all elements.
type base struct {
	name string
	log  logrus.FieldLogger
}

func newBase(env Env) base {
	return base{
		name: env.Element.Name,
		log:  env.Logger.WithField("element", env.Element.Name),
	}
}

// Name returns element name.
func (b base) Name() string {
	return b.name
}

// derive returns buffer with the same epoch and meta as in.
func derive(in Buffer, d *tensor.Data, f Format) Buffer {
	return Buffer{
		Data:   d,
		Format: f,
		Epoch:  in.Epoch,
		Meta:   in.Meta,
	}
}

func intProp(env Env, key string, def int) (int, error) {
	v, err := env.Props().Int(key, def)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadProperty, err)
	}
	return v, nil
}

func boolProp(env Env, key string, def bool) (bool, error) {
	v, err := env.Props().Bool(key, def)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadProperty, err)
	}
	return v, nil
}
