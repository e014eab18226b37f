package element

import (
	"context"
	"fmt"
	"sync"

	"github.com/nnsuite/nnpipe/tensor"
)

// AppSrc emits buffers pushed by the application.
type AppSrc struct {
	base
	limits tensor.Limits
	format Format
	queue  chan Buffer

	mu sync.Mutex
	// expected is fixed by caps or by the first accepted buffer.
	expected tensor.Info
	fixed    bool
}

func init() {
	Register("appsrc", newAppSrc)
}

func newAppSrc(env Env) (Element, error) {
	caps, err := env.Element.Caps()
	if err != nil {
		return nil, err
	}
	if caps.IsEmpty() {
		caps = env.Graph.DownstreamCaps(env.Element)
	}
	format, info, err := formatOf(caps)
	if err != nil {
		return nil, err
	}
	size, err := intProp(env, "max-buffers", env.QueueSize)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 1
	}
	s := AppSrc{
		base:   newBase(env),
		limits: env.Limits,
		format: format,
		queue:  make(chan Buffer, size),
	}
	if info.Len() > 0 {
		if err := env.Limits.Validate(info); err != nil {
			return nil, err
		}
		s.expected, s.fixed = info, true
	}
	return &s, nil
}

// Push copies data into the queue. The first buffer fixes expected shape
// unless caps defined it.
func (s *AppSrc) Push(d *tensor.Data, epoch uint64) error {
	info := d.Info()
	if err := s.limits.Validate(info); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expected := info
	if s.fixed {
		expected = s.expected
		if err := matchSizes(expected, d); err != nil {
			return err
		}
	}
	data := d.Clone()
	if s.fixed {
		var err error
		if data, err = data.WithInfo(expected); err != nil {
			return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
	}
	select {
	case s.queue <- Buffer{Data: data, Format: s.format, Epoch: epoch}:
	default:
		return ErrQueueFull
	}
	if !s.fixed {
		s.expected, s.fixed = expected, true
		s.log.Debugf("shape fixed by first buffer: %v", expected)
	}
	return nil
}

// Expected returns the shape the source accepts and whether it's fixed.
func (s *AppSrc) Expected() (tensor.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expected.Clone(), s.fixed
}

// Read blocks until a buffer is pushed.
func (s *AppSrc) Read(ctx context.Context) (Buffer, error) {
	select {
	case b := <-s.queue:
		return b, nil
	case <-ctx.Done():
		return Buffer{}, ctx.Err()
	}
}

// Drain discards queued buffers.
func (s *AppSrc) Drain() int {
	var n int
	for {
		select {
		case <-s.queue:
			n++
		default:
			return n
		}
	}
}

func matchSizes(expected tensor.Info, d *tensor.Data) error {
	if expected.Len() != d.Len() {
		return fmt.Errorf("%w: %d tensors, expected %d", ErrShapeMismatch, d.Len(), expected.Len())
	}
	for i := 0; i < d.Len(); i++ {
		if got, want := len(d.Tensor(i)), expected.Size(i); got != want {
			return fmt.Errorf("%w: tensor %d has %d bytes, expected %d", ErrShapeMismatch, i, got, want)
		}
	}
	return nil
}
