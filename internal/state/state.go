// Package state implements the lifecycle of a pipeline. A single loop
// goroutine owns the state, consumes events and gates sources: a source
// may emit a buffer only after the loop accepted its give request, which
// happens only while the pipeline is playing.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	// ErrInvalidState is returned if state name can't be parsed.
	ErrInvalidState = errors.New("invalid state")
	// ErrClosed is returned if the handle is closed.
	ErrClosed = errors.New("handle is closed")
)

// State identifies one of the possible states a pipeline can be in.
type State int32

// States of the pipeline.
const (
	Unknown State = iota
	Null
	Ready
	Paused
	Playing
)

var stateNames = [...]string{
	Unknown: "UNKNOWN",
	Null:    "NULL",
	Ready:   "READY",
	Paused:  "PAUSED",
	Playing: "PLAYING",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return stateNames[Unknown]
	}
	return stateNames[s]
}

// ParseState returns state by its name.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if strings.EqualFold(s, name) {
			return State(i), nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrInvalidState, s)
}

type (
	// TeardownFunc stops the data flow and releases resources. It's
	// called once when the handle is closed or the data flow failed.
	TeardownFunc func() error
	// NotifyFunc is called for every state change in order of changes.
	NotifyFunc func(State)
)

// Handle manages the lifecycle of the pipeline.
type Handle struct {
	// events used to handle new events for state machine.
	events chan event
	// givec is received from only while playing.
	givec chan struct{}
	// errors reported by the data flow. Only the first one is kept.
	errors chan error
	// done is closed when the loop is over.
	done chan struct{}

	current  atomic.Int32
	err      error
	teardown TeardownFunc
	notifyc  chan State
	notified chan struct{}
}

// stateType is one of the states the loop can be in.
type stateType int

const (
	paused stateType = iota + 1
	playing
	closed
)

// state defines which channels the loop listens in particular state.
type state struct {
	stateType
	events <-chan event
	errors <-chan error
	givec  <-chan struct{}
}

func (h *Handle) paused() state {
	return state{
		stateType: paused,
		events:    h.events,
		errors:    h.errors,
	}
}

func (h *Handle) playing() state {
	return state{
		stateType: playing,
		events:    h.events,
		errors:    h.errors,
		givec:     h.givec,
	}
}

func (h *Handle) closed() state {
	return state{stateType: closed}
}

// public returns state visible to the clients.
func (s stateType) public() State {
	switch s {
	case paused:
		return Paused
	case playing:
		return Playing
	case closed:
		return Null
	}
	return Unknown
}

// NewHandle returns the handle in Paused state and starts its loop. Ready
// and Paused are notified before any other state.
func NewHandle(teardown TeardownFunc, notify NotifyFunc) *Handle {
	h := Handle{
		events:   make(chan event, 1),
		givec:    make(chan struct{}),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		teardown: teardown,
		notifyc:  make(chan State, 8),
		notified: make(chan struct{}),
	}
	go h.notifier(notify)
	h.notifyc <- Ready
	h.set(paused)
	go h.loop()
	return &h
}

// notifier fires state callbacks in order of state changes.
func (h *Handle) notifier(fn NotifyFunc) {
	defer close(h.notified)
	for s := range h.notifyc {
		if fn != nil {
			fn(s)
		}
	}
}

func (h *Handle) set(s stateType) {
	h.current.Store(int32(s.public()))
	h.notifyc <- s.public()
}

// State returns the last known state. It never blocks.
func (h *Handle) State() State {
	return State(h.current.Load())
}

// Err returns the data flow error which closed the handle.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Done returns a channel which is closed when the handle is closed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start requests the Playing state.
func (h *Handle) Start() error {
	return h.send(start{newErrs()})
}

// Stop requests the Paused state.
func (h *Handle) Stop() error {
	return h.send(stop{newErrs()})
}

// Close stops the loop and calls the teardown. Returns the teardown
// error. No state is notified after Close returns. ErrClosed is returned
// if the handle was already closed.
func (h *Handle) Close() error {
	return h.send(shutdown{newErrs()})
}

func (h *Handle) send(e event) error {
	select {
	case h.events <- e:
	case <-h.done:
		return ErrClosed
	}
	select {
	case err := <-e.feedback():
		return err
	case <-h.done:
		// loop could exit because of failure before the event was consumed
		select {
		case err := <-e.feedback():
			return err
		default:
			return ErrClosed
		}
	}
}

// Give blocks until the loop lets the source emit one buffer.
func (h *Handle) Give(ctx context.Context) error {
	select {
	case h.givec <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrClosed
	}
}

// Fail reports the data flow error. The handle is closed with the first
// reported error, others are discarded.
func (h *Handle) Fail(err error) {
	select {
	case h.errors <- err:
	default:
	}
}

// loop listens until closed state is reached.
func (h *Handle) loop() {
	s := h.paused()
	var f errs
	for s.stateType != closed {
		s, f = s.listen(h)
	}
	if err := h.teardown.call(); err != nil {
		if h.err != nil {
			h.err = fmt.Errorf("%w (teardown: %v)", h.err, err)
		} else if f != nil {
			f <- err
		}
	}
	h.set(closed)
	close(h.notifyc)
	<-h.notified
	f.dismiss()
	close(h.done)
}

// listen blocks until the state changes. Feedback of the event that
// closes the handle is returned, it's replied after the teardown.
func (s state) listen(h *Handle) (state, errs) {
	for {
		select {
		case e := <-s.events:
			next, err := s.transition(h, e)
			if next.stateType == closed {
				return next, e.feedback()
			}
			if err != nil {
				e.feedback() <- err
				continue
			}
			changed := next.stateType != s.stateType
			if changed {
				h.set(next.stateType)
			}
			errs(e.feedback()).dismiss()
			if changed {
				return next, nil
			}
		case err := <-s.errors:
			h.err = err
			return h.closed(), nil
		case <-s.givec:
		}
	}
}

// transition returns the state the event leads to. Repeated start and
// stop are no-ops.
func (s state) transition(h *Handle, e event) (state, error) {
	switch e.(type) {
	case shutdown:
		return h.closed(), nil
	case start:
		return h.playing(), nil
	case stop:
		return h.paused(), nil
	}
	return s, fmt.Errorf("%w: %v in %v", ErrInvalidState, e, s.public())
}

func (fn TeardownFunc) call() error {
	if fn == nil {
		return nil
	}
	return fn()
}
