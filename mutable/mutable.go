// Package mutable delivers changes to elements running on their own
// goroutines. An element embeds a Context and exposes methods returning
// Mutations. The pipeline pushes mutations to the element's destination
// and the element goroutine applies them before it handles the next
// buffer.
package mutable

import (
	"crypto/rand"
)

// zero value for context is immutable.
var immutable = Context{}

type (
	// Context can be embedded to make structure behaviour mutable.
	Context [16]byte

	// Mutation is mutator function associated with a certain mutable context.
	Mutation struct {
		Context
		mutator MutatorFunc
	}

	// Mutations is a set of Mutations mapped their Mutables.
	Mutations map[Context][]MutatorFunc

	// MutatorFunc mutates the object.
	MutatorFunc func() error
)

// Mutable returns new mutable context.
func Mutable() Context {
	var id [16]byte
	rand.Read(id[:])
	return id
}

// Immutable returns immutable context.
func Immutable() Context {
	return immutable
}

// Mutate associates provided mutator with mutable and return mutation.
func (c Context) Mutate(m MutatorFunc) Mutation {
	if c == immutable {
		panic("mutate immutable")
	}
	return Mutation{
		Context: c,
		mutator: m,
	}
}

// IsMutable returns true if object is mutable.
func (c Context) IsMutable() bool {
	return c != immutable
}

// Apply mutator function.
func (m Mutation) Apply() error {
	return m.mutator()
}

// Put mutation to the set of Mutations.
func (ms Mutations) Put(m Mutation) Mutations {
	if m.Context == immutable {
		return ms
	}
	if ms == nil {
		return map[Context][]MutatorFunc{m.Context: {m.mutator}}
	}
	ms[m.Context] = append(ms[m.Context], m.mutator)
	return ms
}

// ApplyTo consumes Mutations defined for consumer in this set. All
// mutators are applied, the first error is returned.
func (ms Mutations) ApplyTo(id Context) error {
	if ms == nil || id == immutable {
		return nil
	}
	fns, ok := ms[id]
	if !ok {
		return nil
	}
	delete(ms, id)
	var first error
	for _, fn := range fns {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Append mutations of source to the set.
func (ms Mutations) Append(source Mutations) Mutations {
	if ms == nil {
		ms = make(map[Context][]MutatorFunc)
	}
	for id, fns := range source {
		ms[id] = append(ms[id], fns...)
	}
	return ms
}
