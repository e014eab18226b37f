package mutable

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownContext is returned when mutation has no destination.
var ErrUnknownContext = errors.New("unknown mutable context")

type (
	// Pusher routes mutations to destinations of mutable contexts. It's
	// safe for concurrent use.
	Pusher struct {
		mu           sync.Mutex
		destinations map[Context]Destination
	}

	// Destination is a channel that used as source of mutations.
	Destination chan Mutations
)

// NewPusher creates new pusher.
func NewPusher() *Pusher {
	return &Pusher{
		destinations: make(map[Context]Destination),
	}
}

// NewDestination returns destination with room for a single set.
func NewDestination() Destination {
	return make(chan Mutations, 1)
}

// AddDestination adds new mapping of mutable context to destination.
func (p *Pusher) AddDestination(c Context, d Destination) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destinations[c] = d
}

// Push sends mutations to their destinations. It blocks until every
// destination accepted its set or ctx is done. Pending sets are merged,
// so a mutation is never lost while the destination is busy.
func (p *Pusher) Push(ctx context.Context, mutations ...Mutation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	byDest := make(map[Destination]Mutations)
	for _, m := range mutations {
		d, ok := p.destinations[m.Context]
		if !ok {
			return ErrUnknownContext
		}
		byDest[d] = byDest[d].Put(m)
	}
	for d, ms := range byDest {
		if err := send(ctx, d, ms); err != nil {
			return err
		}
	}
	return nil
}

func send(ctx context.Context, d Destination, ms Mutations) error {
	for {
		select {
		case d <- ms:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// merge with the pending set
		select {
		case pending := <-d:
			ms = pending.Append(ms)
		case d <- ms:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Receive returns pending mutations without blocking.
func (d Destination) Receive() Mutations {
	select {
	case ms := <-d:
		return ms
	default:
		return nil
	}
}
