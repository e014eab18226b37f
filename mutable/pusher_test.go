package mutable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nnsuite/nnpipe/mutable"
)

func TestPusher(t *testing.T) {
	p := mutable.NewPusher()
	valve := &threshold{Context: mutable.Mutable()}
	d := mutable.NewDestination()
	p.AddDestination(valve.Context, d)

	assert.NoError(t, p.Push(context.Background(), valve.Raise(1)))
	// destination is full, second push is merged with pending one
	assert.NoError(t, p.Push(context.Background(), valve.Raise(2)))

	ms := d.Receive()
	assert.NoError(t, ms.ApplyTo(valve.Context))
	assert.Equal(t, 3, valve.value)
	assert.Len(t, d.Receive(), 0)

	unknown := &threshold{Context: mutable.Mutable()}
	assert.ErrorIs(t, p.Push(context.Background(), unknown.Raise(1)), mutable.ErrUnknownContext)
}

func TestPusherCanceled(t *testing.T) {
	p := mutable.NewPusher()
	th := &threshold{Context: mutable.Mutable()}
	p.AddDestination(th.Context, make(mutable.Destination))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Push(ctx, th.Raise(1)), context.Canceled)
}
