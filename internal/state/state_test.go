package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nnsuite/nnpipe/internal/state"
)

var errMock = errors.New("mock error")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type notifications struct {
	sync.Mutex
	states []state.State
}

func (n *notifications) fn(s state.State) {
	n.Lock()
	defer n.Unlock()
	n.states = append(n.states, s)
}

func (n *notifications) get() []state.State {
	n.Lock()
	defer n.Unlock()
	return append([]state.State(nil), n.states...)
}

func TestStates(t *testing.T) {
	var n notifications
	var teardowns int
	h := state.NewHandle(func() error {
		teardowns++
		return nil
	}, n.fn)
	assert.Equal(t, state.Paused, h.State())

	assert.NoError(t, h.Stop())
	assert.Equal(t, state.Paused, h.State())
	assert.NoError(t, h.Start())
	assert.Equal(t, state.Playing, h.State())
	assert.NoError(t, h.Start())
	assert.Equal(t, state.Playing, h.State())
	assert.NoError(t, h.Stop())
	assert.Equal(t, state.Paused, h.State())

	assert.NoError(t, h.Close())
	assert.Equal(t, state.Null, h.State())
	assert.Equal(t, 1, teardowns)
	assert.Equal(t, []state.State{state.Ready, state.Paused, state.Playing, state.Paused, state.Null}, n.get())

	assert.ErrorIs(t, h.Close(), state.ErrClosed)
	assert.ErrorIs(t, h.Start(), state.ErrClosed)
	assert.Equal(t, 1, teardowns)
	assert.NoError(t, h.Err())
}

func TestGive(t *testing.T) {
	h := state.NewHandle(nil, nil)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Give(ctx), context.DeadlineExceeded, "paused handle must hold sources")

	require.NoError(t, h.Start())
	for i := 0; i < 3; i++ {
		assert.NoError(t, h.Give(context.Background()))
	}
}

func TestGiveClosed(t *testing.T) {
	h := state.NewHandle(nil, nil)
	require.NoError(t, h.Start())

	given := make(chan error)
	go func() {
		h.Stop()
		given <- h.Give(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, h.Close())
	assert.ErrorIs(t, <-given, state.ErrClosed)
}

func TestFail(t *testing.T) {
	var n notifications
	h := state.NewHandle(func() error {
		return nil
	}, n.fn)
	require.NoError(t, h.Start())

	h.Fail(errMock)
	h.Fail(errors.New("discarded"))
	<-h.Done()

	assert.Equal(t, state.Null, h.State())
	assert.ErrorIs(t, h.Err(), errMock)
	assert.ErrorIs(t, h.Stop(), state.ErrClosed)
	assert.ErrorIs(t, h.Close(), state.ErrClosed)
	assert.Equal(t, state.Null, n.get()[len(n.get())-1])
}

func TestTeardownError(t *testing.T) {
	h := state.NewHandle(func() error {
		return errMock
	}, nil)
	assert.ErrorIs(t, h.Close(), errMock)
}

func TestParseState(t *testing.T) {
	for _, s := range []state.State{state.Unknown, state.Null, state.Ready, state.Paused, state.Playing} {
		parsed, err := state.ParseState(s.String())
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	s, err := state.ParseState("playing")
	assert.NoError(t, err)
	assert.Equal(t, state.Playing, s)

	_, err = state.ParseState("running")
	assert.ErrorIs(t, err, state.ErrInvalidState)
	assert.Equal(t, "UNKNOWN", state.State(42).String())
}
