package mock_test

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/mock"
	"github.com/nnsuite/nnpipe/tensor"
)

func TestListener(t *testing.T) {
	info, err := tensor.ParseInfo("2", "uint16", "")
	require.NoError(t, err)
	l := &mock.Listener{Keep: true, Notify: make(chan struct{}, 2)}
	l.OnData(info.Allocate())
	l.OnData(info.Allocate())
	<-l.Notify
	<-l.Notify

	count, size := l.Count()
	assert.Equal(t, 2, count)
	assert.Equal(t, 8, size)
	assert.Len(t, l.Data(), 2)
	assert.Equal(t, 2, l.WaitCount(3, 10*time.Millisecond))
}

func TestSurface(t *testing.T) {
	s := &mock.Surface{}
	assert.True(t, s.Ready())
	require.NoError(t, s.Render(image.NewRGBA(image.Rect(0, 0, 2, 3))))
	count, pixels := s.Count()
	assert.Equal(t, 1, count)
	assert.Equal(t, 6, pixels)
	assert.Equal(t, 2, s.Last().Bounds().Dx())

	s.ErrorOnCall = errors.New("mock error")
	assert.Error(t, s.Render(image.NewRGBA(image.Rect(0, 0, 1, 1))))
	s.NotReady = true
	assert.False(t, s.Ready())
}
