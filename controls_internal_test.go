package nnpipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/element"
	"github.com/nnsuite/nnpipe/mock"
	"github.com/nnsuite/nnpipe/tensor"
)

func TestSurfaceRelease(t *testing.T) {
	p, err := New(`appsrc name=srcx caps="video/x-raw,format=RGB,width=4,height=2" ! glimagesink name=vsink`)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Start())

	sink, err := lookup[*element.SurfaceSink](p, "vsink", "surface sink")
	require.NoError(t, err)

	s := &mock.Surface{}
	require.NoError(t, p.SetSurface("vsink", s))
	info, err := tensor.ParseInfo("3:4:2:1", "uint8", "")
	require.NoError(t, err)
	require.NoError(t, p.InputData("srcx", info.Allocate()))
	deadline := time.Now().Add(2 * time.Second)
	for c, _ := s.Count(); c < 1 && time.Now().Before(deadline); c, _ = s.Count() {
		time.Sleep(time.Millisecond)
	}
	c, _ := s.Count()
	require.Equal(t, 1, c)

	// no frames flow, surface is released right away
	require.NoError(t, p.SetSurface("vsink", nil))
	assert.Nil(t, sink.Surface())

	require.NoError(t, p.SetSurface("vsink", s))
	assert.Same(t, s, sink.Surface())
	require.NoError(t, p.Close())
	assert.Nil(t, sink.Surface())
}
