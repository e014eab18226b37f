package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nnsuite/nnpipe/element"
	"github.com/nnsuite/nnpipe/filter"
	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/internal/runtime"
	"github.com/nnsuite/nnpipe/metric"
	"github.com/nnsuite/nnpipe/tensor"
)

var errMock = errors.New("mock error")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// open gate gives every request.
type open struct{}

func (open) Give(ctx context.Context) error {
	return ctx.Err()
}

// collector records delivered tensors per sink.
type collector struct {
	sync.Mutex
	data map[string][]*tensor.Data
	got  chan struct{}
}

func newCollector() *collector {
	return &collector{data: make(map[string][]*tensor.Data), got: make(chan struct{}, 64)}
}

func (c *collector) deliver(sink string) func(*tensor.Data) {
	return func(d *tensor.Data) {
		c.Lock()
		c.data[sink] = append(c.data[sink], d)
		c.Unlock()
		c.got <- struct{}{}
	}
}

func (c *collector) get(sink string) []*tensor.Data {
	c.Lock()
	defer c.Unlock()
	return append([]*tensor.Data(nil), c.data[sink]...)
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d deliveries", i, n)
		}
	}
}

func newRuntime(t *testing.T, desc string, c *collector, m *metric.Registry) *runtime.Runtime {
	t.Helper()
	g, err := graph.Parse(desc)
	require.NoError(t, err)
	r, err := runtime.New(g, runtime.Options{
		Limits:     tensor.DefaultLimits,
		QueueSize:  8,
		LinkBuffer: 2,
		Metric:     m,
		Deliver:    c.deliver,
	})
	require.NoError(t, err)
	return r
}

func uint8Data(t *testing.T, values ...byte) *tensor.Data {
	t.Helper()
	info, err := tensor.ParseInfo("4", "uint8", "")
	require.NoError(t, err)
	d, err := tensor.NewData(info, values)
	require.NoError(t, err)
	return d
}

func appsrc(t *testing.T, r *runtime.Runtime, name string) *element.AppSrc {
	t.Helper()
	el, ok := r.Element(name)
	require.True(t, ok)
	src, ok := el.(*element.AppSrc)
	require.True(t, ok)
	return src
}

func TestRun(t *testing.T) {
	c := newCollector()
	m := metric.New("run")
	r := newRuntime(t, "appsrc name=src ! queue ! tensor_sink name=sink", c, m)
	require.NoError(t, r.Run(context.Background(), open{}, func(err error) {
		t.Errorf("unexpected failure: %v", err)
	}))

	src := appsrc(t, r, "src")
	for i := byte(0); i < 3; i++ {
		require.NoError(t, src.Push(uint8Data(t, i, i, i, i), r.Epoch()))
	}
	c.wait(t, 3)
	got := c.get("sink")
	require.Len(t, got, 3)
	for i, d := range got {
		assert.Equal(t, []byte{byte(i), byte(i), byte(i), byte(i)}, d.Tensor(0))
	}
	assert.Equal(t, float64(3), m.Get("sink")[metric.BufferCounter])
	assert.Equal(t, float64(12), m.Get("src")[metric.ByteCounter])
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestEndOfStream(t *testing.T) {
	c := newCollector()
	r := newRuntime(t, "videotestsrc num-buffers=3 ! video/x-raw,format=RGB,width=4,height=2 ! tensor_converter ! tee name=t t. ! tensor_sink name=a t. ! tensor_sink name=b", c, nil)
	require.NoError(t, r.Run(context.Background(), open{}, nil))
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("end of stream wasn't reached")
	}
	for _, sink := range []string{"a", "b"} {
		got := c.get(sink)
		require.Len(t, got, 3)
		assert.Equal(t, "[uint8] 3:4:2:1", got[0].Info().String())
	}
	assert.NoError(t, r.Close())
}

func TestFailure(t *testing.T) {
	info, err := tensor.ParseInfo("4", "uint8", "")
	require.NoError(t, err)
	require.NoError(t, filter.RegisterCustomEasy("runtime-failing", info, info, func(*tensor.Data) (*tensor.Data, error) {
		return nil, errMock
	}))
	defer filter.UnregisterCustomEasy("runtime-failing")

	c := newCollector()
	r := newRuntime(t, "appsrc name=src ! tensor_filter framework=custom-easy model=runtime-failing ! tensor_sink", c, nil)
	failed := make(chan error, 1)
	require.NoError(t, r.Run(context.Background(), open{}, func(err error) {
		failed <- err
	}))
	require.NoError(t, appsrc(t, r, "src").Push(uint8Data(t, 1, 2, 3, 4), r.Epoch()))
	select {
	case err := <-failed:
		assert.ErrorIs(t, err, errMock)
	case <-time.After(2 * time.Second):
		t.Fatal("failure wasn't reported")
	}
	assert.NoError(t, r.Close())
}

// held gate gives requests only after release.
type held struct {
	release chan struct{}
}

func (g held) Give(ctx context.Context) error {
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestFlush(t *testing.T) {
	c := newCollector()
	m := metric.New("flush")
	r := newRuntime(t, "appsrc name=src ! tensor_sink name=sink", c, m)
	gate := held{release: make(chan struct{})}
	require.NoError(t, r.Run(context.Background(), gate, nil))

	src := appsrc(t, r, "src")
	require.NoError(t, src.Push(uint8Data(t, 1, 1, 1, 1), r.Epoch()))
	require.NoError(t, src.Push(uint8Data(t, 2, 2, 2, 2), r.Epoch()))
	// first buffer is held at the gate, second is queued
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Flush(context.Background(), false))
	assert.Equal(t, uint64(2), r.Epoch())

	require.NoError(t, src.Push(uint8Data(t, 3, 3, 3, 3), r.Epoch()))
	close(gate.release)
	c.wait(t, 1)
	got := c.get("sink")
	require.Len(t, got, 1)
	assert.Equal(t, []byte{3, 3, 3, 3}, got[0].Tensor(0))
	assert.Equal(t, float64(1), m.Get("src")[metric.DropCounter])
	assert.NoError(t, r.Close())
}

func TestConstructionFailure(t *testing.T) {
	g, err := graph.Parse("appsrc ! tensor_filter framework=tensorflow-lite model=model.tflite ! tensor_sink")
	require.NoError(t, err)
	_, err = runtime.New(g, runtime.Options{})
	assert.ErrorIs(t, err, filter.ErrNotAvailable)
}
