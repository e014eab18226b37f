package element_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/element"
)

func runServer(t *testing.T) string {
	t.Helper()
	s, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go s.Start()
	require.True(t, s.ReadyForConnections(5*time.Second))
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func TestNATS(t *testing.T) {
	url := runServer(t)
	withURL := func(env *element.Env) {
		env.NATSURL = url
		env.QueueSize = 4
	}
	src := build(t, "natssrc name=src subject=frames num-buffers=1 ! fakesink", "src", withURL).(element.Source)
	defer src.(element.Closer).Close()
	sink := build(t, "videotestsrc ! natssink name=sink subject=frames", "sink", withURL)
	defer sink.(element.Closer).Close()

	in := videoBuffer(t, "RGB", 2, 1, []byte{1, 2, 3, 4, 5, 6})
	process(t, sink, 0, in)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.Format, b.Format)
	assert.True(t, in.Data.Info().Equal(b.Data.Info()))
	assert.Equal(t, in.Data.Tensor(0), b.Data.Tensor(0))

	// num-buffers reached
	_, err = src.Read(ctx)
	assert.Error(t, err)
}

func TestNATSMalformed(t *testing.T) {
	url := runServer(t)
	withURL := func(env *element.Env) {
		env.NATSURL = url
		env.QueueSize = 4
	}
	src := build(t, "natssrc name=src subject=frames ! fakesink", "src", withURL).(element.Source)
	defer src.(element.Closer).Close()
	sink := build(t, "videotestsrc ! natssink name=sink subject=frames", "sink", withURL)
	defer sink.(element.Closer).Close()

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Publish("frames", []byte("garbage")))
	require.NoError(t, conn.Flush())

	in := videoBuffer(t, "RGB", 2, 1, []byte{1, 2, 3, 4, 5, 6})
	process(t, sink, 0, in)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.Format, b.Format)
	assert.Equal(t, in.Data.Tensor(0), b.Data.Tensor(0))
}

func TestQuery(t *testing.T) {
	url := runServer(t)
	withURL := func(env *element.Env) {
		env.NATSURL = url
	}
	serverSrc := build(t, "tensor_query_serversrc name=qs id=7 topic=double ! tensor_query_serversink id=7", "qs", withURL).(element.Source)
	defer serverSrc.(element.Closer).Close()
	serverSink := build(t, "tensor_query_serversrc id=7 ! tensor_query_serversink name=qk id=7", "qk", withURL)
	client := build(t, "appsrc ! tensor_query_client name=c topic=double timeout=5000 ! tensor_sink", "c", withURL)
	defer client.(element.Closer).Close()

	go func() {
		b, err := serverSrc.Read(context.Background())
		if err != nil {
			return
		}
		for i, v := range b.Data.Tensor(0) {
			b.Data.Tensor(0)[i] = v * 2
		}
		_ = serverSink.(element.Processor).Process(context.Background(), 0, b, nil)
	}()

	out := process(t, client, 0, tensorBuffer(data(t, "3", "uint8", []byte{1, 2, 3})))
	require.Len(t, out.bufs, 1)
	assert.Equal(t, []byte{2, 4, 6}, out.bufs[0].Data.Tensor(0))
}
