package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/graph"
)

const tensorCaps = "other/tensor,dimension=(string)2:10:10:1,type=(string)uint8,framerate=(fraction)0/1"

func TestParseChain(t *testing.T) {
	g, err := graph.Parse("appsrc name=srcx ! " + tensorCaps + " ! tensor_sink name=sinkx")
	require.NoError(t, err)

	elements := g.Elements()
	require.Len(t, elements, 3)
	assert.Equal(t, "srcx", elements[0].Name)
	assert.Equal(t, "capsfilter0", elements[1].Name)
	assert.Equal(t, "sinkx", elements[2].Name)

	links := g.Links()
	require.Len(t, links, 2)
	assert.Equal(t, "srcx.src -> capsfilter0.sink", links[0].String())
	assert.Equal(t, "capsfilter0.src -> sinkx.sink", links[1].String())

	src, err := g.Element("srcx")
	require.NoError(t, err)
	caps := g.DownstreamCaps(src)
	assert.Equal(t, graph.MediaTensor, caps.Media)
	dim, ok := caps.Get("dimension")
	assert.True(t, ok)
	assert.Equal(t, "2:10:10:1", dim)

	sink, err := g.Element("sinkx")
	require.NoError(t, err)
	assert.Equal(t, graph.MediaTensor, g.UpstreamCaps(sink).Media)
}

func TestParseBranches(t *testing.T) {
	t.Run("tee", func(t *testing.T) {
		g, err := graph.Parse("appsrc name=srcx ! " + tensorCaps + " ! tee name=t " +
			"t. ! queue ! tensor_sink " +
			"t. ! queue ! valve name=valvex ! tensor_sink name=sinkx")
		require.NoError(t, err)
		tee, err := g.Element("t")
		require.NoError(t, err)
		assert.Equal(t, []string{"src_0", "src_1"}, tee.SrcPads())
		_, err = g.Element("tensor_sink0")
		assert.NoError(t, err)
		_, err = g.Element("queue1")
		assert.NoError(t, err)
		assert.Len(t, g.Sinks(), 2)
		assert.Len(t, g.Sources(), 1)
	})
	t.Run("output selector", func(t *testing.T) {
		g, err := graph.Parse("appsrc name=srcx ! " + tensorCaps + " ! output-selector name=outs " +
			"outs.src_0 ! tensor_sink name=sinkx async=false " +
			"outs.src_1 ! tensor_sink async=false")
		require.NoError(t, err)
		outs, err := g.Element("outs")
		require.NoError(t, err)
		assert.Equal(t, graph.ClassSelector, outs.Kind.Class)
		assert.Equal(t, []string{"src_0", "src_1"}, outs.SrcPads())
	})
	t.Run("forward reference", func(t *testing.T) {
		g, err := graph.Parse("videotestsrc ! ins.sink_0 videotestsrc ! ins.sink_1 input-selector name=ins ! fakesink")
		require.NoError(t, err)
		ins, err := g.Element("ins")
		require.NoError(t, err)
		assert.Equal(t, []string{"sink_0", "sink_1"}, ins.SinkPads())
		sorted := g.Sorted()
		assert.Equal(t, "fakesink0", sorted[len(sorted)-1].Name)
	})
	t.Run("quoted values", func(t *testing.T) {
		g, err := graph.Parse(`appsrc name=srcx caps="video/x-raw, format=RGB, width=4, height=2" ! tensor_converter ! tensor_sink name=sinkx`)
		require.NoError(t, err)
		src, err := g.Element("srcx")
		require.NoError(t, err)
		caps, err := src.Caps()
		require.NoError(t, err)
		assert.Equal(t, graph.MediaVideo, caps.Media)
		w, ok := caps.Int("width")
		assert.True(t, ok)
		assert.Equal(t, 4, w)
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		desc string
		err  error
	}{
		{"", graph.ErrEmptyDescription},
		{"   ", graph.ErrEmptyDescription},
		{"invalid-element ! tensor_sink", graph.ErrUnknownElement},
		{"appsrc ! invalidelement ! tensor_sink", graph.ErrUnknownElement},
		{"appsrc ! ! tensor_sink", graph.ErrSyntax},
		{"! appsrc ! tensor_sink", graph.ErrSyntax},
		{"appsrc ! tensor_sink !", graph.ErrSyntax},
		{"appsrc name=a ! tensor_sink name=a", graph.ErrSyntax},
		{"appsrc ! tensor_sink unknown-prop=1", graph.ErrSyntax},
		{"appsrc caps=\"video/x-raw ! tensor_sink", graph.ErrSyntax},
		{"appsrc ! missing.src_0 ! tensor_sink", graph.ErrSyntax},
		{"appsrc", graph.ErrSyntax},
		{"tensor_sink ! tensor_sink", graph.ErrSyntax},
		{"appsrc ! appsrc", graph.ErrSyntax},
		{"appsrc name=a ! tee name=t ! queue ! a.", graph.ErrSyntax},
		{"appsrc ! identity name=i ! join name=j ! i.", graph.ErrSyntax},
		{"appsrc ! join name=j ! identity ! j.", graph.ErrSyntax},
	}
	for _, test := range tests {
		_, err := graph.Parse(test.desc)
		assert.ErrorIs(t, err, test.err, test.desc)
	}
}

func TestElementLookup(t *testing.T) {
	g, err := graph.Parse("appsrc name=srcx ! tensor_sink name=sinkx")
	require.NoError(t, err)
	_, err = g.Element("")
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
	_, err = g.Element("nope")
	assert.ErrorIs(t, err, graph.ErrNoSuchElement)
}

func TestParseCaps(t *testing.T) {
	caps, err := graph.ParseCaps("video/x-raw,format=RGB,width=320,height=240,framerate=(fraction)30/1")
	require.NoError(t, err)
	assert.Equal(t, graph.MediaVideo, caps.Media)
	f, _ := caps.Get("format")
	assert.Equal(t, "RGB", f)
	num, den, ok := caps.Fraction("framerate")
	assert.True(t, ok)
	assert.Equal(t, 30, num)
	assert.Equal(t, 1, den)
	assert.Equal(t, "video/x-raw,format=RGB,width=320,height=240,framerate=(fraction)30/1", caps.String())

	merged := caps.Merge(graph.Caps{Media: graph.MediaVideo, Fields: []graph.Field{{Key: "width", Value: "10"}, {Key: "pixel-aspect-ratio", Value: "1/1"}}})
	w, _ := merged.Int("width")
	assert.Equal(t, 320, w)
	_, ok = merged.Get("pixel-aspect-ratio")
	assert.True(t, ok)

	_, err = graph.ParseCaps("notmedia,format=RGB")
	assert.ErrorIs(t, err, graph.ErrSyntax)
}

func TestCatalog(t *testing.T) {
	for _, kind := range []string{"tensor_converter", "tensor_filter", "tensor_transform", "tensor_sink", "join", "appsrc", "valve", "output-selector"} {
		k, ok := graph.LookupKind(kind)
		assert.True(t, ok, kind)
		assert.True(t, k.HasProperty("name"), kind)
	}
	_, ok := graph.LookupKind("amcsrc")
	assert.False(t, ok)

	ok, err := graph.IsElementAvailable("tensor_aggregator")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = graph.IsElementAvailable("pngdec")
	assert.NoError(t, err)
	assert.False(t, ok)
	_, err = graph.IsElementAvailable("")
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)

	kinds := graph.Kinds()
	for i := 1; i < len(kinds); i++ {
		assert.Less(t, kinds[i-1].Name, kinds[i].Name)
	}
}
