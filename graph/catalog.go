package graph

import (
	"fmt"
	"sort"
)

// Class groups element kinds by their role in a graph.
type Class int

// Element classes.
const (
	ClassSource Class = iota + 1
	ClassSink
	ClassTransform
	ClassFilter
	ClassSelector
	ClassValve
	ClassTee
	ClassQueue
	ClassSurfaceSink
	ClassNetworkSource
	ClassNetworkSink
	ClassNetworkTransform
)

var classNames = map[Class]string{
	ClassSource:           "source",
	ClassSink:             "sink",
	ClassTransform:        "transform",
	ClassFilter:           "filter",
	ClassSelector:         "selector",
	ClassValve:            "valve",
	ClassTee:              "tee",
	ClassQueue:            "queue",
	ClassSurfaceSink:      "surface-sink",
	ClassNetworkSource:    "network-source",
	ClassNetworkSink:      "network-sink",
	ClassNetworkTransform: "network-transform",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "unknown"
}

// IsSource returns true if elements of the class have no inputs.
func (c Class) IsSource() bool {
	return c == ClassSource || c == ClassNetworkSource
}

// IsSink returns true if elements of the class have no outputs.
func (c Class) IsSink() bool {
	return c == ClassSink || c == ClassSurfaceSink || c == ClassNetworkSink
}

// PadMode defines how many pads of one direction an element has.
type PadMode int

// Pad modes.
const (
	// NoPads means the element has no pads in this direction.
	NoPads PadMode = iota
	// AlwaysPad means the element has exactly one pad.
	AlwaysPad
	// RequestPads means pads are created on demand as "<prefix>_N".
	RequestPads
)

// Kind is a catalog entry for a kind of element.
type Kind struct {
	Name        string
	Class       Class
	Description string
	Properties  []string
	Inputs      PadMode
	Outputs     PadMode
	// Transparent kinds let caps negotiation look through them.
	Transparent bool
}

// HasProperty returns true if kind accepts property key.
func (k *Kind) HasProperty(key string) bool {
	for _, p := range k.Properties {
		if p == key {
			return true
		}
	}
	return false
}

var (
	baseProps   = []string{"name", "silent", "qos"}
	sourceProps = []string{"num-buffers", "is-live", "do-timestamp", "blocksize"}
	sinkProps   = []string{"async", "sync", "max-lateness", "enable-last-sample"}
)

func props(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func source(name, desc string, p ...string) *Kind {
	return &Kind{Name: name, Class: ClassSource, Description: desc, Properties: props(baseProps, sourceProps, p), Outputs: AlwaysPad}
}

func sink(name string, class Class, desc string, p ...string) *Kind {
	return &Kind{Name: name, Class: class, Description: desc, Properties: props(baseProps, sinkProps, p), Inputs: AlwaysPad}
}

func transform(name string, class Class, desc string, p ...string) *Kind {
	return &Kind{Name: name, Class: class, Description: desc, Properties: props(baseProps, p), Inputs: AlwaysPad, Outputs: AlwaysPad}
}

func passthrough(name string, class Class, desc string, p ...string) *Kind {
	k := transform(name, class, desc, p...)
	k.Transparent = true
	return k
}

// catalog holds every element kind a graph may use.
var catalog = func() map[string]*Kind {
	kinds := []*Kind{
		source("appsrc", "pushes buffers provided by the application", "caps", "max-buffers", "max-bytes", "format", "block", "emit-signals"),
		source("videotestsrc", "generates synthetic video frames", "pattern", "framerate", "foreground-color", "background-color"),
		source("audiotestsrc", "generates sine audio", "samplesperbuffer", "freq", "volume", "wave"),
		source("wavsrc", "reads PCM samples from a wav file", "location", "samplesperbuffer"),
		{
			Name: "natssrc", Class: ClassNetworkSource, Outputs: AlwaysPad,
			Description: "receives tensors published to a NATS subject",
			Properties:  props(baseProps, sourceProps, []string{"url", "subject", "sub-topic", "timeout"}),
		},
		{
			Name: "tensor_query_serversrc", Class: ClassNetworkSource, Outputs: AlwaysPad,
			Description: "receives tensor query requests",
			Properties:  props(baseProps, sourceProps, []string{"url", "host", "port", "topic", "id", "connect-type"}),
		},
		transform("tensor_converter", ClassTransform, "converts media into tensors", "frames-per-tensor", "input-dim", "input-type", "set-timestamp"),
		transform("tensor_transform", ClassTransform, "applies element-wise operations to tensors", "mode", "option", "acceleration", "apply"),
		transform("tensor_filter", ClassFilter, "invokes a neural network backend",
			"framework", "model", "input", "inputtype", "inputname", "inputlayout", "output", "outputtype", "outputname",
			"outputlayout", "custom", "accelerator", "latency", "throughput", "is-updatable", "sub-plugins", "input-combination", "output-combination"),
		transform("tensor_aggregator", ClassTransform, "aggregates frames into windows", "frames-in", "frames-out", "frames-flush", "frames-dim", "concat"),
		transform("tensor_decoder", ClassTransform, "converts tensors into media", "mode", "option1", "option2", "option3"),
		passthrough("videoscale", ClassTransform, "scales video frames", "method", "add-borders"),
		passthrough("videoconvert", ClassTransform, "converts video pixel formats", "dither", "n-threads"),
		passthrough("capsfilter", ClassQueue, "restricts the media format", "caps"),
		passthrough("identity", ClassQueue, "passes buffers unchanged", "sleep-time", "sync"),
		passthrough("queue", ClassQueue, "decouples threads with a bounded buffer", "max-size-buffers", "max-size-bytes", "max-size-time", "leaky"),
		{
			Name: "join", Class: ClassQueue, Inputs: RequestPads, Outputs: AlwaysPad,
			Description: "forwards buffers from any input",
			Properties:  baseProps,
		},
		{
			Name: "tee", Class: ClassTee, Inputs: AlwaysPad, Outputs: RequestPads, Transparent: true,
			Description: "copies buffers to every output",
			Properties:  props(baseProps, []string{"allow-not-linked", "pull-mode"}),
		},
		{
			Name: "output-selector", Class: ClassSelector, Inputs: AlwaysPad, Outputs: RequestPads,
			Description: "routes buffers to the active output",
			Properties:  props(baseProps, []string{"active-pad", "pad-negotiation-mode", "resend-latest"}),
		},
		{
			Name: "input-selector", Class: ClassSelector, Inputs: RequestPads, Outputs: AlwaysPad,
			Description: "forwards buffers of the active input",
			Properties:  props(baseProps, []string{"active-pad", "sync-mode", "sync-streams", "cache-buffers"}),
		},
		passthrough("valve", ClassValve, "drops buffers while closed", "drop", "drop-mode"),
		sink("tensor_sink", ClassSink, "delivers tensors to registered callbacks", "emit-signal", "signal-rate"),
		sink("fakesink", ClassSink, "discards buffers", "dump", "signal-handoffs"),
		sink("wavsink", ClassSink, "writes PCM samples into a wav file", "location", "bit-depth"),
		sink("glimagesink", ClassSurfaceSink, "renders video frames to a surface", "force-aspect-ratio", "rotate-method"),
		sink("surfacesink", ClassSurfaceSink, "renders video frames to a surface", "force-aspect-ratio"),
		sink("natssink", ClassNetworkSink, "publishes tensors to a NATS subject", "url", "subject", "pub-topic"),
		sink("tensor_query_serversink", ClassNetworkSink, "replies to tensor query requests", "id", "connect-type", "timeout"),
		transform("tensor_query_client", ClassNetworkTransform, "offloads tensors to a query server",
			"url", "host", "port", "dest-host", "dest-port", "topic", "timeout", "connect-type", "max-request"),
	}
	m := make(map[string]*Kind, len(kinds))
	for _, k := range kinds {
		m[k.Name] = k
	}
	return m
}()

// LookupKind returns catalog entry for the element kind.
func LookupKind(name string) (*Kind, bool) {
	k, ok := catalog[name]
	return k, ok
}

// IsElementAvailable returns true if the kind is known to the catalog.
func IsElementAvailable(kind string) (bool, error) {
	if kind == "" {
		return false, fmt.Errorf("%w: element kind", ErrInvalidArgument)
	}
	_, ok := catalog[kind]
	return ok, nil
}

// Kinds returns all catalog entries sorted by name.
func Kinds() []*Kind {
	kinds := make([]*Kind, 0, len(catalog))
	for _, k := range catalog {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i].Name < kinds[j].Name
	})
	return kinds
}
