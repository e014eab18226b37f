// Package graph parses pipeline descriptions into validated element graphs.
//
// A description is a chain of elements separated by "!":
//
//	appsrc name=srcx ! other/tensor,dimension=(string)2:10:10:1,type=(string)uint8 ! tensor_sink name=sinkx
//
// Caps between elements become implicit capsfilter elements. Named
// elements are referenced as "name.pad" or "name." to start branches:
//
//	appsrc ! tee name=t t. ! queue ! tensor_sink t. ! queue ! fakesink
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSyntax is returned when description is malformed.
	ErrSyntax = errors.New("graph syntax error")
	// ErrUnknownElement is returned when description uses a kind missing in the catalog.
	ErrUnknownElement = errors.New("unknown element")
	// ErrEmptyDescription is returned for empty descriptions.
	ErrEmptyDescription = errors.New("empty description")
	// ErrNoSuchElement is returned when element is not found.
	ErrNoSuchElement = errors.New("no such element")
	// ErrInvalidArgument is returned when required argument is empty.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Property is a key-value pair of element configuration.
type Property struct {
	Key   string
	Value string
}

// Properties are ordered element properties.
type Properties []Property

// Get returns the last value set for key.
func (p Properties) Get(key string) (string, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Key == key {
			return p[i].Value, true
		}
	}
	return "", false
}

// String returns property value or default.
func (p Properties) String(key, def string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return def
}

// Int returns integer property value or default.
func (p Properties) Int(key string, def int) (int, error) {
	v, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", key, err)
	}
	return i, nil
}

// Bool returns boolean property value or default.
func (p Properties) Bool(key string, def bool) (bool, error) {
	v, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("property %s: %w", key, err)
	}
	return b, nil
}

func (p *Properties) set(key, value string) {
	*p = append(*p, Property{Key: key, Value: value})
}

// Element is a node of the graph.
type Element struct {
	Name       string
	Kind       *Kind
	Properties Properties
	// Inputs and Outputs are ordered by pad creation.
	Inputs  []*Link
	Outputs []*Link

	srcPads  int
	sinkPads int
}

// Link connects output pad of one element with input pad of another.
type Link struct {
	From    *Element
	FromPad string
	To      *Element
	ToPad   string
}

func (l *Link) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", l.From.Name, l.FromPad, l.To.Name, l.ToPad)
}

// SrcPads returns names of output pads in declaration order.
func (e *Element) SrcPads() []string {
	pads := make([]string, len(e.Outputs))
	for i, l := range e.Outputs {
		pads[i] = l.FromPad
	}
	return pads
}

// SinkPads returns names of input pads in declaration order.
func (e *Element) SinkPads() []string {
	pads := make([]string, len(e.Inputs))
	for i, l := range e.Inputs {
		pads[i] = l.ToPad
	}
	return pads
}

// Caps returns caps property of the element, if set.
func (e *Element) Caps() (Caps, error) {
	v, ok := e.Properties.Get("caps")
	if !ok || v == "" {
		return Caps{}, nil
	}
	return ParseCaps(v)
}

// Graph is a validated set of elements and links.
type Graph struct {
	elements []*Element
	byName   map[string]*Element
	links    []*Link
	order    []*Element
}

// Elements returns elements in declaration order.
func (g *Graph) Elements() []*Element {
	return append([]*Element(nil), g.elements...)
}

// Sorted returns elements in topological order, sources first.
func (g *Graph) Sorted() []*Element {
	return append([]*Element(nil), g.order...)
}

// Links returns all links.
func (g *Graph) Links() []*Link {
	return append([]*Link(nil), g.links...)
}

// Element returns element by name.
func (g *Graph) Element(name string) (*Element, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: element name", ErrInvalidArgument)
	}
	e, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchElement, name)
	}
	return e, nil
}

// Sources returns source elements in declaration order.
func (g *Graph) Sources() []*Element {
	return g.filter(func(e *Element) bool { return e.Kind.Class.IsSource() })
}

// Sinks returns sink elements in declaration order.
func (g *Graph) Sinks() []*Element {
	return g.filter(func(e *Element) bool { return e.Kind.Class.IsSink() })
}

func (g *Graph) filter(fn func(*Element) bool) []*Element {
	var out []*Element
	for _, e := range g.elements {
		if fn(e) {
			out = append(out, e)
		}
	}
	return out
}

// DownstreamCaps merges caps found downstream of the element until the
// first element that isn't transparent. Values closer to the element win.
func (g *Graph) DownstreamCaps(e *Element) Caps {
	var c Caps
	for len(e.Outputs) == 1 {
		e = e.Outputs[0].To
		if !e.Kind.Transparent {
			break
		}
		if e.Kind.Name == "capsfilter" {
			if caps, err := e.Caps(); err == nil {
				c = c.Merge(caps)
			}
		}
	}
	return c
}

// UpstreamCaps merges caps found upstream of the element until the first
// element that isn't transparent.
func (g *Graph) UpstreamCaps(e *Element) Caps {
	var c Caps
	for len(e.Inputs) == 1 {
		e = e.Inputs[0].From
		if caps, err := e.Caps(); err == nil && !caps.IsEmpty() {
			c = c.Merge(caps)
		}
		if !e.Kind.Transparent {
			break
		}
	}
	return c
}

func (g *Graph) String() string {
	s := make([]string, 0, len(g.links))
	for _, l := range g.links {
		s = append(s, l.String())
	}
	return strings.Join(s, "; ")
}
