package graph

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokenWord tokenType = iota
	tokenLink
)

type token struct {
	typ  tokenType
	text string
	pos  int
}

// endpoint is one side of a link before names are resolved.
type endpoint struct {
	elem *Element
	ref  string
	pad  string
}

type pendingLink struct {
	from, to endpoint
	pos      int
}

type parser struct {
	elements []*Element
	links    []pendingLink
	// prev is the endpoint the next "!" links from.
	prev *endpoint
	// last is the element which receives properties.
	last    *Element
	linking bool
}

// Parse builds a graph from the description. Elements are only described,
// nothing is instantiated.
func Parse(description string) (*Graph, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrEmptyDescription
	}
	tokens, err := lex(description)
	if err != nil {
		return nil, err
	}
	var p parser
	for _, t := range tokens {
		if err := p.next(t); err != nil {
			return nil, err
		}
	}
	if p.linking {
		return nil, fmt.Errorf("%w: description ends with a link", ErrSyntax)
	}
	return p.build()
}

func lex(s string) ([]token, error) {
	var (
		tokens []token
		word   strings.Builder
		quote  rune
		start  = -1
	)
	flush := func() {
		if start >= 0 {
			tokens = append(tokens, token{typ: tokenWord, text: word.String(), pos: start})
			word.Reset()
			start = -1
		}
	}
	for i, r := range s {
		switch {
		case quote != 0:
			word.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			if start < 0 {
				start = i
			}
			quote = r
			word.WriteRune(r)
		case r == '!':
			flush()
			tokens = append(tokens, token{typ: tokenLink, text: "!", pos: i})
		case unicode.IsSpace(r):
			flush()
		default:
			if start < 0 {
				start = i
			}
			word.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote at %d", ErrSyntax, start)
	}
	flush()
	// caps may be written with spaces after commas
	merged := tokens[:0]
	for _, t := range tokens {
		if n := len(merged); n > 0 && t.typ == tokenWord && merged[n-1].typ == tokenWord && strings.HasSuffix(merged[n-1].text, ",") {
			merged[n-1].text += t.text
			continue
		}
		merged = append(merged, t)
	}
	return merged, nil
}

func (p *parser) next(t token) error {
	if t.typ == tokenLink {
		if p.prev == nil || p.linking {
			return fmt.Errorf("%w: unexpected \"!\" at %d", ErrSyntax, t.pos)
		}
		p.linking = true
		return nil
	}
	w := t.text
	switch {
	case isCaps(w):
		caps, err := ParseCaps(unquote(w))
		if err != nil {
			return fmt.Errorf("%w at %d", err, t.pos)
		}
		kind, _ := LookupKind("capsfilter")
		e := &Element{Kind: kind, Properties: Properties{{Key: "caps", Value: caps.String()}}}
		p.add(e, t.pos)
		p.last = nil
	case strings.Contains(w, "="):
		key, value, _ := strings.Cut(w, "=")
		if p.last == nil || p.linking {
			return fmt.Errorf("%w: property %q without element at %d", ErrSyntax, key, t.pos)
		}
		if !p.last.Kind.HasProperty(key) {
			return fmt.Errorf("%w: no property %q in element %q at %d", ErrSyntax, key, p.last.Kind.Name, t.pos)
		}
		p.last.Properties.set(key, unquote(value))
	case strings.Contains(w, "."):
		name, pad, _ := strings.Cut(w, ".")
		if name == "" || !isIdent(name) || (pad != "" && !isIdent(pad)) {
			return fmt.Errorf("%w: bad reference %q at %d", ErrSyntax, w, t.pos)
		}
		ref := endpoint{ref: name, pad: pad}
		if p.linking {
			p.links = append(p.links, pendingLink{from: *p.prev, to: ref, pos: t.pos})
			p.linking = false
			// chain continues from the referenced element output
			ref = endpoint{ref: name}
		}
		p.prev = &ref
		p.last = nil
	default:
		if !isIdent(w) {
			return fmt.Errorf("%w: bad element %q at %d", ErrSyntax, w, t.pos)
		}
		kind, ok := LookupKind(w)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownElement, w)
		}
		e := &Element{Kind: kind}
		p.add(e, t.pos)
		p.last = e
	}
	return nil
}

// add appends element, links it with the previous endpoint if "!" was seen.
func (p *parser) add(e *Element, pos int) {
	p.elements = append(p.elements, e)
	if p.linking {
		p.links = append(p.links, pendingLink{from: *p.prev, to: endpoint{elem: e}, pos: pos})
		p.linking = false
	}
	p.prev = &endpoint{elem: e}
}

func (p *parser) build() (*Graph, error) {
	g := Graph{byName: make(map[string]*Element, len(p.elements))}
	for _, e := range p.elements {
		name, ok := e.Properties.Get("name")
		if !ok {
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("%w: empty name for %q", ErrSyntax, e.Kind.Name)
		}
		if _, dup := g.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate element name %q", ErrSyntax, name)
		}
		e.Name = name
		g.byName[name] = e
	}
	counters := make(map[string]int)
	for _, e := range p.elements {
		if e.Name != "" {
			continue
		}
		for {
			name := e.Kind.Name + strconv.Itoa(counters[e.Kind.Name])
			counters[e.Kind.Name]++
			if _, taken := g.byName[name]; !taken {
				e.Name = name
				g.byName[name] = e
				break
			}
		}
	}
	g.elements = p.elements

	for _, pl := range p.links {
		from, err := g.resolve(pl.from, pl.pos)
		if err != nil {
			return nil, err
		}
		to, err := g.resolve(pl.to, pl.pos)
		if err != nil {
			return nil, err
		}
		l := &Link{From: from, To: to}
		if l.FromPad, err = requestPad(from, pl.from.pad, true); err != nil {
			return nil, err
		}
		if l.ToPad, err = requestPad(to, pl.to.pad, false); err != nil {
			return nil, err
		}
		from.Outputs = append(from.Outputs, l)
		to.Inputs = append(to.Inputs, l)
		g.links = append(g.links, l)
	}

	for _, e := range g.elements {
		if e.Kind.Inputs != NoPads && len(e.Inputs) == 0 {
			return nil, fmt.Errorf("%w: element %q has unlinked input", ErrSyntax, e.Name)
		}
		if e.Kind.Outputs == AlwaysPad && len(e.Outputs) == 0 {
			return nil, fmt.Errorf("%w: element %q has unlinked output", ErrSyntax, e.Name)
		}
	}
	order, err := sortTopological(g.elements)
	if err != nil {
		return nil, err
	}
	g.order = order
	return &g, nil
}

func (g *Graph) resolve(ep endpoint, pos int) (*Element, error) {
	if ep.elem != nil {
		return ep.elem, nil
	}
	e, ok := g.byName[ep.ref]
	if !ok {
		return nil, fmt.Errorf("%w: no element named %q at %d", ErrSyntax, ep.ref, pos)
	}
	return e, nil
}

// requestPad returns pad name for a new link on the element.
func requestPad(e *Element, pad string, src bool) (string, error) {
	mode, prefix, links, counter := e.Kind.Inputs, "sink", e.Inputs, &e.sinkPads
	if src {
		mode, prefix, links, counter = e.Kind.Outputs, "src", e.Outputs, &e.srcPads
	}
	switch mode {
	case NoPads:
		return "", fmt.Errorf("%w: element %q has no %s pads", ErrSyntax, e.Name, prefix)
	case AlwaysPad:
		if pad != "" && pad != prefix {
			return "", fmt.Errorf("%w: element %q has no pad %q", ErrSyntax, e.Name, pad)
		}
		if len(links) > 0 {
			return "", fmt.Errorf("%w: pad %s.%s is already linked", ErrSyntax, e.Name, prefix)
		}
		return prefix, nil
	}
	if pad == "" {
		pad = prefix + "_" + strconv.Itoa(*counter)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(pad, prefix+"_"))
	if err != nil || !strings.HasPrefix(pad, prefix+"_") || n < 0 {
		return "", fmt.Errorf("%w: element %q has no pad %q", ErrSyntax, e.Name, pad)
	}
	for _, l := range links {
		if (src && l.FromPad == pad) || (!src && l.ToPad == pad) {
			return "", fmt.Errorf("%w: pad %s.%s is already linked", ErrSyntax, e.Name, pad)
		}
	}
	if n >= *counter {
		*counter = n + 1
	}
	return pad, nil
}

func sortTopological(elements []*Element) ([]*Element, error) {
	indegree := make(map[*Element]int, len(elements))
	var queue []*Element
	for _, e := range elements {
		indegree[e] = len(e.Inputs)
		if len(e.Inputs) == 0 {
			queue = append(queue, e)
		}
	}
	order := make([]*Element, 0, len(elements))
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		order = append(order, e)
		for _, l := range e.Outputs {
			indegree[l.To]--
			if indegree[l.To] == 0 {
				queue = append(queue, l.To)
			}
		}
	}
	if len(order) != len(elements) {
		return nil, fmt.Errorf("%w: graph has a cycle", ErrSyntax)
	}
	return order, nil
}

// isCaps returns true for words like "video/x-raw,format=RGB".
func isCaps(w string) bool {
	w = unquote(w)
	head, _, _ := strings.Cut(w, ",")
	return strings.Contains(head, "/") && !strings.Contains(head, "=")
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
