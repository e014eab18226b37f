package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Media types understood by elements.
const (
	MediaTensor  = "other/tensor"
	MediaTensors = "other/tensors"
	MediaVideo   = "video/x-raw"
	MediaAudio   = "audio/x-raw"
	MediaOctet   = "application/octet-stream"
	// MediaFlatbuf carries tensor sets serialized into single frames.
	MediaFlatbuf = "other/flatbuf-tensor"
)

// Caps is a media type with an ordered list of fields, e.g.
// "video/x-raw,format=RGB,width=320,height=240".
type Caps struct {
	Media  string
	Fields []Field
}

// Field is a single caps field. Type is the optional cast written in
// parentheses, e.g. "string" for "dimension=(string)3:224:224:1".
type Field struct {
	Key   string
	Type  string
	Value string
}

// ParseCaps parses textual caps.
func ParseCaps(s string) (Caps, error) {
	parts := splitCaps(s)
	if len(parts) == 0 || parts[0] == "" {
		return Caps{}, fmt.Errorf("%w: empty caps", ErrSyntax)
	}
	media := strings.TrimSpace(parts[0])
	if !isMedia(media) {
		return Caps{}, fmt.Errorf("%w: bad media type %q", ErrSyntax, media)
	}
	c := Caps{Media: media}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return Caps{}, fmt.Errorf("%w: bad caps field %q", ErrSyntax, p)
		}
		f := Field{Key: strings.TrimSpace(k)}
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "(") {
			if end := strings.IndexByte(v, ')'); end > 0 {
				f.Type = v[1:end]
				v = strings.TrimSpace(v[end+1:])
			}
		}
		f.Value = unquote(v)
		c.Fields = append(c.Fields, f)
	}
	return c, nil
}

// splitCaps splits by commas which are not inside quotes or braces.
func splitCaps(s string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '{' || r == '<':
			depth++
		case r == '}' || r == '>':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func isMedia(s string) bool {
	t, sub, ok := strings.Cut(s, "/")
	return ok && t != "" && sub != "" && !strings.ContainsAny(s, " =")
}

// Get returns field value.
func (c Caps) Get(key string) (string, bool) {
	for _, f := range c.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Int returns integer field value.
func (c Caps) Int(key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Fraction returns fraction field value, e.g. framerate "30/1".
func (c Caps) Fraction(key string) (num, den int, ok bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, 0, false
	}
	n, d, found := strings.Cut(v, "/")
	var err error
	if num, err = strconv.Atoi(n); err != nil {
		return 0, 0, false
	}
	den = 1
	if found {
		if den, err = strconv.Atoi(d); err != nil {
			return 0, 0, false
		}
	}
	return num, den, true
}

// IsEmpty returns true if caps have no media type.
func (c Caps) IsEmpty() bool {
	return c.Media == ""
}

// Merge returns caps with fields of o added when absent in c. Media type of
// c wins if set.
func (c Caps) Merge(o Caps) Caps {
	out := Caps{Media: c.Media, Fields: append([]Field(nil), c.Fields...)}
	if out.Media == "" {
		out.Media = o.Media
	} else if o.Media != "" && o.Media != c.Media {
		return out
	}
	for _, f := range o.Fields {
		if _, ok := out.Get(f.Key); !ok {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

func (c Caps) String() string {
	var b strings.Builder
	b.WriteString(c.Media)
	for _, f := range c.Fields {
		b.WriteByte(',')
		b.WriteString(f.Key)
		b.WriteByte('=')
		if f.Type != "" {
			b.WriteString("(" + f.Type + ")")
		}
		if strings.ContainsAny(f.Value, ", ") {
			b.WriteString(strconv.Quote(f.Value))
		} else {
			b.WriteString(f.Value)
		}
	}
	return b.String()
}
