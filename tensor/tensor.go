// Package tensor defines typed tensor descriptors and buffers exchanged
// between pipeline elements.
//
// Dimensions are written innermost first, so an RGB frame of 320x240
// pixels is "3:320:240:1".
package tensor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidInfo is returned when a descriptor is malformed or exceeds limits.
	ErrInvalidInfo = errors.New("invalid tensor info")
	// ErrSizeMismatch is returned when a byte region doesn't match its descriptor.
	ErrSizeMismatch = errors.New("tensor size mismatch")
)

// Limits bound the number of tensors in a set and the rank of a single tensor.
type Limits struct {
	MaxTensors int `yaml:"max_tensors"`
	MaxRank    int `yaml:"max_rank"`
}

// Hard bounds of any tensor set. Counts and ranks are stored in a single
// byte of the wire frame.
const (
	MaxTensors = math.MaxUint8
	MaxRank    = math.MaxUint8
	// MaxSize is the largest byte size of a single tensor.
	MaxSize = math.MaxInt32
)

// DefaultLimits are used when no limits were configured.
var DefaultLimits = Limits{
	MaxTensors: 16,
	MaxRank:    4,
}

// Dimension is an ordered sequence of positive sizes, innermost first.
type Dimension []uint32

// ParseDimension parses dimension string such as "3:224:224:1".
func ParseDimension(s string) (Dimension, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty dimension", ErrInvalidInfo)
	}
	parts := strings.Split(s, ":")
	d := make(Dimension, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("%w: bad dimension %q", ErrInvalidInfo, s)
		}
		d = append(d, uint32(v))
	}
	return d, nil
}

// Count returns the number of elements.
func (d Dimension) Count() int {
	if len(d) == 0 {
		return 0
	}
	n := 1
	for _, v := range d {
		n *= int(v)
	}
	return n
}

// Rank returns the rank without trailing ones.
func (d Dimension) Rank() int {
	r := len(d)
	for r > 1 && d[r-1] == 1 {
		r--
	}
	return r
}

// At returns size of i-th axis. Axes above the rank have size 1.
func (d Dimension) At(i int) int {
	if i < len(d) {
		return int(d[i])
	}
	return 1
}

// Equal compares dimensions ignoring trailing ones.
func (d Dimension) Equal(o Dimension) bool {
	n := len(d)
	if len(o) > n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if d.At(i) != o.At(i) {
			return false
		}
	}
	return true
}

// Pad returns copy of dimension extended with ones up to rank.
func (d Dimension) Pad(rank int) Dimension {
	out := make(Dimension, 0, rank)
	out = append(out, d...)
	for len(out) < rank {
		out = append(out, 1)
	}
	return out
}

func (d Dimension) String() string {
	s := make([]string, len(d))
	for i, v := range d {
		s[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(s, ":")
}

// Tensor describes a single tensor of a set.
type Tensor struct {
	Name      string
	Type      Type
	Dimension Dimension
}

// checkSize returns error if the tensor is empty or its size exceeds
// MaxSize.
func (t Tensor) checkSize() error {
	if len(t.Dimension) == 0 {
		return errors.New("empty dimension")
	}
	n := uint64(t.Type.Size())
	for _, v := range t.Dimension {
		if v == 0 {
			return errors.New("empty dimension")
		}
		if n *= uint64(v); n > MaxSize {
			return fmt.Errorf("size of %v %v exceeds %d bytes", t.Type, t.Dimension, MaxSize)
		}
	}
	return nil
}

// Size returns the tensor size in bytes.
func (t Tensor) Size() int {
	return t.Type.Size() * t.Dimension.Count()
}

// Equal compares type and dimension. Names are not compared.
func (t Tensor) Equal(o Tensor) bool {
	return t.Type == o.Type && t.Dimension.Equal(o.Dimension)
}

// Info is an ordered descriptor of a tensor set.
type Info struct {
	Tensors []Tensor
}

// NewInfo validates tensors against default limits and returns info.
func NewInfo(tensors ...Tensor) (Info, error) {
	info := Info{Tensors: append([]Tensor(nil), tensors...)}
	if err := DefaultLimits.Validate(info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// ParseInfo builds info from comma-separated dimension, type and name lists
// like "3:224:224:1,1001:1" and "uint8,float32". Names are optional.
func ParseInfo(dims, types, names string) (Info, error) {
	ds := splitList(dims)
	ts := splitList(types)
	if len(ds) == 0 {
		return Info{}, fmt.Errorf("%w: no dimensions", ErrInvalidInfo)
	}
	if len(ts) != len(ds) {
		return Info{}, fmt.Errorf("%w: %d dimensions but %d types", ErrInvalidInfo, len(ds), len(ts))
	}
	ns := splitList(names)
	if len(ns) > 0 && len(ns) != len(ds) {
		return Info{}, fmt.Errorf("%w: %d dimensions but %d names", ErrInvalidInfo, len(ds), len(ns))
	}
	info := Info{Tensors: make([]Tensor, len(ds))}
	for i := range ds {
		d, err := ParseDimension(ds[i])
		if err != nil {
			return Info{}, err
		}
		t, err := ParseType(ts[i])
		if err != nil {
			return Info{}, err
		}
		info.Tensors[i] = Tensor{Type: t, Dimension: d}
		if len(ns) > 0 {
			info.Tensors[i].Name = ns[i]
		}
	}
	if err := (Limits{}).Validate(info); err != nil {
		return Info{}, err
	}
	return info, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Validate checks that info fits into limits and every tensor is well formed.
func (l Limits) Validate(info Info) error {
	if len(info.Tensors) == 0 {
		return fmt.Errorf("%w: no tensors", ErrInvalidInfo)
	}
	if len(info.Tensors) > MaxTensors || l.MaxTensors > 0 && len(info.Tensors) > l.MaxTensors {
		return fmt.Errorf("%w: %d tensors exceed limit %d", ErrInvalidInfo, len(info.Tensors), l.maxTensors())
	}
	for i, t := range info.Tensors {
		if !t.Type.Valid() {
			return fmt.Errorf("%w: tensor %d has invalid type", ErrInvalidInfo, i)
		}
		if err := t.checkSize(); err != nil {
			return fmt.Errorf("%w: tensor %d: %v", ErrInvalidInfo, i, err)
		}
		if len(t.Dimension) > MaxRank {
			return fmt.Errorf("%w: tensor %d rank %d exceeds limit %d", ErrInvalidInfo, i, len(t.Dimension), MaxRank)
		}
		if l.MaxRank > 0 && t.Dimension.Rank() > l.MaxRank {
			return fmt.Errorf("%w: tensor %d rank %d exceeds limit %d", ErrInvalidInfo, i, t.Dimension.Rank(), l.MaxRank)
		}
	}
	return nil
}

func (l Limits) maxTensors() int {
	if l.MaxTensors > 0 && l.MaxTensors < MaxTensors {
		return l.MaxTensors
	}
	return MaxTensors
}

// Len returns number of tensors.
func (info Info) Len() int {
	return len(info.Tensors)
}

// Size returns size in bytes of i-th tensor.
func (info Info) Size(i int) int {
	return info.Tensors[i].Size()
}

// Equal compares types and dimensions of every tensor.
func (info Info) Equal(o Info) bool {
	if len(info.Tensors) != len(o.Tensors) {
		return false
	}
	for i := range info.Tensors {
		if !info.Tensors[i].Equal(o.Tensors[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of info.
func (info Info) Clone() Info {
	c := Info{Tensors: make([]Tensor, len(info.Tensors))}
	for i, t := range info.Tensors {
		c.Tensors[i] = Tensor{
			Name:      t.Name,
			Type:      t.Type,
			Dimension: append(Dimension(nil), t.Dimension...),
		}
	}
	return c
}

// Allocate returns zeroed data for the info.
func (info Info) Allocate() *Data {
	d := Data{
		info:    info.Clone(),
		tensors: make([][]byte, len(info.Tensors)),
	}
	for i := range info.Tensors {
		d.tensors[i] = make([]byte, info.Size(i))
	}
	return &d
}

// Dimensions formats dimensions as a comma-separated list.
func (info Info) Dimensions() string {
	s := make([]string, len(info.Tensors))
	for i, t := range info.Tensors {
		s[i] = t.Dimension.String()
	}
	return strings.Join(s, ",")
}

// Types formats types as a comma-separated list.
func (info Info) Types() string {
	s := make([]string, len(info.Tensors))
	for i, t := range info.Tensors {
		s[i] = t.Type.String()
	}
	return strings.Join(s, ",")
}

func (info Info) String() string {
	return fmt.Sprintf("[%s] %s", info.Types(), info.Dimensions())
}

// Data is a tensor set: info and one owned byte region per tensor.
type Data struct {
	info    Info
	tensors [][]byte
}

// NewData pairs info with byte regions. Regions are not copied. Limits
// are not applied here, pipelines check them against their configuration.
func NewData(info Info, tensors ...[]byte) (*Data, error) {
	if err := (Limits{}).Validate(info); err != nil {
		return nil, err
	}
	if len(tensors) != len(info.Tensors) {
		return nil, fmt.Errorf("%w: %d regions for %d tensors", ErrSizeMismatch, len(tensors), len(info.Tensors))
	}
	for i := range tensors {
		if len(tensors[i]) != info.Size(i) {
			return nil, fmt.Errorf("%w: tensor %d has %d bytes, expected %d", ErrSizeMismatch, i, len(tensors[i]), info.Size(i))
		}
	}
	return &Data{info: info.Clone(), tensors: tensors}, nil
}

// Info returns copy of the descriptor.
func (d *Data) Info() Info {
	return d.info.Clone()
}

// Len returns number of tensors.
func (d *Data) Len() int {
	return len(d.tensors)
}

// Tensor returns i-th byte region. The region is shared with data.
func (d *Data) Tensor(i int) []byte {
	return d.tensors[i]
}

// SetTensorData replaces i-th region with a copy of b.
func (d *Data) SetTensorData(i int, b []byte) error {
	if i < 0 || i >= len(d.tensors) {
		return fmt.Errorf("%w: tensor index %d out of range", ErrInvalidInfo, i)
	}
	if len(b) != d.info.Size(i) {
		return fmt.Errorf("%w: tensor %d has %d bytes, expected %d", ErrSizeMismatch, i, len(b), d.info.Size(i))
	}
	copy(d.tensors[i], b)
	return nil
}

// Size returns total size in bytes.
func (d *Data) Size() int {
	var n int
	for _, t := range d.tensors {
		n += len(t)
	}
	return n
}

// Clone returns a deep copy.
func (d *Data) Clone() *Data {
	c := Data{
		info:    d.info.Clone(),
		tensors: make([][]byte, len(d.tensors)),
	}
	for i := range d.tensors {
		c.tensors[i] = append([]byte(nil), d.tensors[i]...)
	}
	return &c
}

// WithInfo returns data sharing the byte regions but described by info.
// Sizes must match.
func (d *Data) WithInfo(info Info) (*Data, error) {
	return NewData(info, d.tensors...)
}
