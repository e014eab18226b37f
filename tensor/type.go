package tensor

import (
	"fmt"
	"strings"
)

// Type is a scalar element encoding of a tensor.
type Type uint8

// Supported element types. Zero value is invalid.
const (
	Invalid Type = iota
	Int32
	Uint32
	Int16
	Uint16
	Int8
	Uint8
	Float64
	Float32
	Int64
	Uint64
	Float16
)

var typeNames = [...]string{
	Invalid: "invalid",
	Int32:   "int32",
	Uint32:  "uint32",
	Int16:   "int16",
	Uint16:  "uint16",
	Int8:    "int8",
	Uint8:   "uint8",
	Float64: "float64",
	Float32: "float32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float16: "float16",
}

var typeSizes = [...]int{
	Int32:   4,
	Uint32:  4,
	Int16:   2,
	Uint16:  2,
	Int8:    1,
	Uint8:   1,
	Float64: 8,
	Float32: 4,
	Int64:   8,
	Uint64:  8,
	Float16: 2,
}

// ParseType returns the type for its lowercase name, e.g. "uint8".
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t := Int32; t <= Float16; t++ {
		if typeNames[t] == s {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("%w: unknown type %q", ErrInvalidInfo, s)
}

// Valid returns true for any defined element type.
func (t Type) Valid() bool {
	return t > Invalid && t <= Float16
}

// Size returns the width of a single element in bytes.
func (t Type) Size() int {
	if !t.Valid() {
		return 0
	}
	return typeSizes[t]
}

func (t Type) String() string {
	if int(t) >= len(typeNames) {
		return typeNames[Invalid]
	}
	return typeNames[t]
}
