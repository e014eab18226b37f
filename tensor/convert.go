package tensor

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// Float64s decodes a little-endian region of type t.
func Float64s(t Type, b []byte) []float64 {
	n := 0
	if s := t.Size(); s > 0 {
		n = len(b) / s
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = get(t, b, i)
	}
	return out
}

// PutFloat64s encodes values into b as type t. Integer types saturate.
func PutFloat64s(t Type, b []byte, v []float64) {
	for i := range v {
		put(t, b, i, v[i])
	}
}

// Cast converts region from one type into a new region of another type.
func Cast(from, to Type, b []byte) []byte {
	v := Float64s(from, b)
	out := make([]byte, len(v)*to.Size())
	PutFloat64s(to, out, v)
	return out
}

func get(t Type, b []byte, i int) float64 {
	le := binary.LittleEndian
	switch t {
	case Int8:
		return float64(int8(b[i]))
	case Uint8:
		return float64(b[i])
	case Int16:
		return float64(int16(le.Uint16(b[i*2:])))
	case Uint16:
		return float64(le.Uint16(b[i*2:]))
	case Int32:
		return float64(int32(le.Uint32(b[i*4:])))
	case Uint32:
		return float64(le.Uint32(b[i*4:]))
	case Int64:
		return float64(int64(le.Uint64(b[i*8:])))
	case Uint64:
		return float64(le.Uint64(b[i*8:]))
	case Float16:
		return float64(float16.Frombits(le.Uint16(b[i*2:])).Float32())
	case Float32:
		return float64(math.Float32frombits(le.Uint32(b[i*4:])))
	case Float64:
		return math.Float64frombits(le.Uint64(b[i*8:]))
	}
	return 0
}

func put(t Type, b []byte, i int, v float64) {
	le := binary.LittleEndian
	switch t {
	case Int8:
		b[i] = byte(int8(saturate(v, math.MinInt8, math.MaxInt8)))
	case Uint8:
		b[i] = uint8(saturate(v, 0, math.MaxUint8))
	case Int16:
		le.PutUint16(b[i*2:], uint16(int16(saturate(v, math.MinInt16, math.MaxInt16))))
	case Uint16:
		le.PutUint16(b[i*2:], uint16(saturate(v, 0, math.MaxUint16)))
	case Int32:
		le.PutUint32(b[i*4:], uint32(int32(saturate(v, math.MinInt32, math.MaxInt32))))
	case Uint32:
		le.PutUint32(b[i*4:], uint32(saturate(v, 0, math.MaxUint32)))
	case Int64:
		le.PutUint64(b[i*8:], uint64(int64(saturate(v, math.MinInt64, math.MaxInt64))))
	case Uint64:
		le.PutUint64(b[i*8:], uint64(saturate(v, 0, math.MaxUint64)))
	case Float16:
		le.PutUint16(b[i*2:], float16.Fromfloat32(float32(v)).Bits())
	case Float32:
		le.PutUint32(b[i*4:], math.Float32bits(float32(v)))
	case Float64:
		le.PutUint64(b[i*8:], math.Float64bits(v))
	}
}

// saturate truncates toward zero and clamps into [min, max].
func saturate(v, min, max float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
