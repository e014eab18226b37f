package tensor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	codecVersion = 1
)

var codecMagic = [4]byte{'N', 'N', 'P', 'T'}

// ErrCorrupted is returned when encoded data cannot be decoded.
var ErrCorrupted = errors.New("corrupted tensor frame")

// Marshal encodes data into a self-describing little-endian frame.
func Marshal(d *Data) ([]byte, error) {
	if err := (Limits{}).Validate(d.info); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(16 + d.Size())
	buf.Write(codecMagic[:])
	buf.WriteByte(codecVersion)
	buf.WriteByte(byte(d.Len()))
	le := binary.LittleEndian
	for i, t := range d.info.Tensors {
		if len(t.Name) > 0xffff {
			return nil, fmt.Errorf("%w: tensor %d name too long", ErrInvalidInfo, i)
		}
		buf.WriteByte(byte(t.Type))
		buf.WriteByte(byte(len(t.Dimension)))
		for _, v := range t.Dimension {
			_ = binary.Write(&buf, le, v)
		}
		_ = binary.Write(&buf, le, uint16(len(t.Name)))
		buf.WriteString(t.Name)
		_ = binary.Write(&buf, le, uint32(len(d.tensors[i])))
		buf.Write(d.tensors[i])
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a frame produced by Marshal.
func Unmarshal(b []byte) (*Data, error) {
	r := bytes.NewReader(b)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != codecMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if hdr[0] != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupted, hdr[0])
	}
	n := int(hdr[1])
	le := binary.LittleEndian
	info := Info{Tensors: make([]Tensor, n)}
	regions := make([][]byte, n)
	for i := 0; i < n; i++ {
		var th [2]byte
		if _, err := io.ReadFull(r, th[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		dim := make(Dimension, th[1])
		if err := binary.Read(r, le, dim); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		var nameLen uint16
		if err := binary.Read(r, le, &nameLen); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		var size uint32
		if err := binary.Read(r, le, &size); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		if int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: tensor %d truncated", ErrCorrupted, i)
		}
		region := make([]byte, size)
		if _, err := io.ReadFull(r, region); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		info.Tensors[i] = Tensor{Name: string(name), Type: Type(th[0]), Dimension: dim}
		regions[i] = region
	}
	return NewData(info, regions...)
}
