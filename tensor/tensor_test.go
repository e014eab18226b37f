package tensor_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/tensor"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name string
		typ  tensor.Type
		size int
	}{
		{"int8", tensor.Int8, 1},
		{"uint8", tensor.Uint8, 1},
		{"int16", tensor.Int16, 2},
		{"uint16", tensor.Uint16, 2},
		{"int32", tensor.Int32, 4},
		{"uint32", tensor.Uint32, 4},
		{"int64", tensor.Int64, 8},
		{"uint64", tensor.Uint64, 8},
		{"float16", tensor.Float16, 2},
		{"float32", tensor.Float32, 4},
		{"FLOAT64", tensor.Float64, 8},
	}
	for _, test := range tests {
		typ, err := tensor.ParseType(test.name)
		require.NoError(t, err)
		assert.Equal(t, test.typ, typ)
		assert.Equal(t, test.size, typ.Size())
	}
	_, err := tensor.ParseType("complex64")
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)
	assert.Equal(t, 0, tensor.Invalid.Size())
}

func TestDimension(t *testing.T) {
	d, err := tensor.ParseDimension("2:10:10:1")
	require.NoError(t, err)
	assert.Equal(t, 200, d.Count())
	assert.Equal(t, 3, d.Rank())
	assert.Equal(t, "2:10:10:1", d.String())
	assert.True(t, d.Equal(tensor.Dimension{2, 10, 10}))
	assert.False(t, d.Equal(tensor.Dimension{10, 2, 10}))

	for _, bad := range []string{"", "0:1", "a:2", "-1"} {
		_, err := tensor.ParseDimension(bad)
		assert.ErrorIs(t, err, tensor.ErrInvalidInfo, bad)
	}
}

func TestLimits(t *testing.T) {
	info := tensor.Info{}
	for i := 0; i < 16; i++ {
		info.Tensors = append(info.Tensors, tensor.Tensor{Type: tensor.Uint8, Dimension: tensor.Dimension{1}})
	}
	assert.NoError(t, tensor.DefaultLimits.Validate(info))

	info.Tensors = append(info.Tensors, tensor.Tensor{Type: tensor.Uint8, Dimension: tensor.Dimension{1}})
	assert.ErrorIs(t, tensor.DefaultLimits.Validate(info), tensor.ErrInvalidInfo)
	assert.NoError(t, tensor.Limits{MaxTensors: 32, MaxRank: 4}.Validate(info))

	rank5 := tensor.Info{Tensors: []tensor.Tensor{{Type: tensor.Uint8, Dimension: tensor.Dimension{1, 2, 3, 4, 5}}}}
	assert.ErrorIs(t, tensor.DefaultLimits.Validate(rank5), tensor.ErrInvalidInfo)
	assert.NoError(t, tensor.Limits{MaxTensors: 16, MaxRank: 8}.Validate(rank5))

	// hard bounds apply whatever is configured
	wide := tensor.Info{}
	for i := 0; i <= tensor.MaxTensors; i++ {
		wide.Tensors = append(wide.Tensors, tensor.Tensor{Type: tensor.Uint8, Dimension: tensor.Dimension{1}})
	}
	assert.ErrorIs(t, tensor.Limits{MaxTensors: 1000}.Validate(wide), tensor.ErrInvalidInfo)
	assert.ErrorIs(t, tensor.Limits{}.Validate(wide), tensor.ErrInvalidInfo)

	huge := tensor.Tensor{Type: tensor.Float32, Dimension: tensor.Dimension{4294967295, 4294967295}}
	_, err := tensor.NewInfo(huge)
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)
	_, err = tensor.ParseInfo("4294967295:4294967295", "uint8", "")
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)
	_, err = tensor.ParseInfo("65536:32768", "uint8", "")
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)
	_, err = tensor.ParseInfo("65536:16384", "uint16", "")
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)
	_, err = tensor.ParseInfo("1024:1024", "float64", "")
	assert.NoError(t, err)
}

func TestParseInfo(t *testing.T) {
	info, err := tensor.ParseInfo("3:224:224:1,1001:1", "uint8,float32", "image,scores")
	require.NoError(t, err)
	want := tensor.Info{Tensors: []tensor.Tensor{
		{Name: "image", Type: tensor.Uint8, Dimension: tensor.Dimension{3, 224, 224, 1}},
		{Name: "scores", Type: tensor.Float32, Dimension: tensor.Dimension{1001, 1}},
	}}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "[uint8,float32] 3:224:224:1,1001:1", info.String())

	_, err = tensor.ParseInfo("3:224:224:1,1001:1", "uint8", "")
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)
}

func TestData(t *testing.T) {
	info, err := tensor.NewInfo(tensor.Tensor{Type: tensor.Int32, Dimension: tensor.Dimension{10, 1, 1, 1}})
	require.NoError(t, err)

	d := info.Allocate()
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 40, d.Size())

	err = d.SetTensorData(0, make([]byte, 39))
	assert.ErrorIs(t, err, tensor.ErrSizeMismatch)
	err = d.SetTensorData(1, make([]byte, 40))
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)

	b := make([]byte, 40)
	b[0] = 7
	require.NoError(t, d.SetTensorData(0, b))
	b[0] = 9
	assert.Equal(t, byte(7), d.Tensor(0)[0], "data must own its bytes")

	c := d.Clone()
	c.Tensor(0)[0] = 1
	assert.Equal(t, byte(7), d.Tensor(0)[0])

	_, err = tensor.NewData(info, make([]byte, 4))
	assert.ErrorIs(t, err, tensor.ErrSizeMismatch)
	_, err = tensor.NewData(info)
	assert.ErrorIs(t, err, tensor.ErrSizeMismatch)
}

func TestConvert(t *testing.T) {
	src := make([]byte, 4)
	tensor.PutFloat64s(tensor.Uint8, src, []float64{0, 1, 254, 255})
	f := tensor.Cast(tensor.Uint8, tensor.Float32, src)
	assert.Equal(t, []float64{0, 1, 254, 255}, tensor.Float64s(tensor.Float32, f))

	h := tensor.Cast(tensor.Float32, tensor.Float16, f)
	assert.Equal(t, []float64{0, 1, 254, 255}, tensor.Float64s(tensor.Float16, h))

	sat := make([]byte, 3)
	tensor.PutFloat64s(tensor.Int8, sat, []float64{-300, 300, 1.9})
	assert.Equal(t, []float64{-128, 127, 1}, tensor.Float64s(tensor.Int8, sat))
}

func TestCodec(t *testing.T) {
	info, err := tensor.ParseInfo("2:2,3", "int16,float64", "a,b")
	require.NoError(t, err)
	d := info.Allocate()
	tensor.PutFloat64s(tensor.Int16, d.Tensor(0), []float64{-1, 2, -3, 4})
	tensor.PutFloat64s(tensor.Float64, d.Tensor(1), []float64{0.5, 1.5, 2.5})

	frame, err := tensor.Marshal(d)
	require.NoError(t, err)
	got, err := tensor.Unmarshal(frame)
	require.NoError(t, err)
	if diff := cmp.Diff(d.Info(), got.Info()); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, d.Tensor(0), got.Tensor(0))
	assert.Equal(t, d.Tensor(1), got.Tensor(1))

	_, err = tensor.Unmarshal(frame[:len(frame)-1])
	assert.ErrorIs(t, err, tensor.ErrCorrupted)
	_, err = tensor.Unmarshal([]byte("nope"))
	assert.ErrorIs(t, err, tensor.ErrCorrupted)

	// count doesn't fit the frame header
	wide := tensor.Info{}
	for i := 0; i < 257; i++ {
		wide.Tensors = append(wide.Tensors, tensor.Tensor{Type: tensor.Uint8, Dimension: tensor.Dimension{1}})
	}
	_, err = tensor.Marshal(wide.Allocate())
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)

	deep := tensor.Info{Tensors: []tensor.Tensor{{Type: tensor.Uint8, Dimension: make(tensor.Dimension, 256)}}}
	for i := range deep.Tensors[0].Dimension {
		deep.Tensors[0].Dimension[i] = 1
	}
	_, err = tensor.Marshal(deep.Allocate())
	assert.ErrorIs(t, err, tensor.ErrInvalidInfo)
}
