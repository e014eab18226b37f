package filter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/filter"
	"github.com/nnsuite/nnpipe/tensor"
)

func TestAvailability(t *testing.T) {
	for _, name := range []string{"custom-easy", "passthrough", "gonum-dense"} {
		assert.True(t, filter.IsAvailable(name), name)
	}
	for _, name := range []string{"tensorflow-lite", "snpe", "pytorch", "nnfw", "snap"} {
		assert.False(t, filter.IsAvailable(name), name)
	}
	assert.Contains(t, filter.Frameworks(), "gonum-dense")

	_, err := filter.Open("auto", filter.Properties{Model: []string{"mobilenet.tflite"}})
	assert.ErrorIs(t, err, filter.ErrNotAvailable)
}

func TestCustomEasy(t *testing.T) {
	info, err := tensor.ParseInfo("4:1:1:1", "int8", "")
	require.NoError(t, err)
	out, err := tensor.ParseInfo("2:1:1:1", "int8", "")
	require.NoError(t, err)
	require.NoError(t, filter.RegisterCustomEasy("halve", info, out, func(in *tensor.Data) (*tensor.Data, error) {
		return tensor.NewData(out, append([]byte(nil), in.Tensor(0)[:2]...))
	}))
	defer filter.UnregisterCustomEasy("halve")
	assert.Error(t, filter.RegisterCustomEasy("halve", info, out, nil))

	inst, err := filter.Open("custom-easy", filter.Properties{Model: []string{"halve"}})
	require.NoError(t, err)
	defer inst.Close()
	assert.True(t, inst.InputInfo().Equal(info))

	in, err := tensor.NewData(info, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	res, err := inst.Invoke(in)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, res.Tensor(0))

	_, err = filter.Open("custom-easy", filter.Properties{Model: []string{"missing"}})
	assert.ErrorIs(t, err, filter.ErrModel)

	wrong, err := tensor.ParseInfo("3:1:1:1", "int8", "")
	require.NoError(t, err)
	_, err = filter.Open("custom-easy", filter.Properties{Model: []string{"halve"}, Input: wrong})
	assert.ErrorIs(t, err, filter.ErrModel)
}

func TestPassthrough(t *testing.T) {
	info, err := tensor.ParseInfo("3:2:2:1", "uint8", "")
	require.NoError(t, err)
	inst, err := filter.Open("passthrough", filter.Properties{Input: info})
	require.NoError(t, err)
	in := info.Allocate()
	res, err := inst.Invoke(in)
	require.NoError(t, err)
	assert.Same(t, in, res)

	_, err = filter.Open("passthrough", filter.Properties{})
	assert.ErrorIs(t, err, filter.ErrModel)
}

const denseModel = `
input:
  type: uint8
  dimension: "3:1:1:1"
layers:
  - weights: [[1, 1, 1], [1, -1, 0]]
    bias: [0, -10]
    activation: relu
  - weights: [[0.5, 0], [0, 2]]
`

func TestDense(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(denseModel), 0o644))

	inst, err := filter.Open("auto", filter.Properties{Model: []string{path}})
	require.NoError(t, err)
	defer inst.Close()
	assert.Equal(t, "[float32] 2:1:1:1", inst.OutputInfo().String())

	in, err := tensor.NewData(inst.InputInfo(), []byte{10, 4, 2})
	require.NoError(t, err)
	out, err := inst.Invoke(in)
	require.NoError(t, err)
	// relu([16, -4]) = [16, 0], then [8, 0]
	assert.Equal(t, []float64{8, 0}, tensor.Float64s(tensor.Float32, out.Tensor(0)))
}

func TestDenseInvalid(t *testing.T) {
	_, err := filter.NewDense(&filter.DenseModel{
		Input:  filter.DenseTensor{Dimension: "2"},
		Layers: []filter.DenseLayer{{Weights: [][]float64{{1, 2, 3}}}},
	})
	assert.ErrorIs(t, err, filter.ErrModel)

	_, err = filter.NewDense(&filter.DenseModel{
		Input:  filter.DenseTensor{Dimension: "2"},
		Layers: []filter.DenseLayer{{Weights: [][]float64{{1, 2}}, Activation: "tanh"}},
	})
	assert.ErrorIs(t, err, filter.ErrModel)
}
