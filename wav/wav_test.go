package wav_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/tensor"
	"github.com/nnsuite/nnpipe/wav"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := wav.Create(path, 8000, 2, 16)
	require.NoError(t, err)

	samples := []float64{1, -1, 100, -100, 32767, -32768}
	b := make([]byte, len(samples)*2)
	tensor.PutFloat64s(tensor.Int16, b, samples)
	require.NoError(t, w.Write(tensor.Int16, b))
	require.NoError(t, w.Write(tensor.Int16, b))
	require.NoError(t, w.Close())

	r, err := wav.Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.Channels())
	assert.Equal(t, 8000, r.SampleRate())
	assert.Equal(t, tensor.Int16, r.Type())

	d, err := r.Read(4)
	require.NoError(t, err)
	assert.Equal(t, "2:4", d.Info().Tensors[0].Dimension.String())
	assert.Equal(t, []float64{1, -1, 100, -100, 32767, -32768, 1, -1}, tensor.Float64s(tensor.Int16, d.Tensor(0)))

	d, err = r.Read(4)
	require.NoError(t, err)
	assert.Equal(t, "2:2", d.Info().Tensors[0].Dimension.String())

	_, err = r.Read(4)
	assert.Equal(t, io.EOF, err)
}

func TestWriteFloat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.wav")
	w, err := wav.Create(path, 8000, 1, 16)
	require.NoError(t, err)
	b := make([]byte, 3*4)
	tensor.PutFloat64s(tensor.Float32, b, []float64{0.5, -0.5, 2})
	require.NoError(t, w.Write(tensor.Float32, b))
	require.NoError(t, w.Close())

	r, err := wav.Open(path)
	require.NoError(t, err)
	defer r.Close()
	d, err := r.Read(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{16384, -16384, 32767}, tensor.Float64s(tensor.Int16, d.Tensor(0)))
}

func TestUnsupported(t *testing.T) {
	_, err := wav.Create(filepath.Join(t.TempDir(), "x.wav"), 8000, 1, 24)
	assert.ErrorIs(t, err, wav.ErrUnsupportedBitDepth)

	_, err = wav.Open(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
