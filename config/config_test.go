package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnsuite/nnpipe/config"
	"github.com/nnsuite/nnpipe/tensor"
)

func TestDefault(t *testing.T) {
	c := config.Default()
	assert.NoError(t, c.Validate())
	assert.Equal(t, tensor.DefaultLimits, c.TensorLimits())

	c.Limits.MaxTensors = tensor.MaxTensors
	c.Limits.MaxRank = tensor.MaxRank
	assert.NoError(t, c.Validate())
	c.Limits.MaxTensors = 256
	assert.ErrorIs(t, c.Validate(), config.ErrInvalid)
	c.Limits.MaxTensors, c.Limits.MaxRank = 16, 256
	assert.ErrorIs(t, c.Validate(), config.ErrInvalid)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nnpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  max_tensors: 8\nqueue_size: 2\nnats_url: nats://localhost:4222\n"), 0o600))

	c, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, c.Limits.MaxTensors)
	assert.Equal(t, tensor.DefaultLimits.MaxRank, c.Limits.MaxRank)
	assert.Equal(t, 2, c.QueueSize)
	assert.Equal(t, "nats://localhost:4222", c.NATSURL)

	require.NoError(t, os.WriteFile(path, []byte("queue_size: 0\n"), 0o600))
	_, err = config.FromFile(path)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nnpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_size: 2\nlink_buffer: 1\n"), 0o600))
	t.Setenv(config.EnvConfig, path)
	t.Setenv(config.EnvQueueSize, "32")
	t.Setenv(config.EnvDebug, "true")

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 32, c.QueueSize)
	assert.Equal(t, 1, c.LinkBuffer)
	assert.True(t, c.Debug)

	t.Setenv(config.EnvMaxRank, "four")
	_, err = config.Load()
	assert.ErrorIs(t, err, config.ErrInvalid)
}
