// Package config loads pipeline defaults from environment variables and
// YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nnsuite/nnpipe/tensor"
)

// Environment variables read by Load.
const (
	EnvDebug      = "NNPIPE_DEBUG"
	EnvMaxTensors = "NNPIPE_MAX_TENSORS"
	EnvMaxRank    = "NNPIPE_MAX_RANK"
	EnvQueueSize  = "NNPIPE_QUEUE_SIZE"
	EnvLinkBuffer = "NNPIPE_LINK_BUFFER"
	EnvNATSURL    = "NNPIPE_NATS_URL"
	EnvConfig     = "NNPIPE_CONFIG"
)

// ErrInvalid is returned when configuration has invalid values.
var ErrInvalid = errors.New("invalid config")

// Limits bound tensor sets accepted by pipelines.
type Limits struct {
	MaxTensors int `yaml:"max_tensors"`
	MaxRank    int `yaml:"max_rank"`
}

// Config holds pipeline defaults.
type Config struct {
	Debug  bool   `yaml:"debug"`
	Limits Limits `yaml:"limits"`
	// QueueSize is the default capacity of appsrc queues.
	QueueSize int `yaml:"queue_size"`
	// LinkBuffer is the capacity of links between elements.
	LinkBuffer int    `yaml:"link_buffer"`
	NATSURL    string `yaml:"nats_url"`
}

// Default returns config with default values.
func Default() Config {
	return Config{
		Limits: Limits{
			MaxTensors: tensor.DefaultLimits.MaxTensors,
			MaxRank:    tensor.DefaultLimits.MaxRank,
		},
		QueueSize:  16,
		LinkBuffer: 4,
	}
}

// TensorLimits converts limits for tensor validation.
func (c Config) TensorLimits() tensor.Limits {
	return tensor.Limits{MaxTensors: c.Limits.MaxTensors, MaxRank: c.Limits.MaxRank}
}

// Validate checks config values.
func (c Config) Validate() error {
	switch {
	case c.Limits.MaxTensors <= 0 || c.Limits.MaxTensors > tensor.MaxTensors:
		return fmt.Errorf("%w: max tensors %d not in 1..%d", ErrInvalid, c.Limits.MaxTensors, tensor.MaxTensors)
	case c.Limits.MaxRank <= 0 || c.Limits.MaxRank > tensor.MaxRank:
		return fmt.Errorf("%w: max rank %d not in 1..%d", ErrInvalid, c.Limits.MaxRank, tensor.MaxRank)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size %d", ErrInvalid, c.QueueSize)
	case c.LinkBuffer < 0:
		return fmt.Errorf("%w: link buffer %d", ErrInvalid, c.LinkBuffer)
	}
	return nil
}

// FromFile reads YAML file over default values.
func FromFile(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return c, c.Validate()
}

// Load reads the file pointed by NNPIPE_CONFIG, if set, and overrides its
// values with environment variables.
func Load() (Config, error) {
	c := Default()
	if path := os.Getenv(EnvConfig); path != "" {
		var err error
		if c, err = FromFile(path); err != nil {
			return Config{}, err
		}
	}
	if v, ok := os.LookupEnv(EnvDebug); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalid, EnvDebug, v)
		}
		c.Debug = debug
	}
	ints := []struct {
		env string
		v   *int
	}{
		{EnvMaxTensors, &c.Limits.MaxTensors},
		{EnvMaxRank, &c.Limits.MaxRank},
		{EnvQueueSize, &c.QueueSize},
		{EnvLinkBuffer, &c.LinkBuffer},
	}
	for _, i := range ints {
		v, ok := os.LookupEnv(i.env)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalid, i.env, v)
		}
		*i.v = n
	}
	if v, ok := os.LookupEnv(EnvNATSURL); ok {
		c.NATSURL = v
	}
	return c, c.Validate()
}
