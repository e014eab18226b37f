package nnpipe

import (
	"github.com/nnsuite/nnpipe/config"
	"github.com/nnsuite/nnpipe/log"
	"github.com/nnsuite/nnpipe/metric"
)

// Option configures the pipeline.
type Option func(*options)

type options struct {
	name    string
	config  *config.Config
	logger  log.Logger
	metric  *metric.Registry
	onState func(State)
}

// WithName sets the pipeline name used in logs and metrics. Unique id is
// used by default.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithConfig overrides configuration loaded from the environment.
func WithConfig(c config.Config) Option {
	return func(o *options) {
		o.config = &c
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetric sets the registry of element metrics.
func WithMetric(r *metric.Registry) Option {
	return func(o *options) {
		o.metric = r
	}
}

// WithStateCallback sets function called on every state change. Calls
// are ordered and happen on a separate goroutine. The callback must not
// close the pipeline.
func WithStateCallback(fn func(State)) Option {
	return func(o *options) {
		o.onState = fn
	}
}
