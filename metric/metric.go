// Package metric measures elements of pipelines with prometheus
// collectors. Every pipeline owns a Registry so metrics of closed
// pipelines don't leak into new ones.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nnpipe"

const (
	// BufferCounter measures number of processed buffers.
	BufferCounter = "buffers"
	// ByteCounter measures number of processed bytes.
	ByteCounter = "bytes"
	// DropCounter measures number of dropped buffers.
	DropCounter = "dropped"
	// LatencyCounter measures time between two buffers of the element.
	LatencyCounter = "latency"
)

// Registry holds collectors of a single pipeline.
type Registry struct {
	reg     *prometheus.Registry
	buffers *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	dropped *prometheus.CounterVec
	latency *prometheus.HistogramVec
	state   prometheus.Gauge
}

// New returns registry with collectors labeled by the pipeline name.
func New(pipeline string) *Registry {
	labels := prometheus.Labels{"pipeline": pipeline}
	elementLabels := []string{"element", "kind"}
	r := Registry{
		reg: prometheus.NewRegistry(),
		buffers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "element",
			Name:        "buffers_total",
			Help:        "Number of buffers processed by the element.",
			ConstLabels: labels,
		}, elementLabels),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "element",
			Name:        "bytes_total",
			Help:        "Number of tensor bytes processed by the element.",
			ConstLabels: labels,
		}, elementLabels),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "element",
			Name:        "dropped_total",
			Help:        "Number of buffers dropped before the element.",
			ConstLabels: labels,
		}, elementLabels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "element",
			Name:        "latency_seconds",
			Help:        "Time between two buffers processed by the element.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, elementLabels),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "state",
			Help:        "Current state of the pipeline.",
			ConstLabels: labels,
		}),
	}
	r.reg.MustRegister(r.buffers, r.bytes, r.dropped, r.latency, r.state)
	return &r
}

// Gatherer exposes collected metrics.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ResetFunc returns new Measure closure. This closure is needed to postpone metrics
// capture until element is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when buffer is processed.
type MeasureFunc func(bytes int64)

// Meter creates new meter closure to capture element counters.
func (r *Registry) Meter(element, kind string) ResetFunc {
	buffers := r.buffers.WithLabelValues(element, kind)
	bytes := r.bytes.WithLabelValues(element, kind)
	latency := r.latency.WithLabelValues(element, kind)
	return func() MeasureFunc {
		calledAt := time.Now()
		return func(n int64) {
			latency.Observe(time.Since(calledAt).Seconds())
			buffers.Inc()
			bytes.Add(float64(n))
			calledAt = time.Now()
		}
	}
}

// DropFunc counts dropped buffers.
type DropFunc func()

// Dropper returns closure to count buffers dropped before the element.
func (r *Registry) Dropper(element, kind string) DropFunc {
	c := r.dropped.WithLabelValues(element, kind)
	return c.Inc
}

// SetState records the numeric state of the pipeline.
func (r *Registry) SetState(s int) {
	r.state.Set(float64(s))
}

// Get returns counter values of the element.
func (r *Registry) Get(element string) map[string]float64 {
	m := make(map[string]float64)
	families, err := r.reg.Gather()
	if err != nil {
		return m
	}
	names := map[string]string{
		namespace + "_element_buffers_total":   BufferCounter,
		namespace + "_element_bytes_total":     ByteCounter,
		namespace + "_element_dropped_total":   DropCounter,
		namespace + "_element_latency_seconds": LatencyCounter,
	}
	for _, f := range families {
		counter, ok := names[f.GetName()]
		if !ok {
			continue
		}
		for _, metric := range f.GetMetric() {
			var matched bool
			for _, l := range metric.GetLabel() {
				if l.GetName() == "element" && l.GetValue() == element {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if h := metric.GetHistogram(); h != nil {
				if c := h.GetSampleCount(); c > 0 {
					m[counter] = h.GetSampleSum() / float64(c)
				}
				continue
			}
			m[counter] = metric.GetCounter().GetValue()
		}
	}
	return m
}
