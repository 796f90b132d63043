// Package metrics is a small facade over a private Prometheus registry.
// Families are created lazily on first use; the label set of the first call
// fixes the family's label names.
package metrics

import (
	"bytes"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

type registry struct {
	mu        sync.Mutex
	reg       *prometheus.Registry
	counters  map[string]*prometheus.CounterVec
	gauges    map[string]*prometheus.GaugeVec
	summaries map[string]*prometheus.SummaryVec
}

var (
	regMu sync.RWMutex
	std   = newRegistry()
)

func newRegistry() *registry {
	return &registry{
		reg:       prometheus.NewRegistry(),
		counters:  map[string]*prometheus.CounterVec{},
		gauges:    map[string]*prometheus.GaugeVec{},
		summaries: map[string]*prometheus.SummaryVec{},
	}
}

func current() *registry {
	regMu.RLock()
	defer regMu.RUnlock()
	return std
}

// Reset drops every family. Intended for tests.
func Reset() {
	regMu.Lock()
	std = newRegistry()
	regMu.Unlock()
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r *registry) counter(name string, labels map[string]string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.counters[name]; ok {
		return v
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames(labels))
	if err := r.reg.Register(v); err != nil {
		return nil
	}
	r.counters[name] = v
	return v
}

func (r *registry) gauge(name string, labels map[string]string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.gauges[name]; ok {
		return v
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, labelNames(labels))
	if err := r.reg.Register(v); err != nil {
		return nil
	}
	r.gauges[name] = v
	return v
}

func (r *registry) summary(name string, labels map[string]string) *prometheus.SummaryVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.summaries[name]; ok {
		return v
	}
	v := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       name,
		Help:       name,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, labelNames(labels))
	if err := r.reg.Register(v); err != nil {
		return nil
	}
	r.summaries[name] = v
	return v
}

// Inc adds one to a counter. Calls with a label set that does not match the
// family's are dropped.
func Inc(name string, labels map[string]string) {
	v := current().counter(name, labels)
	if v == nil {
		return
	}
	if c, err := v.GetMetricWith(labels); err == nil {
		c.Inc()
	}
}

// Add adds a non-negative delta to a counter.
func Add(name string, labels map[string]string, delta float64) {
	if delta < 0 {
		return
	}
	v := current().counter(name, labels)
	if v == nil {
		return
	}
	if c, err := v.GetMetricWith(labels); err == nil {
		c.Add(delta)
	}
}

// AddGauge adds delta (which may be negative) to a gauge.
func AddGauge(name string, labels map[string]string, delta float64) {
	v := current().gauge(name, labels)
	if v == nil {
		return
	}
	if g, err := v.GetMetricWith(labels); err == nil {
		g.Add(delta)
	}
}

// SetGauge sets a gauge to an absolute value.
func SetGauge(name string, labels map[string]string, val float64) {
	v := current().gauge(name, labels)
	if v == nil {
		return
	}
	if g, err := v.GetMetricWith(labels); err == nil {
		g.Set(val)
	}
}

// ObserveSummary records one observation.
func ObserveSummary(name string, labels map[string]string, val float64) {
	v := current().summary(name, labels)
	if v == nil {
		return
	}
	if o, err := v.GetMetricWith(labels); err == nil {
		o.Observe(val)
	}
}

// DumpProm renders every family in the Prometheus text format.
func DumpProm() string {
	mfs, err := current().reg.Gather()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

// Handler serves the current registry over HTTP.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		promhttp.HandlerFor(current().reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
