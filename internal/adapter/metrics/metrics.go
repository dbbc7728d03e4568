package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

// ContentType is the content type of the text produced by Snapshot.
var ContentType = string(textFormat)

var textFormat = expfmt.NewFormat(expfmt.TypeTextPlain)

// HarvesterMetrics holds all Prometheus metrics for the harvester exporter.
// Each metric is updated atomically on its own; there is no lock spanning
// several of them.
type HarvesterMetrics struct {
	registry *prometheus.Registry

	LogLines        *prometheus.CounterVec
	HarvesterEvents prometheus.Counter
	PlotsEligible   prometheus.Counter
	PlotsProofs     prometheus.Counter
	PlotsTotal      prometheus.Gauge
	ScrapeDuration  *prometheus.HistogramVec
}

// Option configures HarvesterMetrics.
type Option func(*HarvesterMetrics)

// WithRuntimeCollectors registers the Go runtime and process collectors
// alongside the harvester metrics.
func WithRuntimeCollectors() Option {
	return func(m *HarvesterMetrics) {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

// NewHarvesterMetrics initializes the metrics and registers them on a
// registry owned by the returned value.
func NewHarvesterMetrics(opts ...Option) *HarvesterMetrics {
	m := &HarvesterMetrics{
		registry: prometheus.NewRegistry(),
		LogLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chia",
			Name:      "log_lines",
			Help:      "Number of total log lines parsed",
		}, []string{"level"}),
		HarvesterEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chia",
			Subsystem: "harvester",
			Name:      "events_total",
			Help:      "Total number of harvester eligibility reports.",
		}),
		PlotsEligible: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chia",
			Subsystem: "harvester",
			Name:      "plots_eligible",
			Help:      "Cumulative number of plots that passed the plot filter.",
		}),
		PlotsProofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chia",
			Subsystem: "harvester",
			Name:      "plots_proofs",
			Help:      "Cumulative number of proofs found.",
		}),
		PlotsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chia",
			Subsystem: "harvester",
			Name:      "plots_total",
			Help:      "Total number of plots reported by the most recent harvester event.",
		}),
		ScrapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chia",
			Subsystem: "exporter",
			Name:      "scrape_duration_seconds",
			Help:      "Time spent serving the metrics endpoint.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		m.LogLines,
		m.HarvesterEvents,
		m.PlotsEligible,
		m.PlotsProofs,
		m.PlotsTotal,
		m.ScrapeDuration,
	)

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *HarvesterMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HarvesterMetrics) IncLogLine(level string) {
	m.LogLines.WithLabelValues(level).Inc()
}

func (m *HarvesterMetrics) IncHarvesterEvents() {
	m.HarvesterEvents.Inc()
}

func (m *HarvesterMetrics) AddPlotsEligible(n uint64) {
	m.PlotsEligible.Add(float64(n))
}

func (m *HarvesterMetrics) AddPlotsProofs(n uint64) {
	m.PlotsProofs.Add(float64(n))
}

func (m *HarvesterMetrics) SetPlotsTotal(n int64) {
	m.PlotsTotal.Set(float64(n))
}

// Snapshot gathers every registered metric and renders it in the Prometheus
// text exposition format.
func (m *HarvesterMetrics) Snapshot() ([]byte, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, textFormat)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}
