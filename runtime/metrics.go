package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/wasm-sandbox/errors"
)

const metricsNamespace = "wasm_sandbox"

type metrics struct {
	compiles     *prometheus.CounterVec
	modules      prometheus.Gauge
	artifacts    prometheus.Gauge
	instances    prometheus.Gauge
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	memoryPages  prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		compiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "compiles_total",
				Help:      "Module compilations by result (compiled, cached, error)",
			},
			[]string{"result"},
		),
		modules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "modules",
			Help:      "Registered module handles",
		}),
		artifacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "compiled_artifacts",
			Help:      "Distinct compiled artifacts held by the runtime",
		}),
		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "instances",
			Help:      "Live instances",
		}),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_total",
				Help:      "Export invocations by outcome",
			},
			[]string{"outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of export invocations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"export"},
		),
		memoryPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "memory_grown_pages_total",
			Help:      "Pages added through GrowMemory",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.compiles, m.modules, m.artifacts, m.instances, m.calls, m.callDuration, m.memoryPages,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// observeCall counts every call by outcome. Durations are recorded only for
// names that resolved to a function export, so the export label stays
// bounded by what the loaded modules declare.
func (m *metrics) observeCall(export string, start time.Time, err error) {
	if errors.KindOf(err) != errors.KindExportNotFound {
		m.callDuration.WithLabelValues(export).Observe(time.Since(start).Seconds())
	}
	outcome := "ok"
	if err != nil {
		outcome = string(errors.KindOf(err))
		if outcome == "" {
			outcome = "unknown"
		}
	}
	m.calls.WithLabelValues(outcome).Inc()
}
