package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "cpm"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	unitDuration  *prom.HistogramVec
	unitResults   *prom.CounterVec
	buildDuration prom.Histogram
	buildOutcome  *prom.CounterVec
	graphSize     prom.Gauge
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the metrics and registers them with reg,
// or with a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		unitDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Duration of individual compiler invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		unitResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "unit_results_total",
			Help:      "Build unit results by module kind and outcome",
		}, []string{"kind", "result"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"result"}),
		graphSize: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_modules",
			Help:      "Number of modules in the last planned build graph",
		}),
	}
	reg.MustRegister(pr.unitDuration, pr.unitResults, pr.buildDuration, pr.buildOutcome, pr.graphSize)
	return pr
}

// Registry returns the registry the metrics are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) ObserveUnitDuration(kind string, d time.Duration) {
	if p == nil {
		return
	}
	p.unitDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUnitResult(kind string, result Result) {
	if p == nil {
		return
	}
	p.unitResults.WithLabelValues(kind, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(result Result) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetGraphSize(n int) {
	if p == nil {
		return
	}
	p.graphSize.Set(float64(n))
}

// WriteTextfile writes the collected metrics to path in the text exposition
// format, for the node_exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, p.reg)
}
