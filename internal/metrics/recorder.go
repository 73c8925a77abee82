// Package metrics records build metrics.
//
// Components receive a Recorder; NoopRecorder is the default so that callers
// never check for nil. PrometheusRecorder collects into its own registry and
// can be written to a node_exporter textfile at the end of a build.
package metrics

import "time"

// Result is the outcome label of a unit or a build.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped" // dry run
)

// Recorder defines observability hooks for a build.
type Recorder interface {
	ObserveUnitDuration(kind string, d time.Duration)
	IncUnitResult(kind string, result Result)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(result Result)
	SetGraphSize(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveUnitDuration(string, time.Duration) {}
func (NoopRecorder) IncUnitResult(string, Result)              {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)        {}
func (NoopRecorder) IncBuildOutcome(Result)                    {}
func (NoopRecorder) SetGraphSize(int)                          {}
