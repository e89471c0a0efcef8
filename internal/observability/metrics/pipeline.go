// Package metrics emits standardised pipeline metrics over a StatsD sink.
package metrics

import (
	"time"

	"github.com/smeltapp/smeltd/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// PipelineSink translates pipeline lifecycle events into StatsD counters and
// timings. A nil inner sink makes every method a no-op.
type PipelineSink struct {
	sink statsd.Sink
}

// NewPipelineSink wraps a StatsD sink for pipeline metric emission.
func NewPipelineSink(sink statsd.Sink) *PipelineSink {
	return &PipelineSink{sink: sink}
}

// JobCompleted records one successful job run and its wall time in seconds.
func (p *PipelineSink) JobCompleted(duration float64) {
	if p.sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	p.sink.Count("pipeline.job", 1, tags)
	p.sink.Timing("pipeline.job_duration", seconds(duration), CloneTags(tags))
}

// JobFailed records one failed job run tagged with its taxonomy kind.
func (p *PipelineSink) JobFailed(kind string) {
	if p.sink == nil {
		return
	}
	tags := map[string]string{"result": ResultError}
	if kind != "" {
		tags["error_kind"] = kind
	}
	p.sink.Count("pipeline.job", 1, tags)
}

// StageDuration records one stage's wall time in seconds.
func (p *PipelineSink) StageDuration(stage string, duration float64) {
	if p.sink == nil {
		return
	}
	p.sink.Timing("pipeline.stage_duration", seconds(duration), map[string]string{
		"stage": stage,
	})
}

func seconds(d float64) time.Duration {
	return time.Duration(d * float64(time.Second))
}

// CloneTags creates a shallow copy of a tag map, filtering out empty maps.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
