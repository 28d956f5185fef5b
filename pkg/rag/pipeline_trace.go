package rag

import (
	"sync"
	"time"
)

type TraceEventKind string

const (
	TraceEventStageFinished TraceEventKind = "stage_finished"
	TraceEventHintOverride  TraceEventKind = "hint_override"
	TraceEventEarlyExit     TraceEventKind = "early_exit"
	TraceEventFallback      TraceEventKind = "fallback"
)

// TraceEvent is an extensible event envelope for pipeline tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	Stage      string
	Detail     string
	DurationMs int64
	Error      string
}

// Tracer is a sink for pipeline tracing events.
//
// Implementers can forward events to logs, telemetry, or custom
// post-processing pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func recordStage(t Tracer, stage string, started time.Time, err error) {
	if t == nil {
		return
	}
	event := TraceEvent{
		Kind:       TraceEventStageFinished,
		Stage:      stage,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	t.Record(event)
}

func recordEarlyExit(t Tracer, stage, detail string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventEarlyExit, Stage: stage, Detail: detail})
}

func recordFallback(t Tracer, stage, detail string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventFallback, Stage: stage, Detail: detail})
}

// PipelineTrace collects per-stage timings and the notable decisions of one
// pipeline run (fallbacks taken, early exits, hint overrides).
//
// PipelineTrace is safe for concurrent use.
type PipelineTrace struct {
	mu     sync.Mutex
	events []TraceEvent
}

type PipelineTraceSnapshot struct {
	Events []TraceEvent
}

func NewPipelineTrace() *PipelineTrace {
	return &PipelineTrace{}
}

func (p *PipelineTrace) Record(event TraceEvent) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Snapshot returns a copy of the recorded events in arrival order.
func (p *PipelineTrace) Snapshot() PipelineTraceSnapshot {
	if p == nil {
		return PipelineTraceSnapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]TraceEvent, len(p.events))
	copy(events, p.events)
	return PipelineTraceSnapshot{Events: events}
}

// StageDurations sums recorded durations per stage name.
func (p *PipelineTrace) StageDurations() map[string]int64 {
	snapshot := p.Snapshot()
	durations := make(map[string]int64, len(snapshot.Events))
	for _, event := range snapshot.Events {
		if event.Kind == TraceEventStageFinished {
			durations[event.Stage] += event.DurationMs
		}
	}
	return durations
}
