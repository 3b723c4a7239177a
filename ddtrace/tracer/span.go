// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"gopkg.in/DataDog/dd-trace-core.v1/ddtrace/ext"
)

// Span represents a computation. Callers must call Finish when a span is
// complete to ensure it gets submitted; finishing is idempotent. A span is
// mutable until finished, after which only the flush path reads it.
type Span struct {
	mu sync.RWMutex

	name     string
	service  string
	resource string
	spanType string

	traceID  uint64
	spanID   uint64
	parentID uint64

	start    int64 // span start, nanoseconds since epoch
	duration int64 // valid once finished is true
	error    int32

	meta    map[string]string
	metrics map[string]float64

	finished bool

	// parent is a non-owning back-reference to the local parent span, used
	// only to decide which span to reactivate when this one finishes. It is
	// nil for root spans and spans continued from a SpanContext.
	parent *Span

	tracer *tracer
}

func newSpan(name, service, resource string, traceID, spanID, parentID uint64) *Span {
	return &Span{
		name:     name,
		service:  service,
		resource: resource,
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		start:    now(),
		meta:     map[string]string{},
		metrics:  map[string]float64{},
	}
}

// TraceID implements SpanReference.
func (s *Span) TraceID() uint64 { return s.traceID }

// SpanID implements SpanReference.
func (s *Span) SpanID() uint64 { return s.spanID }

func (*Span) isSpanReference() {}

// ParentID returns the ID of this span's parent, or 0 for a root span.
func (s *Span) ParentID() uint64 { return s.parentID }

// Name returns the span's operation name.
func (s *Span) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Service returns the name of the service this span measures.
func (s *Span) Service() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.service
}

// hasVersionTag reports whether the span carries the version tag.
func (s *Span) hasVersionTag() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.meta[ext.Version]
	return ok
}

// Finished reports whether Finish was called on the span.
func (s *Span) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished
}

// Context returns a snapshot of the span usable as a parent in another
// execution flow or for propagation to a downstream service. The snapshot
// carries the trace's current sampling priority and origin.
func (s *Span) Context() *SpanContext {
	ctx := &SpanContext{
		traceID: s.traceID,
		spanID:  s.spanID,
	}
	if s.tracer != nil {
		if t := s.tracer.traces.get(s.traceID); t != nil {
			p, ok, origin := t.samplingDecision()
			ctx.priority, ctx.hasPriority = p, ok
			ctx.origin = origin
		}
	}
	return ctx
}

// SetTag adds a set of key/value metadata to the span. Numeric values are
// stored as metrics, everything else is stringified into meta.
func (s *Span) SetTag(key string, value interface{}) {
	switch key {
	// Manual decisions go to the trace, not the span; handled before taking
	// the span lock so the span and trace locks never nest.
	case ext.ManualKeep:
		if v, ok := value.(bool); !ok || v {
			s.setSamplingPriority(ext.PriorityUserKeep)
		}
		return
	case ext.ManualDrop:
		if v, ok := value.(bool); !ok || v {
			s.setSamplingPriority(ext.PriorityUserReject)
		}
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	switch key {
	case ext.Error:
		s.setTagError(value)
		return
	case ext.SpanName:
		s.name = fmt.Sprint(value)
		return
	case ext.ServiceName:
		s.service = fmt.Sprint(value)
		return
	case ext.ResourceName:
		s.resource = fmt.Sprint(value)
		return
	case ext.SpanType:
		s.spanType = fmt.Sprint(value)
		return
	}
	if v, ok := toFloat64(value); ok {
		s.metrics[key] = v
		return
	}
	switch v := value.(type) {
	case string:
		s.meta[key] = v
	case bool:
		s.meta[key] = fmt.Sprintf("%t", v)
	case fmt.Stringer:
		s.meta[key] = v.String()
	default:
		s.meta[key] = fmt.Sprint(v)
	}
}

// SetMetric sets a float64 measurement on the span.
func (s *Span) SetMetric(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.metrics[key] = value
}

// setMeta writes a meta entry regardless of the finished flag. The flush
// path uses it to stamp trace-level metadata onto chunk roots.
func (s *Span) setMeta(key, value string) {
	s.mu.Lock()
	s.meta[key] = value
	s.mu.Unlock()
}

// setMetric writes a metric entry regardless of the finished flag. The flush
// path uses it to stamp trace-level metadata onto chunk roots.
func (s *Span) setMetric(key string, value float64) {
	s.mu.Lock()
	s.metrics[key] = value
	s.mu.Unlock()
}

// setTagError handles the special ext.Error tag, accepting bools, errors and
// strings, filling the derived error.* meta entries.
func (s *Span) setTagError(value interface{}) {
	switch v := value.(type) {
	case bool:
		if v {
			s.error = 1
		} else {
			s.error = 0
		}
	case error:
		s.error = 1
		s.meta[ext.ErrorMsg] = v.Error()
		s.meta[ext.ErrorType] = fmt.Sprintf("%T", v)
	case nil:
		s.error = 0
	default:
		s.error = 1
		s.meta[ext.ErrorMsg] = fmt.Sprint(v)
	}
}

// setSamplingPriority forwards a manual keep/drop decision to the span's
// trace.
func (s *Span) setSamplingPriority(priority int) {
	if s.tracer == nil {
		return
	}
	if t := s.tracer.traces.get(s.traceID); t != nil {
		t.setSamplingPriority(priority)
	}
}

func toFloat64(value interface{}) (f float64, ok bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		// large uint64 values lose precision as float64; keep them as meta
		if v > math.MaxInt64 {
			return 0, false
		}
		return float64(v), true
	default:
		return 0, false
	}
}

// FinishOption is a configuration option for FinishSpan. It is aliased in order
// to help godoc group all the functions returning it together.
type FinishOption func(cfg *finishConfig)

type finishConfig struct {
	finishTime time.Time
	err        error
}

// FinishTime sets the given time as the finishing time for the span.
func FinishTime(t time.Time) FinishOption {
	return func(cfg *finishConfig) {
		cfg.finishTime = t
	}
}

// WithError marks the span as having had the error err occur.
func WithError(err error) FinishOption {
	return func(cfg *finishConfig) {
		cfg.err = err
	}
}

// Finish closes this Span (but not its children) providing the duration of
// its part of the tracing session. Calling Finish a second time is a no-op.
func (s *Span) Finish(opts ...FinishOption) {
	var cfg finishConfig
	for _, fn := range opts {
		fn(&cfg)
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if cfg.err != nil {
		s.setTagError(cfg.err)
	}
	t := cfg.finishTime
	if t.IsZero() {
		s.duration = now() - s.start
	} else {
		s.duration = t.UnixNano() - s.start
	}
	if s.duration < 0 {
		s.duration = 0
	}
	s.finished = true
	tr := s.tracer
	s.mu.Unlock()

	if tr != nil {
		tr.finishSpan(s)
	}
}

// String returns a human readable representation of the span, one field per
// line. Used by the tracer's debug logging.
func (s *Span) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := []string{
		fmt.Sprintf("Name: %s", s.name),
		fmt.Sprintf("Service: %s", s.service),
		fmt.Sprintf("Resource: %s", s.resource),
		fmt.Sprintf("TraceID: %d", s.traceID),
		fmt.Sprintf("SpanID: %d", s.spanID),
		fmt.Sprintf("ParentID: %d", s.parentID),
		fmt.Sprintf("Start: %s", time.Unix(0, s.start)),
		fmt.Sprintf("Duration: %s", time.Duration(s.duration)),
		fmt.Sprintf("Error: %d", s.error),
		fmt.Sprintf("Type: %s", s.spanType),
		"Tags:",
	}
	for k, v := range s.meta {
		lines = append(lines, fmt.Sprintf("\t%s:%s", k, v))
	}
	for k, v := range s.metrics {
		lines = append(lines, fmt.Sprintf("\t%s:%f", k, v))
	}
	return strings.Join(lines, "\n")
}
