// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import "time"

// NoopTracer is installed as the process-wide tracer when tracing is
// disabled through DD_TRACE_ENABLED. It holds no state and creates no
// writer, statsd client or background worker. The spans it returns are
// fully usable by instrumented code but detached: no aggregation, no
// sampling and no delivery happen.
type NoopTracer struct{}

var (
	_ Tracer = (*tracer)(nil)
	_ Tracer = (*NoopTracer)(nil)
)

// StartSpan implements Tracer.
func (*NoopTracer) StartSpan(name string, opts ...StartSpanOption) *Span {
	return newDetachedSpan(name, opts...)
}

// Trace implements Tracer. With no ambient binding kept there is no parent
// to inherit; the result is the same as StartSpan.
func (*NoopTracer) Trace(name string, opts ...StartSpanOption) *Span {
	return newDetachedSpan(name, opts...)
}

// Stop implements Tracer.
func (*NoopTracer) Stop() {}

func (*NoopTracer) stop(_ time.Duration) {}

func (*NoopTracer) activate(_ SpanReference) {}

func (*NoopTracer) active() SpanReference { return nil }

func (*NoopTracer) activeSpan() *Span { return nil }

func (*NoopTracer) activeRootSpan() *Span { return nil }

func (*NoopTracer) activeContext() *SpanContext { return nil }

func (*NoopTracer) onStartSpan(_ SpanHook) {}

func (*NoopTracer) deregisterOnStartSpan(_ SpanHook) {}

// newDetachedSpan builds a span that belongs to no tracer. Identity still
// honors the given parent so that instrumented call chains keep linking up;
// finishing stamps the duration and nothing else.
func newDetachedSpan(name string, opts ...StartSpanOption) *Span {
	var cfg StartSpanConfig
	for _, fn := range opts {
		fn(&cfg)
	}
	var traceID, parentID uint64
	if cfg.Parent != nil && cfg.Parent.TraceID() != 0 {
		traceID = cfg.Parent.TraceID()
		parentID = cfg.Parent.SpanID()
	}
	if traceID == 0 {
		traceID = randUint64()
	}
	s := newSpan(name, cfg.Service, cfg.Resource, traceID, randUint64(), parentID)
	s.spanType = cfg.SpanType
	if !cfg.StartTime.IsZero() {
		s.start = cfg.StartTime.UnixNano()
	}
	for k, v := range cfg.Tags {
		s.SetTag(k, v)
	}
	return s
}
