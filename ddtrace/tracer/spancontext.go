// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

// SpanReference is the closed set of values that can act as the parent of a
// new span or as the active binding of an execution flow: a live *Span, or a
// *SpanContext snapshot standing in for a span that lives elsewhere (another
// goroutine, or the upstream service of a distributed trace).
//
// The tracer branches on the concrete type: parent reactivation on finish
// only applies to live spans, while contexts can carry a sampling decision
// made upstream into the local trace.
type SpanReference interface {
	// TraceID returns the ID of the trace this reference belongs to. A zero
	// trace ID is reserved and means "no parent".
	TraceID() uint64

	// SpanID returns the referenced span's ID.
	SpanID() uint64

	isSpanReference()
}

var (
	_ SpanReference = (*Span)(nil)
	_ SpanReference = (*SpanContext)(nil)
)

// SpanContext is a lightweight snapshot of a span's identity together with
// the trace metadata that must survive process and service boundaries. It is
// what gets extracted from incoming request headers, and what should be
// handed to code running in another execution flow when the live span cannot
// be shared.
type SpanContext struct {
	traceID uint64
	spanID  uint64

	hasPriority bool
	priority    int
	origin      string
}

// SpanContextConfig holds the properties used to build a SpanContext.
type SpanContextConfig struct {
	// TraceID and SpanID identify the remote span that new local spans will
	// be parented to.
	TraceID uint64
	SpanID  uint64

	// SamplingPriority carries the keep/drop decision made upstream, if one
	// was made. Leave nil when the decision is still open.
	SamplingPriority *int

	// Origin marks the provenance of the trace (e.g. "synthetics").
	Origin string
}

// NewSpanContext creates a SpanContext from cfg. It is typically used to
// continue a trace whose head arrived from another process.
func NewSpanContext(cfg SpanContextConfig) *SpanContext {
	ctx := &SpanContext{
		traceID: cfg.TraceID,
		spanID:  cfg.SpanID,
		origin:  cfg.Origin,
	}
	if cfg.SamplingPriority != nil {
		ctx.hasPriority = true
		ctx.priority = *cfg.SamplingPriority
	}
	return ctx
}

// TraceID implements SpanReference.
func (c *SpanContext) TraceID() uint64 { return c.traceID }

// SpanID implements SpanReference.
func (c *SpanContext) SpanID() uint64 { return c.spanID }

// SamplingPriority returns the propagated priority and whether one was set.
func (c *SpanContext) SamplingPriority() (p int, ok bool) {
	return c.priority, c.hasPriority
}

// Origin returns the trace's provenance marker, or an empty string.
func (c *SpanContext) Origin() string { return c.origin }

func (*SpanContext) isSpanReference() {}
