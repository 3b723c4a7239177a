// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import "context"

type contextKey struct{}

var activeSpanKey = contextKey{}

// ContextWithSpan returns a copy of the given context which includes the
// span s. This is the explicit propagation variant: the binding travels in
// the context value, snapshotted by value semantics at every derivation, and
// no ambient per-flow state is involved.
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, activeSpanKey, s)
}

// SpanFromContext returns the span contained in the given context, if any.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(activeSpanKey).(*Span)
	return s, ok
}

// StartSpanFromContext returns a new span parented to the span found in ctx,
// along with a derived context carrying the new span. If ctx holds no span,
// a new root is started.
func StartSpanFromContext(ctx context.Context, name string, opts ...StartSpanOption) (*Span, context.Context) {
	if s, ok := SpanFromContext(ctx); ok {
		opts = append(opts, ChildOf(s))
	}
	s := StartSpan(name, opts...)
	return s, ContextWithSpan(ctx, s)
}
