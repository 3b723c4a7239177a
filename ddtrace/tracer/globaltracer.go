// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"sync"
	"time"

	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// Tracer is what the process-wide slot holds: the real tracer, or NoopTracer
// when tracing is disabled. The unexported methods seal the interface; user
// code interacts with it through the package-level functions.
type Tracer interface {
	// StartSpan starts a new span with the given operation name and options.
	StartSpan(name string, opts ...StartSpanOption) *Span

	// Trace starts a span as the child of the currently active binding and
	// activates it.
	Trace(name string, opts ...StartSpanOption) *Span

	// Stop flushes pending traces and shuts the tracer down.
	Stop()

	stop(timeout time.Duration)
	activate(ref SpanReference)
	active() SpanReference
	activeSpan() *Span
	activeRootSpan() *Span
	activeContext() *SpanContext
	onStartSpan(fn SpanHook)
	deregisterOnStartSpan(fn SpanHook)
}

var (
	globalMu     sync.RWMutex
	globalTracer Tracer
)

// Start starts the process-wide tracer with the given set of options. It
// must be called before any span is started; a second call reconfigures,
// stopping the previous instance after the new one is in place. When tracing
// is disabled through DD_TRACE_ENABLED, a NoopTracer is installed instead:
// no writer, statsd client or background worker is created. Start returns an
// error only on invalid configuration.
func Start(opts ...StartOption) error {
	c, err := newConfig(opts...)
	if err != nil {
		return err
	}
	var t Tracer
	if c.enabled {
		t = newTracerFromConfig(c)
	} else {
		log.Debug("tracing disabled via DD_TRACE_ENABLED: installing no-op tracer")
		t = &NoopTracer{}
	}
	globalMu.Lock()
	old := globalTracer
	globalTracer = t
	globalMu.Unlock()
	if old != nil {
		old.stop(0)
	}
	return nil
}

// Stop stops the started tracer. Subsequent calls are valid but become
// no-op. Blocks until in-flight traces flushed.
func Stop() {
	StopWithTimeout(0)
}

// StopWithTimeout stops the started tracer, waiting at most timeout for the
// writer to flush. A zero timeout waits without bound.
func StopWithTimeout(timeout time.Duration) {
	globalMu.Lock()
	t := globalTracer
	globalTracer = nil
	globalMu.Unlock()
	if t != nil {
		t.stop(timeout)
	}
}

func getGlobalTracer() Tracer {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalTracer
}

// StartSpan starts a new span with the given operation name and options. A
// span started before Start is detached: it can be used and finished, but
// is never delivered.
func StartSpan(name string, opts ...StartSpanOption) *Span {
	t := getGlobalTracer()
	if t == nil {
		log.Debug("StartSpan called before Start; span %q will not be delivered", name)
		return newDetachedSpan(name, opts...)
	}
	return t.StartSpan(name, opts...)
}

// Trace starts a span as the child of the currently active binding and
// activates it, so that spans started later on the same execution flow
// parent to it automatically.
func Trace(name string, opts ...StartSpanOption) *Span {
	t := getGlobalTracer()
	if t == nil {
		return StartSpan(name, opts...)
	}
	return t.Trace(name, opts...)
}

// Activate makes ref the active binding of the current execution flow.
// Activating a *SpanContext continues a trace whose head lives elsewhere:
// its sampling priority and origin apply to the local spans. Passing nil
// clears the binding.
func Activate(ref SpanReference) {
	if t := getGlobalTracer(); t != nil {
		t.activate(ref)
	}
}

// Active returns the current binding of the calling execution flow: a live
// *Span, a *SpanContext, or nil.
func Active() SpanReference {
	if t := getGlobalTracer(); t != nil {
		return t.active()
	}
	return nil
}

// ActiveSpan returns the active binding if it is a live span on this
// process, or nil.
func ActiveSpan() *Span {
	if t := getGlobalTracer(); t != nil {
		return t.activeSpan()
	}
	return nil
}

// ActiveRootSpan returns the root span of the current execution's trace.
// Useful for attaching information related to the trace as a whole.
func ActiveRootSpan() *Span {
	if t := getGlobalTracer(); t != nil {
		return t.activeRootSpan()
	}
	return nil
}

// ActiveContext returns a snapshot of the active binding, suitable for
// handing to another execution flow or serializing towards a downstream
// service. Returns nil when nothing is active.
func ActiveContext() *SpanContext {
	if t := getGlobalTracer(); t != nil {
		return t.activeContext()
	}
	return nil
}

// OnStartSpan registers a hook called with every span the tracer starts.
func OnStartSpan(fn SpanHook) {
	if t := getGlobalTracer(); t != nil {
		t.onStartSpan(fn)
	}
}

// DeregisterOnStartSpan removes a hook previously registered with
// OnStartSpan.
func DeregisterOnStartSpan(fn SpanHook) {
	if t := getGlobalTracer(); t != nil {
		t.deregisterOnStartSpan(fn)
	}
}
