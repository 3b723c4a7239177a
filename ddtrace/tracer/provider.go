// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import "sync"

// ContextProvider binds the active span or context to the current execution
// flow, so that new spans automatically parent to the enclosing one. The
// default provider keys the binding by goroutine; NoopContextProvider keeps
// no ambient state at all, for callers who thread the parent explicitly
// (see ContextWithSpan / StartSpanFromContext).
type ContextProvider interface {
	// Activate sets the binding for the current execution flow and returns
	// its argument. A nil reference clears the binding.
	Activate(ref SpanReference) SpanReference

	// Active returns the current binding, or nil.
	Active() SpanReference
}

// GoroutineContextProvider binds the active span to the calling goroutine.
// Nothing propagates to goroutines started with the go statement: a new
// goroutine starts with no binding. Use Spawn to start a goroutine that
// inherits a snapshot of the caller's binding, or pass a Context/Span
// explicitly.
type GoroutineContextProvider struct {
	mu     sync.RWMutex
	active map[uint64]SpanReference
}

// NewGoroutineContextProvider returns a ContextProvider keyed by goroutine.
func NewGoroutineContextProvider() *GoroutineContextProvider {
	return &GoroutineContextProvider{active: make(map[uint64]SpanReference)}
}

// Activate implements ContextProvider.
func (p *GoroutineContextProvider) Activate(ref SpanReference) SpanReference {
	gid := goroutineID()
	p.mu.Lock()
	if ref == nil {
		delete(p.active, gid)
	} else {
		p.active[gid] = ref
	}
	p.mu.Unlock()
	return ref
}

// Active implements ContextProvider. The read path takes only the read lock,
// so concurrent reads do not serialize on each other; Activate takes the
// write lock.
func (p *GoroutineContextProvider) Active() SpanReference {
	gid := goroutineID()
	p.mu.RLock()
	ref := p.active[gid]
	p.mu.RUnlock()
	return ref
}

// Spawn runs fn in a new goroutine carrying a snapshot of the caller's
// active binding. The copy is made at spawn time: a live span is snapshotted
// to its SpanContext, so the child flow parents correctly to it but cannot
// reactivate or mutate it. Rebinding in either flow afterwards does not
// affect the other.
func (p *GoroutineContextProvider) Spawn(fn func()) {
	var snapshot SpanReference
	switch ref := p.Active().(type) {
	case *Span:
		snapshot = ref.Context()
	case *SpanContext:
		snapshot = ref
	}
	go func() {
		if snapshot != nil {
			p.Activate(snapshot)
			defer p.Activate(nil)
		}
		fn()
	}()
}

// NoopContextProvider holds no ambient binding. Activate is a pass-through
// and Active always returns nil: parents must be provided explicitly via
// ChildOf or carried in a context.Context.
type NoopContextProvider struct{}

// Activate implements ContextProvider.
func (NoopContextProvider) Activate(ref SpanReference) SpanReference { return ref }

// Active implements ContextProvider.
func (NoopContextProvider) Active() SpanReference { return nil }
