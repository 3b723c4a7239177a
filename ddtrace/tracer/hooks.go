// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"sync"

	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// SpanHook is a callback invoked with every span the tracer starts.
type SpanHook func(s *Span)

// hooks is a registry of observer callbacks. Registration is rare, emission
// happens on every span start, so reads take the read lock only.
type hooks struct {
	mu    sync.RWMutex
	start []SpanHook
}

func (h *hooks) register(fn SpanHook) {
	h.mu.Lock()
	h.start = append(h.start, fn)
	h.mu.Unlock()
}

// deregister removes the first hook registered at the address of fn.
func (h *hooks) deregister(fn SpanHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cur := range h.start {
		if sameFunc(cur, fn) {
			h.start = append(h.start[:i], h.start[i+1:]...)
			return
		}
	}
}

// emit runs the registered hooks. A panicking hook is recovered and logged;
// it never interrupts span creation.
func (h *hooks) emit(s *Span) {
	h.mu.RLock()
	fns := h.start
	h.mu.RUnlock()
	for _, fn := range fns {
		func() {
			defer func() {
				if err := recover(); err != nil {
					log.Error("hook panicked on span start: %v", err)
				}
			}()
			fn(s)
		}()
	}
}
