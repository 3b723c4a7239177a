// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/require"
)

// testTraceWriter records every batch handed to it, so tests can assert on
// exactly what the tracer would ship.
type testTraceWriter struct {
	mu      sync.Mutex
	batches [][]*Span
	stopped bool
	joined  bool
}

func (w *testTraceWriter) write(spans []*Span) {
	w.mu.Lock()
	w.batches = append(w.batches, spans)
	w.mu.Unlock()
}

func (w *testTraceWriter) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

func (w *testTraceWriter) join(_ time.Duration) bool {
	w.mu.Lock()
	w.joined = true
	w.mu.Unlock()
	return true
}

func (w *testTraceWriter) recreate() traceWriter { return &testTraceWriter{} }

func (w *testTraceWriter) isAlive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.stopped
}

// Batches returns a copy of the recorded batches.
func (w *testTraceWriter) Batches() [][]*Span {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([][]*Span, len(w.batches))
	copy(cp, w.batches)
	return cp
}

// Spans returns all recorded spans, in write order.
func (w *testTraceWriter) Spans() []*Span {
	w.mu.Lock()
	defer w.mu.Unlock()
	var all []*Span
	for _, b := range w.batches {
		all = append(all, b...)
	}
	return all
}

func (w *testTraceWriter) Reset() {
	w.mu.Lock()
	w.batches = nil
	w.mu.Unlock()
}

// newTestTracer returns a tracer writing to a recording writer, with statsd
// and the startup log disabled.
func newTestTracer(t *testing.T, opts ...StartOption) (*tracer, *testTraceWriter) {
	w := &testTraceWriter{}
	all := append([]StartOption{
		withTraceWriter(w),
		WithStatsdClient(&statsd.NoOpClient{}),
		WithLogStartup(false),
	}, opts...)
	tr, err := newTracer(all...)
	require.NoError(t, err)
	t.Cleanup(tr.Stop)
	return tr, w
}
