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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStatsd records gauge calls; everything else is a no-op.
type recordingStatsd struct {
	statsd.NoOpClient
	mu     sync.Mutex
	gauges map[string]float64
	tags   map[string][]string
}

func newRecordingStatsd() *recordingStatsd {
	return &recordingStatsd{
		gauges: make(map[string]float64),
		tags:   make(map[string][]string),
	}
}

func (r *recordingStatsd) Gauge(name string, value float64, tags []string, _ float64) error {
	r.mu.Lock()
	r.gauges[name] = value
	r.tags[name] = tags
	r.mu.Unlock()
	return nil
}

func (r *recordingStatsd) Gauges() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		cp[k] = v
	}
	return cp
}

func TestRuntimeMetricsReport(t *testing.T) {
	rec := newRecordingStatsd()
	w := newRuntimeMetricsWorker(rec, time.Hour, func() []string { return []string{"service:svc"} })
	w.report()
	gauges := rec.Gauges()
	for _, name := range []string{
		"runtime.go.num_goroutine",
		"runtime.go.mem_stats.heap_alloc",
		"runtime.go.mem_stats.num_gc",
	} {
		_, ok := gauges[name]
		assert.True(t, ok, "missing gauge %s", name)
	}
	rec.mu.Lock()
	assert.Equal(t, []string{"service:svc"}, rec.tags["runtime.go.num_goroutine"])
	rec.mu.Unlock()
}

func TestRuntimeMetricsWorkerLifecycle(t *testing.T) {
	rec := newRecordingStatsd()
	w := newRuntimeMetricsWorker(rec, 10*time.Millisecond, func() []string { return nil })
	w.start()
	w.start() // second start is a no-op
	assert.True(t, w.isRunning())
	require.Eventually(t, func() bool {
		return len(rec.Gauges()) > 0
	}, time.Second, 5*time.Millisecond)
	w.stopAndJoin()
	w.stopAndJoin() // idempotent
	assert.False(t, w.isRunning())
}

func TestTracerServiceTags(t *testing.T) {
	tr, _ := newTestTracer(t, WithService("svc"))
	tr.StartSpan("op", ServiceName("worker-svc"))
	tags := tr.serviceTags()
	assert.Contains(t, tags, "service:svc")
	assert.Contains(t, tags, "service:worker-svc")
}
