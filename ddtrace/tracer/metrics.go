// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// defaultMetricsReportInterval specifies the interval at which runtime
// metrics are reported.
const defaultMetricsReportInterval = 10 * time.Second

// runtimeMetricsWorker periodically reports Go runtime gauges through the
// statsd client. Its liveness also gates the language tag stamped on root
// spans of internal application traces, which the backend uses to correlate
// traces with these metrics.
type runtimeMetricsWorker struct {
	statsd   statsd.ClientInterface
	interval time.Duration

	// tags returns the current constant tag set; re-evaluated every report
	// so that newly seen services are reflected without restarting.
	tags func() []string

	stop_   chan struct{}
	done    chan struct{}
	running atomic.Bool
}

func newRuntimeMetricsWorker(client statsd.ClientInterface, interval time.Duration, tags func() []string) *runtimeMetricsWorker {
	return &runtimeMetricsWorker{
		statsd:   client,
		interval: interval,
		tags:     tags,
		stop_:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *runtimeMetricsWorker) start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	log.Debug("starting runtime metrics collection, interval %s", w.interval)
	go w.run()
}

func (w *runtimeMetricsWorker) run() {
	defer close(w.done)
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			w.report()
		case <-w.stop_:
			return
		}
	}
}

func (w *runtimeMetricsWorker) report() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	var gc debug.GCStats
	debug.ReadGCStats(&gc)

	tags := w.tags()
	s := w.statsd
	s.Gauge("runtime.go.num_cpu", float64(runtime.NumCPU()), tags, 1)
	s.Gauge("runtime.go.num_goroutine", float64(runtime.NumGoroutine()), tags, 1)
	s.Gauge("runtime.go.num_cgo_call", float64(runtime.NumCgoCall()), tags, 1)
	s.Gauge("runtime.go.mem_stats.alloc", float64(ms.Alloc), tags, 1)
	s.Gauge("runtime.go.mem_stats.total_alloc", float64(ms.TotalAlloc), tags, 1)
	s.Gauge("runtime.go.mem_stats.sys", float64(ms.Sys), tags, 1)
	s.Gauge("runtime.go.mem_stats.heap_alloc", float64(ms.HeapAlloc), tags, 1)
	s.Gauge("runtime.go.mem_stats.heap_sys", float64(ms.HeapSys), tags, 1)
	s.Gauge("runtime.go.mem_stats.heap_idle", float64(ms.HeapIdle), tags, 1)
	s.Gauge("runtime.go.mem_stats.heap_inuse", float64(ms.HeapInuse), tags, 1)
	s.Gauge("runtime.go.mem_stats.heap_released", float64(ms.HeapReleased), tags, 1)
	s.Gauge("runtime.go.mem_stats.heap_objects", float64(ms.HeapObjects), tags, 1)
	s.Gauge("runtime.go.mem_stats.next_gc", float64(ms.NextGC), tags, 1)
	s.Gauge("runtime.go.mem_stats.num_gc", float64(ms.NumGC), tags, 1)
	s.Gauge("runtime.go.mem_stats.gc_cpu_fraction", ms.GCCPUFraction, tags, 1)
	if gc.NumGC > 0 && len(gc.Pause) > 0 {
		s.Gauge("runtime.go.gc_stats.last_pause", float64(gc.Pause[0]), tags, 1)
	}
}

// stopAndJoin stops the worker and waits for the reporting goroutine to
// exit. Safe to call on a never-started worker.
func (w *runtimeMetricsWorker) stopAndJoin() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	close(w.stop_)
	<-w.done
}

func (w *runtimeMetricsWorker) isRunning() bool {
	return w.running.Load()
}
