// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"gopkg.in/DataDog/dd-trace-core.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/globalconfig"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// internalSpanTypes are the span types considered internal to an
// application, as opposed to describing a call into another system. An empty
// span type counts as internal. Root spans of these types get correlated
// with runtime metrics through the language tag, and are the only ones
// eligible for the version tag.
var internalSpanTypes = map[string]bool{
	"":                   true,
	ext.SpanTypeCustom:   true,
	ext.SpanTypeTemplate: true,
	ext.SpanTypeWeb:      true,
	ext.SpanTypeWorker:   true,
}

// Filter processes a finished batch before it is handed to the writer. It
// may mutate the batch or return an empty one to drop it.
type Filter interface {
	ProcessTrace(spans []*Span) []*Span
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(spans []*Span) []*Span

// ProcessTrace implements Filter.
func (f FilterFunc) ProcessTrace(spans []*Span) []*Span { return f(spans) }

// tracer creates, samples and submits spans that measure the execution time
// of sections of code. Applications use the package-level API backed by a
// process-wide instance; instances are created directly only in tests.
type tracer struct {
	config *config

	// traces indexes the process' open traces by ID.
	traces *traceStore

	writer traceWriter

	statsd statsd.ClientInterface

	// prioritySampler adjusts keep/drop priorities using service rates fed
	// back by the agent. nil when priority sampling is disabled.
	prioritySampler *prioritySampler

	hooks hooks

	// pid is the process ID observed at creation or at the last fork
	// reconciliation. Compared against os.Getpid on every span start.
	pid atomic.Int64

	// forkMu serializes fork reconciliation.
	forkMu sync.Mutex

	// servicesMu guards services, the set of service names seen on internal
	// spans. New entries refresh the constant statsd tag set.
	servicesMu sync.Mutex
	services   map[string]struct{}

	rtWorker *runtimeMetricsWorker

	stopOnce sync.Once
}

// newTracer creates a tracer from the given set of options. Configuration
// faults (malformed URLs, unknown schemes) surface here; nothing raised
// afterwards reaches the span API.
func newTracer(opts ...StartOption) (*tracer, error) {
	c, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newTracerFromConfig(c), nil
}

// newTracerFromConfig builds the tracer for an already validated config:
// statsd client, writer and optional background workers included. Callers
// that honor DD_TRACE_ENABLED must branch to NoopTracer before getting here.
func newTracerFromConfig(c *config) *tracer {
	statsdClient, err := newStatsdClient(c)
	if err != nil {
		log.Warn("unable to create statsd client: %v; health metrics disabled", err)
	}
	t := &tracer{
		config:   c,
		traces:   newTraceStore(),
		statsd:   statsdClient,
		services: make(map[string]struct{}),
	}
	t.pid.Store(int64(os.Getpid()))
	if c.prioritySampling {
		t.prioritySampler = newPrioritySampler(c.env)
	}
	t.rtWorker = newRuntimeMetricsWorker(statsdClient, defaultMetricsReportInterval, t.serviceTags)
	switch {
	case c.traceWriter != nil:
		t.writer = c.traceWriter
	case c.logToStdout:
		t.writer = newLogTraceWriter(statsdClient)
	default:
		t.writer = newAgentTraceWriter(c, t.prioritySampler, statsdClient)
	}
	if c.runtimeMetrics {
		t.rtWorker.start()
	}
	t.statsd.Incr("datadog.tracer.started", nil, 1)
	if c.logStartup || c.debug {
		logStartup(t)
	}
	return t
}

// StartSpanOption is a configuration option for StartSpan.
type StartSpanOption func(cfg *StartSpanConfig)

// StartSpanConfig holds the configuration for starting a new span.
type StartSpanConfig struct {
	// Parent is the reference the new span will be a child of. When nil,
	// the span becomes the root of a new trace.
	Parent SpanReference

	// Service, Resource and SpanType set the corresponding span fields.
	Service  string
	Resource string
	SpanType string

	// StartTime overrides the span's start time.
	StartTime time.Time

	// NoActivate prevents the span from becoming the active binding of the
	// current execution flow.
	NoActivate bool

	// Tags to set on the new span.
	Tags map[string]interface{}
}

// ChildOf tells StartSpan to use the given reference as a parent. It
// accepts a live *Span as well as a *SpanContext carried over from another
// execution flow or extracted from an incoming request.
func ChildOf(ref SpanReference) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.Parent = ref
	}
}

// ServiceName sets the given service name on the started span.
func ServiceName(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.Service = name
	}
}

// ResourceName sets the given resource name on the started span.
func ResourceName(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.Resource = name
	}
}

// SpanType sets the given span type on the started span.
func SpanType(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.SpanType = name
	}
}

// StartTime sets a custom time as the start time for the created span.
func StartTime(t time.Time) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.StartTime = t
	}
}

// Tag sets the given key/value pair as a tag on the started span.
func Tag(k string, v interface{}) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = map[string]interface{}{}
		}
		cfg.Tags[k] = v
	}
}

// NoActivation keeps the started span out of the ambient active binding.
// The span still parents normally; it just will not become the implicit
// parent of spans started later on this execution flow.
func NoActivation() StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.NoActivate = true
	}
}

// StartSpan creates, configures and returns a new span with the given name.
func (t *tracer) StartSpan(name string, options ...StartSpanOption) *Span {
	var cfg StartSpanConfig
	for _, fn := range options {
		fn(&cfg)
	}
	t.checkNewProcess()

	var parent *Span
	var traceID, parentID uint64
	if cfg.Parent != nil && cfg.Parent.TraceID() != 0 {
		// a zero trace ID is reserved and treated as "no parent"
		traceID = cfg.Parent.TraceID()
		parentID = cfg.Parent.SpanID()
		if p, ok := cfg.Parent.(*Span); ok {
			parent = p
		}
	}

	// Service precedence: explicit argument, then the parent span's
	// service, then the globally configured one.
	service := cfg.Service
	if service == "" {
		if parent != nil {
			service = parent.Service()
		} else {
			service = t.config.serviceName
		}
	}

	root := traceID == 0
	if root {
		traceID = randUint64()
	}
	span := newSpan(name, service, cfg.Resource, traceID, randUint64(), parentID)
	span.spanType = cfg.SpanType
	span.parent = parent
	span.tracer = t
	if !cfg.StartTime.IsZero() {
		span.start = cfg.StartTime.UnixNano()
	}

	tr := t.traces.getOrCreate(traceID)
	tr.addSpan(span)

	if root {
		t.sample(span, tr)
		span.setMetric(ext.Pid, float64(t.pid.Load()))
		span.setMeta(ext.RuntimeID, globalconfig.RuntimeID())
		if t.config.reportHostname && t.config.hostname != "" {
			span.setMeta(keyHostname, t.config.hostname)
		}
		if t.rtWorker.isRunning() && internalSpanTypes[span.spanType] {
			span.setMeta(ext.Language, "go")
		}
	} else if ctx, ok := cfg.Parent.(*SpanContext); ok {
		// a child context may carry decisions made upstream
		if p, ok := ctx.SamplingPriority(); ok {
			tr.propagate(p, true)
		}
		if ctx.origin != "" {
			tr.setOrigin(ctx.origin)
		}
	}

	for k, v := range t.config.globalTags {
		span.SetTag(k, v)
	}
	for k, v := range cfg.Tags {
		span.SetTag(k, v)
	}
	if t.config.env != "" {
		span.setMeta(ext.Environment, t.config.env)
	}
	if t.config.version != "" && internalSpanTypes[span.spanType] {
		// The version tag marks spans of the user application itself: set it
		// when no binding is active on this flow and the span runs the
		// configured service, or when the root span of the active binding's
		// trace runs the same service and was itself tagged.
		rootSpan := t.activeRootSpan()
		if (rootSpan == nil && service == t.config.serviceName) ||
			(rootSpan != nil && rootSpan.Service() == service && rootSpan.hasVersionTag()) {
			span.setMeta(ext.Version, t.config.version)
		}
	}

	if service != "" && internalSpanTypes[span.spanType] {
		t.registerService(service)
	}

	if !cfg.NoActivate {
		t.config.contextProvider.Activate(span)
	}

	t.hooks.emit(span)
	if log.DebugEnabled() {
		log.Debug("started span %d in trace %d", span.spanID, span.traceID)
	}
	return span
}

// sample runs the root sampling pipeline and stamps the combined decision on
// the trace.
func (t *tracer) sample(span *Span, tr *trace) {
	sampler := t.config.sampler
	sampled := sampler.Sample(span)
	if _, isDefault := sampler.(*rulesSampler); isDefault {
		// Default pipeline: the trace is always delivered so the agent sees
		// it; the priority carries the keep/drop decision.
		priority := ext.PriorityAutoReject
		if sampled {
			priority = ext.PriorityAutoKeep
		}
		tr.setDecision(true, priority, true)
		return
	}
	// Custom primary sampler: its decision gates delivery.
	priority, hasPriority := 0, false
	if sampled {
		if rs, ok := sampler.(RateSampler); ok {
			// keep the applied rate so the backend can scale up statistics
			span.setMetric(keySamplingRate, rs.Rate())
		}
		if t.prioritySampler != nil {
			if t.prioritySampler.Sample(span) {
				priority, hasPriority = ext.PriorityAutoKeep, true
			} else {
				priority, hasPriority = ext.PriorityAutoReject, true
			}
		}
	} else if t.prioritySampler != nil {
		// dropped locally: let distributed peers drop it too
		priority, hasPriority = ext.PriorityAutoReject, true
	}
	tr.setDecision(sampled, priority, hasPriority)
}

// finishSpan is called by Span.Finish: it maintains the active binding and
// drives the aggregator's flush decision.
func (t *tracer) finishSpan(s *Span) {
	prov := t.config.contextProvider
	if active, ok := prov.Active().(*Span); ok && active == s {
		if s.parent != nil && !s.parent.Finished() {
			prov.Activate(s.parent)
		} else {
			// no live parent to fall back to: clear, so that future spans on
			// this flow do not parent to a finished span
			prov.Activate(nil)
		}
	}

	// The trace may already be gone if this finish lost a race with a fork
	// or arrives after the final flush: re-create it so the span still ships
	// as its own chunk, then let it be removed again.
	tr := t.traces.get(s.traceID)
	if tr == nil {
		tr = t.traces.getOrCreate(s.traceID)
		tr.addSpan(s)
	}
	spans, sampled, done := tr.finishSpan(t.config.partialFlushEnabled, t.config.partialFlushMinSpans)
	if done {
		t.traces.remove(s.traceID)
	}
	if len(spans) > 0 && sampled {
		t.write(spans)
	}
}

// write runs the finished batch through the registered filters and hands the
// survivors to the writer. Emission is gated by the enabled flag; span
// creation is not.
func (t *tracer) write(spans []*Span) {
	if len(spans) == 0 {
		return
	}
	if log.DebugEnabled() {
		log.Debug("writing %d spans (enabled: %t)", len(spans), t.config.enabled)
		for _, s := range spans {
			log.Debug("\n%s", s.String())
		}
	}
	if !t.config.enabled {
		return
	}
	for _, f := range t.config.filters {
		out, ok := applyFilter(f, spans)
		if !ok {
			// filter fault: skip it, keep the prior batch
			continue
		}
		if len(out) == 0 {
			return
		}
		spans = out
	}
	t.writer.write(spans)
}

// applyFilter runs one filter, isolating panics. ok is false when the filter
// faulted and its output must be discarded.
func applyFilter(f Filter, spans []*Span) (out []*Span, ok bool) {
	defer func() {
		if err := recover(); err != nil {
			log.Error("error applying trace filter %T: %v", f, err)
			out, ok = nil, false
		}
	}()
	return f.ProcessTrace(spans), true
}

// activate makes ref the active binding of the current execution flow. A
// *SpanContext registers a trace carrying its metadata, so that local
// continuations of the remote trace inherit priority and origin.
func (t *tracer) activate(ref SpanReference) {
	if ctx, ok := ref.(*SpanContext); ok && ctx.traceID != 0 {
		tr := newTrace()
		if p, ok := ctx.SamplingPriority(); ok {
			tr.propagate(p, true)
		}
		tr.setOrigin(ctx.origin)
		t.traces.put(ctx.traceID, tr)
	}
	t.config.contextProvider.Activate(ref)
}

// active returns the current binding of the calling execution flow.
func (t *tracer) active() SpanReference {
	return t.config.contextProvider.Active()
}

// activeSpan returns the active binding if it is a live span.
func (t *tracer) activeSpan() *Span {
	s, _ := t.active().(*Span)
	return s
}

// activeRootSpan returns the first span of the active binding's trace, or
// nil when there is no binding or its spans have flushed.
func (t *tracer) activeRootSpan() *Span {
	ref := t.active()
	if ref == nil || ref.TraceID() == 0 {
		return nil
	}
	tr := t.traces.get(ref.TraceID())
	if tr == nil {
		return nil
	}
	return tr.rootSpan()
}

// activeContext snapshots the active binding into a SpanContext, resolving
// trace metadata for live spans.
func (t *tracer) activeContext() *SpanContext {
	switch ref := t.active().(type) {
	case *SpanContext:
		return ref
	case *Span:
		return ref.Context()
	default:
		return nil
	}
}

// Trace starts and activates a span as the child of the currently active
// binding, or as a new root when there is none.
func (t *tracer) Trace(name string, options ...StartSpanOption) *Span {
	options = append(options, ChildOf(t.active()))
	return t.StartSpan(name, options...)
}

// registerService records a newly seen service. The constant tag set handed
// to the runtime metrics worker changes with it.
func (t *tracer) registerService(service string) {
	t.servicesMu.Lock()
	defer t.servicesMu.Unlock()
	if _, ok := t.services[service]; ok {
		return
	}
	t.services[service] = struct{}{}
	log.Debug("constant tags refreshed for new service %q", service)
}

// serviceTags returns the constant tags reported with runtime metrics,
// including one service tag per service seen by the tracer.
func (t *tracer) serviceTags() []string {
	tags := statsTags(t.config)
	t.servicesMu.Lock()
	defer t.servicesMu.Unlock()
	for service := range t.services {
		tags = append(tags, "service:"+service)
	}
	return tags
}

// checkNewProcess detects that the process was forked since the last span
// start and reconciles: the child must not reuse the parent's ID stream,
// spans, services or background workers. Detection is lazy; no atfork hook
// is installed.
func (t *tracer) checkNewProcess() {
	pid := int64(os.Getpid())
	if t.pid.Load() == pid {
		return
	}
	t.forkMu.Lock()
	defer t.forkMu.Unlock()
	if t.pid.Load() == pid {
		// another goroutine reconciled while we waited
		return
	}

	// Reseed before anything else: every ID minted from here on must come
	// from a stream the parent does not share.
	random.reseed()
	globalconfig.ResetRuntimeID()

	// The parent owns the flushing of the spans it created. Sampling
	// decisions stay in place so spans the child adds to inherited traces
	// keep honoring them.
	t.traces.clearAllSpans()

	// The child's services are not necessarily a subset of the parent's.
	t.servicesMu.Lock()
	t.services = make(map[string]struct{})
	t.servicesMu.Unlock()

	// Background goroutines did not survive the fork; rebuild them.
	wasRunning := t.rtWorker.isRunning()
	t.rtWorker = newRuntimeMetricsWorker(t.statsd, defaultMetricsReportInterval, t.serviceTags)
	if wasRunning {
		t.rtWorker.start()
	}
	t.writer = t.writer.recreate()

	t.pid.Store(pid)
}

// stop shuts the tracer down: the writer stops accepting batches and
// in-flight data is flushed, waiting up to timeout (or unbounded when zero).
// Idempotent and safe to call concurrently with span operations.
func (t *tracer) stop(timeout time.Duration) {
	t.stopOnce.Do(func() {
		t.rtWorker.stopAndJoin()
		if t.writer.isAlive() {
			t.writer.stop()
			t.writer.join(timeout)
		}
		t.statsd.Incr("datadog.tracer.stopped", nil, 1)
		t.statsd.Close()
	})
}

// Stop stops the tracer, blocking until pending traces flushed.
func (t *tracer) Stop() {
	t.stop(0)
}

func (t *tracer) onStartSpan(fn SpanHook) { t.hooks.register(fn) }

func (t *tracer) deregisterOnStartSpan(fn SpanHook) { t.hooks.deregister(fn) }
