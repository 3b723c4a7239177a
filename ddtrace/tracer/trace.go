// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import "sync"

// trace maintains the state shared by all spans of one trace: the sampling
// decision, the propagated priority and origin, and the list of spans still
// held in the process. This data is delivered to the backend through chunk
// roots (the first span of each flushed payload), so it has to be kept
// around until the last span flushes.
type trace struct {
	mu sync.Mutex // guards all fields below

	// sampled is the keep/drop decision made when the root span was created.
	// It defaults to true so that spans continued from a remote context with
	// no explicit decision are delivered.
	sampled bool

	// priority is the sampling priority propagated to distributed peers.
	// hasPriority distinguishes "priority 0" from "no decision yet".
	priority    int
	hasPriority bool

	// origin marks the provenance of the trace (e.g. "synthetics").
	origin string

	// spans holds every live span, in insertion order. The span at index 0
	// is the chunk root of the next flush.
	spans []*Span

	// numFinished counts the finished spans currently in spans.
	numFinished int
}

func newTrace() *trace {
	return &trace{sampled: true}
}

func (t *trace) addSpan(s *Span) {
	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
}

// rootSpan returns the first span created in the trace, or nil if every span
// already flushed.
func (t *trace) rootSpan() *Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) == 0 {
		return nil
	}
	return t.spans[0]
}

func (t *trace) setSampled(sampled bool) {
	t.mu.Lock()
	t.sampled = sampled
	t.mu.Unlock()
}

func (t *trace) setSamplingPriority(priority int) {
	t.mu.Lock()
	t.priority = priority
	t.hasPriority = true
	if priority > 0 {
		t.sampled = true
	}
	t.mu.Unlock()
}

// propagate records a priority decision that arrived with a remote or
// cross-flow context. Unlike setSamplingPriority it leaves sampled alone:
// delivery was decided when the local root was created (or defaults to
// true for traces continued from elsewhere).
func (t *trace) propagate(priority int, hasPriority bool) {
	t.mu.Lock()
	t.priority = priority
	t.hasPriority = hasPriority
	t.mu.Unlock()
}

// setDecision stamps the root sampling pipeline's combined outcome. Unlike
// setSamplingPriority it never forces sampled back to true.
func (t *trace) setDecision(sampled bool, priority int, hasPriority bool) {
	t.mu.Lock()
	t.sampled = sampled
	t.priority = priority
	t.hasPriority = hasPriority
	t.mu.Unlock()
}

func (t *trace) setOrigin(origin string) {
	t.mu.Lock()
	t.origin = origin
	t.mu.Unlock()
}

// samplingDecision returns the current priority (and whether one was made)
// together with the trace's origin.
func (t *trace) samplingDecision() (priority int, ok bool, origin string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority, t.hasPriority, t.origin
}

func (t *trace) isSampled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampled
}

func (t *trace) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// finishSpan records that one of the trace's spans finished and decides
// whether a flush is due. A flush triggers when every span in the trace is
// finished, or when partial flushing is enabled and at least minSpans spans
// are done while others (typically a long-running root) are still open.
//
// The returned batch has the trace's priority and origin stamped onto its
// first span (the chunk root) so that the backend can reassemble the trace
// across chunks. done reports that no live span remains; the caller must
// then drop the trace from its table.
func (t *trace) finishSpan(partialFlush bool, minSpans int) (flushed []*Span, sampled, done bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.numFinished++

	if t.numFinished != len(t.spans) && !(partialFlush && t.numFinished >= minSpans) {
		return nil, false, false
	}

	finished := make([]*Span, 0, t.numFinished)
	live := t.spans[:0]
	for _, s := range t.spans {
		if s.Finished() {
			finished = append(finished, s)
		} else {
			live = append(live, s)
		}
	}
	if len(finished) == 0 {
		// num_finished got ahead of the span list; nothing to ship
		return nil, false, len(live) == 0
	}

	chunkRoot := finished[0]
	if t.hasPriority && t.sampled {
		chunkRoot.setMetric(keySamplingPriority, float64(t.priority))
	}
	if t.origin != "" {
		chunkRoot.setMeta(keyOrigin, t.origin)
	}

	// the live tail was compacted in place; drop the moved pointers
	tail := len(live)
	for i := tail; i < len(t.spans); i++ {
		t.spans[i] = nil
	}
	t.spans = live
	t.numFinished -= len(finished)
	return finished, t.sampled, len(t.spans) == 0
}

// clearSpans empties the span list without touching the sampling metadata.
// Used after a fork: the parent owns the flushing of the spans it created,
// but decisions already made must keep applying to spans the child adds.
func (t *trace) clearSpans() {
	t.mu.Lock()
	t.spans = nil
	t.numFinished = 0
	t.mu.Unlock()
}

// traceStore indexes the open traces of the process by trace ID. The store
// lock covers only membership; each trace guards its own fields so that a
// flush of one trace never blocks starts on another.
type traceStore struct {
	mu     sync.Mutex
	traces map[uint64]*trace
}

func newTraceStore() *traceStore {
	return &traceStore{traces: make(map[uint64]*trace)}
}

func (ts *traceStore) get(id uint64) *trace {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.traces[id]
}

func (ts *traceStore) getOrCreate(id uint64) *trace {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.traces[id]; ok {
		return t
	}
	t := newTrace()
	ts.traces[id] = t
	return t
}

// put registers a trace built from a remote context under its ID.
func (ts *traceStore) put(id uint64, t *trace) {
	ts.mu.Lock()
	ts.traces[id] = t
	ts.mu.Unlock()
}

func (ts *traceStore) remove(id uint64) {
	ts.mu.Lock()
	delete(ts.traces, id)
	ts.mu.Unlock()
}

func (ts *traceStore) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.traces)
}

// clearAllSpans drops the span lists of every open trace, keeping the trace
// entries and their sampling metadata. Trace locks are taken one at a time,
// never while holding the store lock on another trace's fields.
func (ts *traceStore) clearAllSpans() {
	ts.mu.Lock()
	all := make([]*trace, 0, len(ts.traces))
	for _, t := range ts.traces {
		all = append(all, t)
	}
	ts.mu.Unlock()
	for _, t := range all {
		t.clearSpans()
	}
}
