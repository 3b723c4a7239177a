// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// traceWriter accepts finished span batches and delivers them off the hot
// path. Implementations run their own background flushing and must never
// block the caller of write beyond a bounded enqueue.
type traceWriter interface {
	// write enqueues a finished batch. It may drop under saturation; drops
	// are reported through health metrics, not errors.
	write(spans []*Span)

	// stop initiates shutdown; no batch is accepted afterwards.
	stop()

	// join blocks until in-flight batches flushed, or timeout elapses when
	// one is given. It reports whether flushing completed.
	join(timeout time.Duration) bool

	// recreate returns a fresh writer bound to the same endpoint. Used in a
	// forked child, where the parent's worker goroutines no longer exist.
	recreate() traceWriter

	// isAlive reports whether the writer still accepts batches.
	isAlive() bool
}

const (
	// flushInterval is how often the agent writer flushes buffered payloads.
	flushInterval = 2 * time.Second

	// payloadSizeLimit specifies the payload size at which a flush is
	// triggered without waiting for the ticker.
	payloadSizeLimit = 1 * 1024 * 1024 // 1MB

	// writerQueueSize bounds the number of batches awaiting encoding.
	writerQueueSize = 1000
)

// agentTraceWriter buffers traces and sends them to the agent as msgpack
// payloads.
type agentTraceWriter struct {
	cfg       *config
	transport transport

	// prioritySampler receives rate feedback from agent responses; nil when
	// priority sampling is disabled.
	prioritySampler *prioritySampler

	statsd statsd.ClientInterface

	in    chan spanList
	stop_ chan struct{}
	done  chan struct{}
	once  sync.Once
	alive atomic.Bool

	// payload is owned by the worker goroutine.
	payload *payload
}

func newAgentTraceWriter(cfg *config, ps *prioritySampler, statsdClient statsd.ClientInterface) *agentTraceWriter {
	tr := cfg.transport
	if tr == nil {
		tr = newHTTPTransport(cfg.agentURL, cfg.httpClient)
	}
	w := &agentTraceWriter{
		cfg:             cfg,
		transport:       tr,
		prioritySampler: ps,
		statsd:          statsdClient,
		in:              make(chan spanList, writerQueueSize),
		stop_:           make(chan struct{}),
		done:            make(chan struct{}),
		payload:         newPayload(),
	}
	w.alive.Store(true)
	go w.worker()
	return w
}

func (w *agentTraceWriter) worker() {
	defer close(w.done)
	tick := time.NewTicker(flushInterval)
	defer tick.Stop()
	for {
		select {
		case spans := <-w.in:
			w.add(spans)
		case <-tick.C:
			w.flush()
		case <-w.stop_:
			// drain whatever was enqueued before stop
			for {
				select {
				case spans := <-w.in:
					w.add(spans)
				default:
					w.flush()
					return
				}
			}
		}
	}
}

func (w *agentTraceWriter) add(spans spanList) {
	if err := w.payload.push(spans); err != nil {
		w.statsd.Incr("datadog.tracer.traces_dropped", []string{"reason:encoding_error"}, 1)
		log.Error("error encoding msgpack: %v", err)
	}
	if w.payload.size() > payloadSizeLimit {
		w.statsd.Incr("datadog.tracer.flush_triggered", []string{"reason:size"}, 1)
		w.flush()
	}
}

func (w *agentTraceWriter) flush() {
	if w.payload.itemCount() == 0 {
		return
	}
	defer func(start time.Time) {
		w.statsd.Timing("datadog.tracer.flush_duration", time.Since(start), nil, 1)
	}(time.Now())

	size, count := w.payload.size(), w.payload.itemCount()
	w.statsd.Count("datadog.tracer.flush_bytes", int64(size), nil, 1)
	w.statsd.Count("datadog.tracer.flush_traces", int64(count), nil, 1)

	w.payload.reset()
	body, err := w.transport.send(w.payload)
	if err != nil {
		w.statsd.Count("datadog.tracer.traces_dropped", int64(count), []string{"reason:send_failed"}, 1)
		log.Error("lost %d traces: %v", count, err)
	} else if w.prioritySampler != nil {
		if err := w.prioritySampler.readRatesJSON(body); err != nil {
			w.statsd.Incr("datadog.tracer.decode_error", nil, 1)
		}
	}
	w.payload.clear()
}

// write implements traceWriter. The enqueue is non-blocking: when the worker
// cannot keep up, the batch is dropped and accounted for.
func (w *agentTraceWriter) write(spans []*Span) {
	if !w.alive.Load() {
		return
	}
	select {
	case w.in <- spanList(spans):
	default:
		w.statsd.Count("datadog.tracer.traces_dropped", 1, []string{"reason:queue_full"}, 1)
		log.Error("payload queue full, dropping %d traces", len(spans))
	}
}

func (w *agentTraceWriter) stop() {
	w.once.Do(func() {
		w.alive.Store(false)
		close(w.stop_)
	})
}

func (w *agentTraceWriter) join(timeout time.Duration) bool {
	if timeout <= 0 {
		<-w.done
		return true
	}
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *agentTraceWriter) recreate() traceWriter {
	return newAgentTraceWriter(w.cfg, w.prioritySampler, w.statsd)
}

func (w *agentTraceWriter) isAlive() bool { return w.alive.Load() }

// logWriter specifies the output target of the logTraceWriter; replaced in
// tests.
var logWriter io.Writer = os.Stdout

// logTraceWriter encodes traces into JSON objects on the process log
// stream. It is used in environments with no reachable agent, where a
// forwarder picks records off the logs (AWS Lambda).
type logTraceWriter struct {
	mu     sync.Mutex
	w      io.Writer
	buf    bytes.Buffer
	statsd statsd.ClientInterface
	alive  atomic.Bool
}

func newLogTraceWriter(statsdClient statsd.ClientInterface) *logTraceWriter {
	w := &logTraceWriter{
		w:      logWriter,
		statsd: statsdClient,
	}
	w.resetBuffer()
	w.alive.Store(true)
	return w
}

const (
	// maxFloatLength is the maximum length that a string encoded by
	// encodeFloat will be.
	maxFloatLength = 24

	// logBufferSuffix is the final string that the trace writer has to append
	// to a buffer to close the JSON.
	logBufferSuffix = "]}\n"

	// logBufferLimit is the maximum size log line allowed by cloudwatch
	logBufferLimit = 256 * 1024
)

func (h *logTraceWriter) resetBuffer() {
	h.buf.Reset()
	h.buf.WriteString(`{"traces": [`)
}

// encodeFloat writes the JSON encoding of f to p, following the encoding
// rules of encoding/json: NaN and infinities are not representable and
// become null, very large and very small magnitudes switch to exponent
// notation without a padded exponent.
func encodeFloat(p []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(p, "null"...)
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		p = strconv.AppendFloat(p, f, 'e', -1, 64)
		// clean up e-09 to e-9
		n := len(p)
		if n >= 4 && p[n-4] == 'e' && p[n-3] == '-' && p[n-2] == '0' {
			p[n-2] = p[n-1]
			p = p[:n-1]
		}
		return p
	}
	return strconv.AppendFloat(p, f, 'f', -1, 64)
}

// encodeSpan appends the JSON encoding of s to buf. IDs are encoded as hex
// strings: a JSON number would lose precision past 2^53.
func encodeSpan(buf *bytes.Buffer, s *Span) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scratch [maxFloatLength]byte
	buf.WriteString(`{"trace_id":"`)
	buf.WriteString(strconv.FormatUint(s.traceID, 16))
	buf.WriteString(`","span_id":"`)
	buf.WriteString(strconv.FormatUint(s.spanID, 16))
	buf.WriteString(`","parent_id":"`)
	buf.WriteString(strconv.FormatUint(s.parentID, 16))
	buf.WriteString(`","name":`)
	marshalString(buf, s.name)
	buf.WriteString(`,"resource":`)
	marshalString(buf, s.resource)
	buf.WriteString(`,"error":`)
	buf.Write(strconv.AppendInt(scratch[:0], int64(s.error), 10))
	buf.WriteString(`,"meta":{`)
	first := true
	for k, v := range s.meta {
		if !first {
			buf.WriteString(",")
		}
		first = false
		marshalString(buf, k)
		buf.WriteString(":")
		marshalString(buf, v)
	}
	buf.WriteString(`},"metrics":{`)
	first = true
	for k, v := range s.metrics {
		if !first {
			buf.WriteString(",")
		}
		first = false
		marshalString(buf, k)
		buf.WriteString(":")
		buf.Write(encodeFloat(scratch[:0], v))
	}
	buf.WriteString(`},"start":`)
	buf.Write(strconv.AppendInt(scratch[:0], s.start, 10))
	buf.WriteString(`,"duration":`)
	buf.Write(strconv.AppendInt(scratch[:0], s.duration, 10))
	buf.WriteString(`,"service":`)
	marshalString(buf, s.service)
	buf.WriteString(`,"type":`)
	marshalString(buf, s.spanType)
	buf.WriteString(`}`)
}

// marshalString marshals the string str as JSON into buf.
func marshalString(buf *bytes.Buffer, str string) {
	m, err := json.Marshal(str)
	if err != nil {
		buf.WriteString(`"INVALID"`)
	} else {
		buf.Write(m)
	}
}

// write implements traceWriter. Encoding happens synchronously: this writer
// exists for Lambda, where there is no long-lived process to flush from and
// writes to the log stream do not block on the network.
func (h *logTraceWriter) write(spans []*Span) {
	if !h.alive.Load() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var tmp bytes.Buffer
	tmp.WriteString(`[`)
	for i, s := range spans {
		if i > 0 {
			tmp.WriteString(",")
		}
		encodeSpan(&tmp, s)
	}
	tmp.WriteString(`]`)
	encoded := tmp.Bytes()

	if len(encoded)+len(logBufferSuffix) > logBufferLimit-h.buf.Len() {
		h.flushLocked()
	}
	if len(encoded) > logBufferLimit/2 {
		log.Error("trace too large to encode in log format, dropping %d spans", len(spans))
		h.statsd.Count("datadog.tracer.traces_dropped", 1, []string{"reason:too_large"}, 1)
		return
	}
	if h.buf.Len() > len(`{"traces": [`) {
		h.buf.WriteString(",")
	}
	h.buf.Write(encoded)
}

func (h *logTraceWriter) flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
}

func (h *logTraceWriter) flushLocked() {
	if h.buf.Len() == len(`{"traces": [`) {
		return
	}
	h.buf.WriteString(logBufferSuffix)
	if _, err := h.w.Write(h.buf.Bytes()); err != nil {
		log.Error("failed to write traces to log stream: %v", err)
	}
	h.resetBuffer()
}

func (h *logTraceWriter) stop() {
	if h.alive.CompareAndSwap(true, false) {
		h.flush()
	}
}

func (h *logTraceWriter) join(_ time.Duration) bool {
	h.flush()
	return true
}

func (h *logTraceWriter) recreate() traceWriter {
	return newLogTraceWriter(h.statsd)
}

func (h *logTraceWriter) isAlive() bool { return h.alive.Load() }
