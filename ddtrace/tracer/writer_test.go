// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementsTraceWriter(t *testing.T) {
	assert.Implements(t, (*traceWriter)(nil), &agentTraceWriter{})
	assert.Implements(t, (*traceWriter)(nil), &logTraceWriter{})
}

// makeSpan returns a span, adding n entries to meta and metrics each.
func makeSpan(n int) *Span {
	s := newSpan("encodeName", "encodeService", "encodeResource", randUint64(), randUint64(), randUint64())
	for i := 0; i < n; i++ {
		istr := fmt.Sprintf("%0.10d", i)
		s.meta[istr] = istr
		s.metrics[istr] = float64(i)
	}
	return s
}

func TestEncodeFloat(t *testing.T) {
	for _, tt := range []struct {
		f      float64
		expect string
	}{
		{9.9999999999999990e20, "999999999999999900000"},
		{9.9999999999999999e20, "1e+21"},
		{-9.9999999999999990e20, "-999999999999999900000"},
		{-9.9999999999999999e20, "-1e+21"},
		{0.000001, "0.000001"},
		{0.0000009, "9e-7"},
		{-0.000001, "-0.000001"},
		{-0.0000009, "-9e-7"},
		{math.NaN(), "null"},
		{math.Inf(-1), "null"},
		{math.Inf(1), "null"},
	} {
		t.Run(tt.expect, func(t *testing.T) {
			assert.Equal(t, tt.expect, string(encodeFloat(nil, tt.f)))
		})
	}
}

func TestLogTraceWriter(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		assert := assert.New(t)
		var buf bytes.Buffer
		h := newLogTraceWriter(&statsd.NoOpClient{})
		h.w = &buf
		s := makeSpan(0)
		for i := 0; i < 20; i++ {
			h.write([]*Span{s, s})
		}
		h.flush()
		v := struct{ Traces [][]map[string]interface{} }{}
		d := json.NewDecoder(&buf)
		err := d.Decode(&v)
		require.NoError(t, err, buf.String())
		assert.Len(v.Traces, 20, "Expected 20 traces, but have %d", len(v.Traces))
		for _, t := range v.Traces {
			assert.Len(t, 2, "Expected 2 spans, but have %d", len(t))
		}
		for _, tr := range v.Traces {
			for _, s := range tr {
				assert.Equal("encodeName", s["name"])
				assert.Equal("encodeService", s["service"])
				assert.Equal("encodeResource", s["resource"])
			}
		}
	})

	t.Run("ids-as-hex", func(t *testing.T) {
		var buf bytes.Buffer
		h := newLogTraceWriter(&statsd.NoOpClient{})
		h.w = &buf
		s := newSpan("op", "svc", "/", 0xabc, 0xdef, 0x123)
		h.write([]*Span{s})
		h.flush()
		out := buf.String()
		assert.Contains(t, out, `"trace_id":"abc"`)
		assert.Contains(t, out, `"span_id":"def"`)
		assert.Contains(t, out, `"parent_id":"123"`)
	})

	t.Run("meta-and-metrics", func(t *testing.T) {
		var buf bytes.Buffer
		h := newLogTraceWriter(&statsd.NoOpClient{})
		h.w = &buf
		s := makeSpan(0)
		s.meta["quote"] = `say "hi"`
		s.metrics["nan"] = math.NaN()
		h.write([]*Span{s})
		h.flush()
		v := struct{ Traces [][]map[string]interface{} }{}
		require.NoError(t, json.NewDecoder(&buf).Decode(&v), buf.String())
		got := v.Traces[0][0]
		assert.Equal(t, `say "hi"`, got["meta"].(map[string]interface{})["quote"])
		assert.Nil(t, got["metrics"].(map[string]interface{})["nan"])
	})

	t.Run("stop-flushes", func(t *testing.T) {
		var buf bytes.Buffer
		h := newLogTraceWriter(&statsd.NoOpClient{})
		h.w = &buf
		h.write([]*Span{makeSpan(0)})
		h.stop()
		assert.NotZero(t, buf.Len())
		h.write([]*Span{makeSpan(0)})
		assert.False(t, h.isAlive())
	})

	t.Run("recreate", func(t *testing.T) {
		h := newLogTraceWriter(&statsd.NoOpClient{})
		h.stop()
		h2 := h.recreate()
		assert.True(t, h2.isAlive())
	})
}

type dummyTransport struct {
	mu       sync.Mutex
	payloads int
	traces   int
	rates    string
}

func (d *dummyTransport) send(p *payload) (body io.ReadCloser, err error) {
	d.mu.Lock()
	d.payloads++
	d.traces += p.itemCount()
	rates := d.rates
	d.mu.Unlock()
	if rates == "" {
		rates = `{"rate_by_service":{}}`
	}
	return io.NopCloser(strings.NewReader(rates)), nil
}

func (d *dummyTransport) endpoint() string { return "http://localhost:9/v0.4/traces" }

func (d *dummyTransport) Stats() (payloads, traces int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.payloads, d.traces
}

func TestAgentTraceWriter(t *testing.T) {
	newCfg := func(t *testing.T, tr transport) *config {
		c, err := newConfig(withTransport(tr), WithStatsdClient(&statsd.NoOpClient{}))
		require.NoError(t, err)
		return c
	}

	t.Run("flush-on-stop", func(t *testing.T) {
		transport := &dummyTransport{}
		w := newAgentTraceWriter(newCfg(t, transport), nil, &statsd.NoOpClient{})
		w.write([]*Span{makeSpan(0)})
		w.write([]*Span{makeSpan(0)})
		w.stop()
		assert.True(t, w.join(time.Second))
		payloads, traces := transport.Stats()
		assert.Equal(t, 1, payloads)
		assert.Equal(t, 2, traces)
	})

	t.Run("rates-feedback", func(t *testing.T) {
		transport := &dummyTransport{rates: `{"rate_by_service":{"service:svc,env:":0.25}}`}
		ps := newPrioritySampler("")
		w := newAgentTraceWriter(newCfg(t, transport), ps, &statsd.NoOpClient{})
		w.write([]*Span{makeSpan(0)})
		w.stop()
		w.join(time.Second)
		s := makeSpan(0)
		s.service = "svc"
		assert.Equal(t, 0.25, ps.getRate(s))
	})

	t.Run("write-after-stop", func(t *testing.T) {
		transport := &dummyTransport{}
		w := newAgentTraceWriter(newCfg(t, transport), nil, &statsd.NoOpClient{})
		w.stop()
		w.join(time.Second)
		w.write([]*Span{makeSpan(0)})
		payloads, _ := transport.Stats()
		assert.Equal(t, 0, payloads)
		assert.False(t, w.isAlive())
	})

	t.Run("recreate", func(t *testing.T) {
		transport := &dummyTransport{}
		w := newAgentTraceWriter(newCfg(t, transport), nil, &statsd.NoOpClient{})
		w.stop()
		w.join(time.Second)
		w2 := w.recreate()
		defer func() {
			w2.stop()
			w2.join(time.Second)
		}()
		assert.True(t, w2.isAlive())
		w2.write([]*Span{makeSpan(0)})
	})
}

func TestTransport(t *testing.T) {
	t.Run("headers-and-body", func(t *testing.T) {
		assert := assert.New(t)
		var gotHeaders http.Header
		var gotLen int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			body, _ := io.ReadAll(r.Body)
			gotLen = len(body)
			w.Write([]byte(`{"rate_by_service":{}}`))
		}))
		defer srv.Close()

		u, err := url.Parse(srv.URL)
		require.NoError(t, err)
		tr := newHTTPTransport(u, srv.Client())
		p := newPayload()
		require.NoError(t, p.push(spanList{makeSpan(2)}))
		body, err := tr.send(p)
		require.NoError(t, err)
		body.Close()

		assert.Equal("application/msgpack", gotHeaders.Get("Content-Type"))
		assert.Equal("go", gotHeaders.Get("Datadog-Meta-Lang"))
		assert.NotEmpty(gotHeaders.Get("Datadog-Meta-Tracer-Version"))
		assert.Equal("1", gotHeaders.Get("X-Datadog-Trace-Count"))
		assert.NotZero(gotLen)
	})

	t.Run("server-error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		}))
		defer srv.Close()
		u, err := url.Parse(srv.URL)
		require.NoError(t, err)
		tr := newHTTPTransport(u, srv.Client())
		p := newPayload()
		require.NoError(t, p.push(spanList{makeSpan(0)}))
		_, err = tr.send(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "payload too large")
	})

	t.Run("endpoint", func(t *testing.T) {
		u, _ := url.Parse("http://localhost:8126")
		tr := newHTTPTransport(u, http.DefaultClient)
		assert.Equal(t, "http://localhost:8126/v0.4/traces", tr.endpoint())
	})

	t.Run("unix-endpoint-host", func(t *testing.T) {
		u, _ := url.Parse("unix:///var/run/apm.socket")
		tr := newHTTPTransport(u, http.DefaultClient)
		assert.Equal(t, "http://localhost/v0.4/traces", tr.endpoint())
	})
}

func BenchmarkLogTraceWriterEncode(b *testing.B) {
	h := newLogTraceWriter(&statsd.NoOpClient{})
	h.w = io.Discard
	spans := []*Span{makeSpan(10), makeSpan(10)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.write(spans)
		if i%100 == 0 {
			h.flush()
		}
	}
}
