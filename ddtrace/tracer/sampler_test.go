// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/DataDog/dd-trace-core.v1/ddtrace/ext"
)

func TestRateSampler(t *testing.T) {
	assert := assert.New(t)
	assert.True(NewRateSampler(1).Sample(newBasicSpan("test")))
	assert.False(NewRateSampler(0).Sample(newBasicSpan("test")))
	assert.False(NewRateSampler(0.5).Sample(nil))
	assert.True(NewAllSampler().Sample(newBasicSpan("test")))
}

func newBasicSpan(operationName string) *Span {
	return newSpan(operationName, "test.service", "/", randUint64(), randUint64(), 0)
}

func TestRateSamplerSetting(t *testing.T) {
	assert := assert.New(t)
	rs := NewRateSampler(1)
	assert.Equal(1.0, rs.Rate())
	rs.SetRate(0.5)
	assert.Equal(0.5, rs.Rate())
}

func TestRateSamplerDeterminism(t *testing.T) {
	rs := NewRateSampler(0.5)
	s := newBasicSpan("test")
	first := rs.Sample(s)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, rs.Sample(s), "decision is a pure function of the trace ID")
	}
}

func TestRateSamplerDistribution(t *testing.T) {
	rs := NewRateSampler(0.2)
	const n = 50000
	kept := 0
	for i := 0; i < n; i++ {
		if rs.Sample(newBasicSpan("test")) {
			kept++
		}
	}
	ratio := float64(kept) / n
	assert.InDelta(t, 0.2, ratio, 0.02)
}

func TestPrioritySampler(t *testing.T) {
	t.Run("default-rate", func(t *testing.T) {
		ps := newPrioritySampler("")
		assert.Equal(t, 1.0, ps.getRate(newBasicSpan("op")))
		assert.True(t, ps.Sample(newBasicSpan("op")))
	})

	t.Run("rates-from-agent", func(t *testing.T) {
		ps := newPrioritySampler("testenv")
		err := ps.readRatesJSON(io.NopCloser(strings.NewReader(
			`{"rate_by_service":{"service:test.service,env:testenv":0,"service:other,env:testenv":0.8}}`,
		)))
		require.NoError(t, err)
		s := newBasicSpan("op") // service test.service
		assert.Equal(t, 0.0, ps.getRate(s))
		assert.False(t, ps.Sample(s))
		other := newBasicSpan("op")
		other.service = "other"
		assert.Equal(t, 0.8, ps.getRate(other))
	})

	t.Run("unknown-service-uses-default", func(t *testing.T) {
		ps := newPrioritySampler("testenv")
		require.NoError(t, ps.readRatesJSON(io.NopCloser(strings.NewReader(
			`{"rate_by_service":{"service:other,env:testenv":0}}`,
		))))
		assert.Equal(t, 1.0, ps.getRate(newBasicSpan("op")))
	})

	t.Run("invalid-json", func(t *testing.T) {
		ps := newPrioritySampler("")
		assert.Error(t, ps.readRatesJSON(io.NopCloser(strings.NewReader("not json"))))
	})
}

func TestRulesSampler(t *testing.T) {
	t.Run("no-rules-keeps-all", func(t *testing.T) {
		rs := newRulesSampler(nil)
		assert.True(t, rs.Sample(newBasicSpan("op")))
	})

	t.Run("service-rule", func(t *testing.T) {
		rs := newRulesSampler([]SamplingRule{ServiceRule("test.service", 0)})
		s := newBasicSpan("op")
		assert.False(t, rs.Sample(s))
		assert.Equal(t, 0.0, s.metrics[keyRulesSamplerAppliedRate])
	})

	t.Run("name-rule", func(t *testing.T) {
		rs := newRulesSampler([]SamplingRule{NameRule("db.query", 0)})
		assert.False(t, rs.Sample(newBasicSpan("db.query")))
		assert.True(t, rs.Sample(newBasicSpan("web.request")))
	})

	t.Run("name-service-rule", func(t *testing.T) {
		rs := newRulesSampler([]SamplingRule{NameServiceRule("db.query", "test.service", 0)})
		assert.False(t, rs.Sample(newBasicSpan("db.query")))
		other := newBasicSpan("db.query")
		other.service = "other"
		assert.True(t, rs.Sample(other))
	})

	t.Run("first-match-wins", func(t *testing.T) {
		rs := newRulesSampler([]SamplingRule{
			NameRule("db.query", 1),
			RateRule(0),
		})
		assert.True(t, rs.Sample(newBasicSpan("db.query")))
		assert.False(t, rs.Sample(newBasicSpan("web.request")))
	})

	t.Run("global-rate-env", func(t *testing.T) {
		t.Setenv("DD_TRACE_SAMPLE_RATE", "0")
		rs := newRulesSampler(nil)
		s := newBasicSpan("op")
		assert.False(t, rs.Sample(s))
		assert.Equal(t, 0.0, s.metrics[keyRulesSamplerAppliedRate])
	})

	t.Run("invalid-global-rate-ignored", func(t *testing.T) {
		t.Setenv("DD_TRACE_SAMPLE_RATE", "3")
		rs := newRulesSampler(nil)
		assert.True(t, rs.Sample(newBasicSpan("op")))
	})

	t.Run("rate-limiter", func(t *testing.T) {
		t.Setenv("DD_TRACE_RATE_LIMIT", "1")
		rs := newRulesSampler([]SamplingRule{RateRule(1)})
		kept := 0
		for i := 0; i < 100; i++ {
			if rs.Sample(newBasicSpan("op")) {
				kept++
			}
		}
		assert.LessOrEqual(t, kept, 2, "the token bucket caps kept traces")
		assert.GreaterOrEqual(t, kept, 1)
	})
}

func TestSamplingPipeline(t *testing.T) {
	t.Run("default-sampler-keep", func(t *testing.T) {
		tr, w := newTestTracer(t)
		s := tr.StartSpan("op")
		s.Finish()
		spans := w.Spans()
		require.Len(t, spans, 1, "default pipeline always delivers")
		assert.Equal(t, float64(ext.PriorityAutoKeep), spans[0].metrics[keySamplingPriority])
	})

	t.Run("default-sampler-drop-still-delivers", func(t *testing.T) {
		t.Setenv("DD_TRACE_SAMPLE_RATE", "0")
		tr, w := newTestTracer(t)
		s := tr.StartSpan("op")
		s.Finish()
		spans := w.Spans()
		require.Len(t, spans, 1, "the agent still receives the trace")
		assert.Equal(t, float64(ext.PriorityAutoReject), spans[0].metrics[keySamplingPriority])
	})

	t.Run("custom-sampler-drop", func(t *testing.T) {
		tr, w := newTestTracer(t, WithSampler(NewRateSampler(0)))
		tr.StartSpan("op").Finish()
		assert.Empty(t, w.Batches(), "a custom sampler's drop gates delivery")
	})

	t.Run("custom-sampler-keep-stamps-rate", func(t *testing.T) {
		tr, w := newTestTracer(t, WithSampler(NewRateSampler(1)))
		tr.StartSpan("op").Finish()
		spans := w.Spans()
		require.Len(t, spans, 1)
		assert.Equal(t, 1.0, spans[0].metrics[keySamplingRate])
		assert.Equal(t, float64(ext.PriorityAutoKeep), spans[0].metrics[keySamplingPriority])
	})

	t.Run("custom-sampler-no-priority-sampling", func(t *testing.T) {
		tr, w := newTestTracer(t, WithSampler(NewRateSampler(1)), WithPrioritySampling(false))
		tr.StartSpan("op").Finish()
		spans := w.Spans()
		require.Len(t, spans, 1)
		_, ok := spans[0].metrics[keySamplingPriority]
		assert.False(t, ok, "no priority sampler, no priority")
	})

	t.Run("child-inherits-decision", func(t *testing.T) {
		tr, w := newTestTracer(t, WithSampler(NewRateSampler(0)))
		p := tr.StartSpan("parent")
		c := tr.StartSpan("child", ChildOf(p))
		c.Finish()
		p.Finish()
		assert.Empty(t, w.Batches(), "children never re-run the pipeline")
	})
}
