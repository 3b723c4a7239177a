// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerOptionsDefaults(t *testing.T) {
	assert := assert.New(t)
	c, err := newConfig()
	require.NoError(t, err)
	assert.True(c.enabled)
	assert.False(c.debug)
	assert.Equal("http://localhost:8126", c.agentURL.String())
	assert.Equal("localhost:8125", c.dogstatsdAddr)
	assert.True(c.partialFlushEnabled)
	assert.Equal(500, c.partialFlushMinSpans)
	assert.True(c.prioritySampling)
	assert.False(c.logToStdout)
	assert.IsType(&rulesSampler{}, c.sampler)
	assert.IsType(&GoroutineContextProvider{}, c.contextProvider)
}

func TestAgentURLResolution(t *testing.T) {
	t.Run("env-host-port", func(t *testing.T) {
		t.Setenv("DD_AGENT_HOST", "trace-agent.local")
		t.Setenv("DD_TRACE_AGENT_PORT", "8127")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "http://trace-agent.local:8127", c.agentURL.String())
	})

	t.Run("legacy-hostname-var", func(t *testing.T) {
		t.Setenv("DATADOG_TRACE_AGENT_HOSTNAME", "legacy.local")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "http://legacy.local:8126", c.agentURL.String())
	})

	t.Run("url-https", func(t *testing.T) {
		t.Setenv("DD_TRACE_AGENT_URL", "https://agent.example.com:9126")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "https", c.agentURL.Scheme)
		assert.Equal(t, "agent.example.com:9126", c.agentURL.Host)
	})

	t.Run("url-unix", func(t *testing.T) {
		t.Setenv("DD_TRACE_AGENT_URL", "unix:///var/run/datadog/apm.socket")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "unix", c.agentURL.Scheme)
		assert.Equal(t, "/var/run/datadog/apm.socket", c.agentURL.Path)
	})

	t.Run("url-unknown-scheme", func(t *testing.T) {
		t.Setenv("DD_TRACE_AGENT_URL", "ftp://agent.example.com")
		_, err := newConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown scheme")
	})

	t.Run("option-precedence", func(t *testing.T) {
		t.Setenv("DD_TRACE_AGENT_URL", "http://env.local:1")
		c, err := newConfig(WithAgentAddr("opt.local:2"))
		require.NoError(t, err)
		assert.Equal(t, "http://opt.local:2", c.agentURL.String())
	})
}

func TestDogstatsdAddrResolution(t *testing.T) {
	t.Run("udp-url", func(t *testing.T) {
		t.Setenv("DD_DOGSTATSD_URL", "udp://statsd.local:8120")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "statsd.local:8120", c.dogstatsdAddr)
	})

	t.Run("unix-url", func(t *testing.T) {
		t.Setenv("DD_DOGSTATSD_URL", "unix:///var/run/statsd.socket")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "unix:///var/run/statsd.socket", c.dogstatsdAddr)
	})

	t.Run("bare-path", func(t *testing.T) {
		t.Setenv("DD_DOGSTATSD_URL", "/var/run/statsd.socket")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "unix:///var/run/statsd.socket", c.dogstatsdAddr)
	})

	t.Run("bare-host-port", func(t *testing.T) {
		t.Setenv("DD_DOGSTATSD_URL", "statsd.local:8120")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "statsd.local:8120", c.dogstatsdAddr)
	})

	t.Run("unknown-scheme", func(t *testing.T) {
		t.Setenv("DD_DOGSTATSD_URL", "tcp://statsd.local:8120")
		_, err := newConfig()
		require.Error(t, err)
	})

	t.Run("port-env", func(t *testing.T) {
		t.Setenv("DD_DOGSTATSD_PORT", "8120")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "localhost:8120", c.dogstatsdAddr)
	})

	t.Run("follows-agent-host", func(t *testing.T) {
		t.Setenv("DD_AGENT_HOST", "agent.local")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, "agent.local:8125", c.dogstatsdAddr)
	})
}

func TestLambdaDetection(t *testing.T) {
	t.Run("lambda-no-agent", func(t *testing.T) {
		t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "my-func")
		c, err := newConfig()
		require.NoError(t, err)
		assert.True(t, c.logToStdout)
	})

	t.Run("lambda-with-agent", func(t *testing.T) {
		t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "my-func")
		t.Setenv("DD_AGENT_HOST", "agent.local")
		c, err := newConfig()
		require.NoError(t, err)
		assert.False(t, c.logToStdout, "an agent var wins over the lambda heuristic")
	})
}

func TestPartialFlushConfig(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		t.Setenv("DD_TRACER_PARTIAL_FLUSH_ENABLED", "false")
		t.Setenv("DD_TRACER_PARTIAL_FLUSH_MIN_SPANS", "100")
		c, err := newConfig()
		require.NoError(t, err)
		assert.False(t, c.partialFlushEnabled)
		assert.Equal(t, 100, c.partialFlushMinSpans)
	})

	t.Run("invalid-min-spans", func(t *testing.T) {
		t.Setenv("DD_TRACER_PARTIAL_FLUSH_MIN_SPANS", "-5")
		c, err := newConfig()
		require.NoError(t, err)
		assert.Equal(t, 500, c.partialFlushMinSpans)
	})

	t.Run("option", func(t *testing.T) {
		c, err := newConfig(WithPartialFlushing(10))
		require.NoError(t, err)
		assert.True(t, c.partialFlushEnabled)
		assert.Equal(t, 10, c.partialFlushMinSpans)
	})

	t.Run("option-disable", func(t *testing.T) {
		c, err := newConfig(WithPartialFlushing(0))
		require.NoError(t, err)
		assert.False(t, c.partialFlushEnabled)
	})
}

func TestServiceEnvVersion(t *testing.T) {
	t.Setenv("DD_SERVICE", "env-svc")
	t.Setenv("DD_ENV", "env-env")
	t.Setenv("DD_VERSION", "env-version")
	c, err := newConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-svc", c.serviceName)
	assert.Equal(t, "env-env", c.env)
	assert.Equal(t, "env-version", c.version)
}

func TestTagString(t *testing.T) {
	for _, tt := range []struct {
		in  string
		out map[string]string
	}{
		{"key:value", map[string]string{"key": "value"}},
		{"key:value,key2:value2", map[string]string{"key": "value", "key2": "value2"}},
		{"key:value key2:value2", map[string]string{"key": "value", "key2": "value2"}},
		{"key", map[string]string{"key": ""}},
		{"key:va:lue", map[string]string{"key": "va:lue"}},
		{" , ", map[string]string{}},
	} {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.out, parseTagString(tt.in))
		})
	}
}

func TestDDTags(t *testing.T) {
	t.Setenv("DD_TAGS", "team:apm,component:web")
	tr, _ := newTestTracer(t)
	span := tr.StartSpan("op")
	assert.Equal(t, "apm", span.meta["team"])
	assert.Equal(t, "web", span.meta["component"])
}

func TestWithHTTPClient(t *testing.T) {
	client := &http.Client{Timeout: time.Second}
	c, err := newConfig(WithHTTPClient(client))
	require.NoError(t, err)
	assert.Same(t, client, c.httpClient)
}

func TestStatsTags(t *testing.T) {
	c, err := newConfig(WithService("svc"), WithEnv("prod"))
	require.NoError(t, err)
	tags := statsTags(c)
	assert.Contains(t, tags, "service:svc")
	assert.Contains(t, tags, "env:prod")
	assert.Contains(t, tags, "lang:go")
}
