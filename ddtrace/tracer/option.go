// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"gopkg.in/DataDog/dd-trace-core.v1/internal"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/globalconfig"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/version"
)

const (
	// defaultAgentHostname is used when no agent host env var is set.
	defaultAgentHostname = "localhost"

	// defaultAgentPort is the default port of the trace agent.
	defaultAgentPort = "8126"

	// defaultDogstatsdPort is the default port of the dogstatsd endpoint.
	defaultDogstatsdPort = "8125"

	// defaultPartialFlushMinSpans is the number of finished spans of an open
	// trace at which a partial flush triggers.
	defaultPartialFlushMinSpans = 500

	// defaultHTTPTimeout specifies the timeout for agent requests.
	defaultHTTPTimeout = 10 * time.Second
)

// config holds the tracer configuration.
type config struct {
	// enabled gates emission: spans are still created and aggregated when
	// false, but never handed to the writer.
	enabled bool

	// debug, when true, writes details to logs at the debug level.
	debug bool

	// logStartup, when true, causes various startup info to be written when
	// the tracer starts.
	logStartup bool

	// serviceName specifies the name of this application.
	serviceName string

	// env contains the environment that this application will run under.
	env string

	// version specifies the version of this application.
	version string

	// globalTags holds a set of tags that will be automatically applied to
	// all spans.
	globalTags map[string]interface{}

	// agentURL is the resolved trace agent endpoint. Scheme is http, https
	// or unix; for unix the socket path is in Path, httpClient dials the
	// socket and the transport sends to an http URL with a placeholder host.
	agentURL *url.URL

	// httpClient is the client performing agent requests.
	httpClient *http.Client

	// dogstatsdAddr specifies the address to connect for sending metrics to
	// the dogstatsd endpoint, in "host:port" or "unix://path" form.
	dogstatsdAddr string

	// statsdClient overrides the statsd client; used in tests.
	statsdClient statsd.ClientInterface

	// sampler is the primary root sampler.
	sampler Sampler

	// samplingRules configure the default rules sampler.
	samplingRules []SamplingRule

	// prioritySampling reports whether the service-rate priority sampler is
	// enabled. It is on by default; distributed tracing requires it.
	prioritySampling bool

	// contextProvider binds active spans to execution flows.
	contextProvider ContextProvider

	// partialFlushEnabled and partialFlushMinSpans configure flushing of
	// finished chunks of still-open traces.
	partialFlushEnabled  bool
	partialFlushMinSpans int

	// reportHostname and hostname configure stamping of the _dd.hostname
	// tag on root spans.
	reportHostname bool
	hostname       string

	// runtimeMetrics enables the background runtime metrics worker.
	runtimeMetrics bool

	// logToStdout sends traces to the log stream instead of an agent. It is
	// the agentless mode used in AWS Lambda environments.
	logToStdout bool

	// filters are applied to every finished batch before the writer.
	filters []Filter

	// transport overrides the agent transport; used in tests.
	transport transport

	// traceWriter overrides the writer; used in tests.
	traceWriter traceWriter
}

// StartOption represents a function that can be provided as a parameter to
// Start.
type StartOption func(*config)

// newConfig renders the tracer configuration based on defaults, environment
// variables and passed options. It is the only place where user input is
// validated: an unusable agent or dogstatsd URL is returned as an error
// rather than discovered on the hot path.
func newConfig(opts ...StartOption) (*config, error) {
	c := &config{
		enabled:              internal.BoolEnv("DD_TRACE_ENABLED", true),
		debug:                internal.BoolEnv("DD_TRACE_DEBUG", false),
		serviceName:          os.Getenv("DD_SERVICE"),
		env:                  os.Getenv("DD_ENV"),
		version:              os.Getenv("DD_VERSION"),
		prioritySampling:     true,
		partialFlushEnabled:  internal.BoolEnv("DD_TRACER_PARTIAL_FLUSH_ENABLED", true),
		partialFlushMinSpans: internal.IntEnv("DD_TRACER_PARTIAL_FLUSH_MIN_SPANS", defaultPartialFlushMinSpans),
		reportHostname:       internal.BoolEnv("DD_TRACE_REPORT_HOSTNAME", false),
		runtimeMetrics:       internal.BoolEnv("DD_RUNTIME_METRICS_ENABLED", false),
		logStartup:           internal.BoolEnv("DD_TRACE_STARTUP_LOGS", false),
	}
	if v := os.Getenv("DD_TAGS"); v != "" {
		for key, val := range parseTagString(v) {
			WithGlobalTag(key, val)(c)
		}
	}
	if c.partialFlushMinSpans <= 0 {
		log.Warn("DD_TRACER_PARTIAL_FLUSH_MIN_SPANS must be positive, using default %d", defaultPartialFlushMinSpans)
		c.partialFlushMinSpans = defaultPartialFlushMinSpans
	}
	c.logToStdout = inLambdaEnvironment()
	for _, fn := range opts {
		fn(c)
	}
	if c.debug {
		log.SetLevel(log.LevelDebug)
	}

	if c.agentURL == nil {
		u, err := resolveAgentURL()
		if err != nil {
			return nil, err
		}
		c.agentURL = u
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient(c.agentURL)
	}
	if c.dogstatsdAddr == "" {
		addr, err := resolveDogstatsdAddr()
		if err != nil {
			return nil, err
		}
		c.dogstatsdAddr = addr
	}
	if c.sampler == nil {
		c.sampler = newRulesSampler(c.samplingRules)
	}
	if c.contextProvider == nil {
		c.contextProvider = NewGoroutineContextProvider()
	}
	if c.reportHostname && c.hostname == "" {
		var err error
		c.hostname, err = os.Hostname()
		if err != nil {
			log.Warn("unable to look up hostname: %v", err)
		}
	}
	if c.serviceName != "" {
		globalconfig.SetServiceName(c.serviceName)
	}
	return c, nil
}

// inLambdaEnvironment reports whether the process runs in AWS Lambda with no
// reachable agent, in which case traces go to the log stream.
func inLambdaEnvironment() bool {
	if os.Getenv("DD_AGENT_HOST") != "" ||
		os.Getenv("DATADOG_TRACE_AGENT_HOSTNAME") != "" ||
		os.Getenv("DD_TRACE_AGENT_URL") != "" {
		// one of these set means there definitely is an agent
		return false
	}
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// resolveAgentURL determines the agent endpoint from the environment.
func resolveAgentURL() (*url.URL, error) {
	if v := os.Getenv("DD_TRACE_AGENT_URL"); v != "" {
		u, err := url.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DD_TRACE_AGENT_URL: %v", err)
		}
		switch u.Scheme {
		case "http", "https", "unix":
			return u, nil
		default:
			return nil, fmt.Errorf("unknown scheme %q for agent URL", u.Scheme)
		}
	}
	host := defaultAgentHostname
	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		host = v
	} else if v := os.Getenv("DATADOG_TRACE_AGENT_HOSTNAME"); v != "" {
		host = v
	}
	port := defaultAgentPort
	if v := os.Getenv("DD_TRACE_AGENT_PORT"); v != "" {
		port = v
	}
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)}, nil
}

// resolveDogstatsdAddr determines the dogstatsd endpoint from the
// environment. DD_DOGSTATSD_URL accepts udp://host:port, unix://path, a bare
// socket path or a bare host:port.
func resolveDogstatsdAddr() (string, error) {
	if v := os.Getenv("DD_DOGSTATSD_URL"); v != "" {
		if strings.HasPrefix(v, "/") {
			v = "unix://" + v
		} else if !strings.Contains(v, "://") {
			v = "udp://" + v
		}
		u, err := url.Parse(v)
		if err != nil {
			return "", fmt.Errorf("invalid DD_DOGSTATSD_URL: %v", err)
		}
		switch u.Scheme {
		case "unix":
			return "unix://" + u.Path, nil
		case "udp":
			return u.Host, nil
		default:
			return "", fmt.Errorf("unknown scheme %q for dogstatsd URL", u.Scheme)
		}
	}
	host := defaultAgentHostname
	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		host = v
	}
	port := defaultDogstatsdPort
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		port = v
	}
	return net.JoinHostPort(host, port), nil
}

// defaultHTTPClient returns the default http.Client to start the tracer
// with. For unix scheme agent URLs it dials the socket while keeping a fake
// TCP host in requests.
func defaultHTTPClient(agentURL *url.URL) *http.Client {
	if agentURL.Scheme == "unix" {
		socketPath := agentURL.Path
		return &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: defaultHTTPTimeout,
		}
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: defaultHTTPTimeout,
	}
}

// parseTagString parses a list of tags in the DD_TAGS format: pairs of
// "key:value" separated by commas or spaces. A pair without a colon becomes
// a key with an empty value.
func parseTagString(str string) map[string]string {
	res := make(map[string]string)
	for _, tag := range strings.FieldsFunc(str, func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		kv := strings.SplitN(tag, ":", 2)
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		var val string
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}
		res[key] = val
	}
	return res
}

// statsTags returns the constant tags applied to health and runtime metrics.
func statsTags(c *config) []string {
	tags := []string{
		"lang:go",
		"version:" + version.Tag,
		"lang_version:" + goVersion(),
	}
	if c.serviceName != "" {
		tags = append(tags, "service:"+c.serviceName)
	}
	if c.env != "" {
		tags = append(tags, "env:"+c.env)
	}
	if c.hostname != "" {
		tags = append(tags, "host:"+c.hostname)
	}
	tags = append(tags, "runtime-id:"+globalconfig.RuntimeID())
	return tags
}

func newStatsdClient(c *config) (statsd.ClientInterface, error) {
	if c.statsdClient != nil {
		return c.statsdClient, nil
	}
	client, err := statsd.New(c.dogstatsdAddr, statsd.WithMaxMessagesPerPayload(40), statsd.WithTags(statsTags(c)))
	if err != nil {
		return &statsd.NoOpClient{}, err
	}
	return client, nil
}

// WithService sets the default service name for the program.
func WithService(name string) StartOption {
	return func(c *config) {
		c.serviceName = name
	}
}

// WithEnv sets the environment to which all traces started by the tracer
// will be submitted. The default value is the environment variable DD_ENV,
// if it is set.
func WithEnv(env string) StartOption {
	return func(c *config) {
		c.env = env
	}
}

// WithServiceVersion specifies the version of the service that is running.
// This will be included in spans from this service in the "version" tag,
// provided that span service name and config service name match.
func WithServiceVersion(version string) StartOption {
	return func(c *config) {
		c.version = version
	}
}

// WithGlobalTag sets a key/value pair which will be set as a tag on all
// spans created by tracer.
func WithGlobalTag(k string, v interface{}) StartOption {
	return func(c *config) {
		if c.globalTags == nil {
			c.globalTags = make(map[string]interface{})
		}
		c.globalTags[k] = v
	}
}

// WithAgentAddr sets the address where the agent is located. The default is
// localhost:8126. It should contain both host and port.
func WithAgentAddr(addr string) StartOption {
	return func(c *config) {
		c.agentURL = &url.URL{Scheme: "http", Host: addr}
	}
}

// WithUDS configures the tracer to reach the agent over the given unix
// domain socket path.
func WithUDS(socketPath string) StartOption {
	return func(c *config) {
		c.agentURL = &url.URL{Scheme: "unix", Path: socketPath}
	}
}

// WithDogstatsdAddress specifies the address to connect to for sending
// metrics to the dogstatsd server. The default is localhost:8125, or the
// combination of DD_AGENT_HOST and DD_DOGSTATSD_PORT when set.
func WithDogstatsdAddress(addr string) StartOption {
	return func(c *config) {
		c.dogstatsdAddr = addr
	}
}

// WithStatsdClient sets a custom statsd client, bypassing dogstatsd address
// resolution. Mostly useful in tests.
func WithStatsdClient(client statsd.ClientInterface) StartOption {
	return func(c *config) {
		c.statsdClient = client
	}
}

// WithHTTPClient specifies the HTTP client to use when emitting spans to
// the agent.
func WithHTTPClient(client *http.Client) StartOption {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithSampler sets the given sampler to be used with the tracer. By default
// the rules sampler (with no rules) is used, which keeps every trace and
// relies on priority sampling for volume control.
func WithSampler(s Sampler) StartOption {
	return func(c *config) {
		c.sampler = s
	}
}

// WithSamplingRules specifies the sampling rates to apply to trace root
// spans, in order. The first matching rule is used.
func WithSamplingRules(rules []SamplingRule) StartOption {
	return func(c *config) {
		c.samplingRules = rules
	}
}

// WithPrioritySampling enables or disables the service-rate priority
// sampler. It is enabled by default; disabling it degrades distributed
// trace coordination.
func WithPrioritySampling(enabled bool) StartOption {
	return func(c *config) {
		c.prioritySampling = enabled
	}
}

// WithContextProvider replaces the capability used to bind active spans to
// execution flows.
func WithContextProvider(p ContextProvider) StartOption {
	return func(c *config) {
		c.contextProvider = p
	}
}

// WithPartialFlushing sets the number of finished spans of an open trace
// after which the finished portion is flushed on its own. Passing 0 disables
// partial flushing.
func WithPartialFlushing(numSpans int) StartOption {
	return func(c *config) {
		if numSpans <= 0 {
			c.partialFlushEnabled = false
			return
		}
		c.partialFlushEnabled = true
		c.partialFlushMinSpans = numSpans
	}
}

// WithHostname allows specifying the hostname with which to mark outgoing
// traces.
func WithHostname(name string) StartOption {
	return func(c *config) {
		c.hostname = name
		c.reportHostname = true
	}
}

// WithRuntimeMetrics enables automatic collection of runtime metrics every
// 10 seconds.
func WithRuntimeMetrics() StartOption {
	return func(c *config) {
		c.runtimeMetrics = true
	}
}

// WithDebugMode enables debug mode on the tracer, resulting in more verbose
// logging.
func WithDebugMode(enabled bool) StartOption {
	return func(c *config) {
		c.debug = enabled
	}
}

// WithLogger sets logger as the tracer's error printer.
func WithLogger(logger log.Logger) StartOption {
	return func(_ *config) {
		log.UseLogger(logger)
	}
}

// WithLogStartup allows enabling or disabling the startup log.
func WithLogStartup(enabled bool) StartOption {
	return func(c *config) {
		c.logStartup = enabled
	}
}

// WithLambdaMode enables lambda mode on the tracer, for use with AWS Lambda:
// traces are written to the log stream instead of an agent.
func WithLambdaMode(enabled bool) StartOption {
	return func(c *config) {
		c.logToStdout = enabled
	}
}

// WithTraceFilter registers a filter run on every finished batch before it
// reaches the writer. Filters run in registration order; a filter returning
// an empty batch drops it.
func WithTraceFilter(f Filter) StartOption {
	return func(c *config) {
		c.filters = append(c.filters, f)
	}
}

// withTransport is used in tests to replace the agent transport.
func withTransport(t transport) StartOption {
	return func(c *config) {
		c.transport = t
	}
}

// withTraceWriter is used in tests to capture batches handed to the writer.
func withTraceWriter(w traceWriter) StartOption {
	return func(c *config) {
		c.traceWriter = w
	}
}
