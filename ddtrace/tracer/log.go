// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"gopkg.in/DataDog/dd-trace-core.v1/internal/globalconfig"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/osinfo"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/version"
)

// startupInfo contains various information about the status of the tracer on
// startup.
type startupInfo struct {
	Date                  string            `json:"date"`         // ISO 8601 date and time of start
	OSName                string            `json:"os_name"`      // Windows, Darwin, Debian, etc.
	OSVersion             string            `json:"os_version"`   // Version of the OS
	Version               string            `json:"version"`      // Tracer version
	Lang                  string            `json:"lang"`         // "Go"
	LangVersion           string            `json:"lang_version"` // Go version, e.g. go1.22
	Env                   string            `json:"env"`          // Tracer env
	Service               string            `json:"service"`      // Tracer Service
	AgentURL              string            `json:"agent_url"`    // The address of the agent
	AgentError            string            `json:"agent_error"`  // Any error that occurred trying to connect to agent
	Debug                 bool              `json:"debug"`        // Whether debug mode is enabled
	Sampler               string            `json:"sampler"`      // A description of the primary sampler
	PrioritySampling      bool              `json:"priority_sampling"`
	Tags                  map[string]string `json:"tags"`
	RuntimeMetricsEnabled bool              `json:"runtime_metrics_enabled"`
	ApplicationVersion    string            `json:"dd_version"`
	Architecture          string            `json:"architecture"`
	LambdaMode            string            `json:"lambda_mode"`
	PartialFlushEnabled   bool              `json:"partial_flush_enabled"`
	PartialFlushMinSpans  int               `json:"partial_flush_min_spans"`
	DogstatsdAddr         string            `json:"dogstatsd_address"`
}

// checkEndpoint tries to connect to the URL specified by endpoint. An error
// is returned if the endpoint is not reachable.
func checkEndpoint(c *http.Client, endpoint string) error {
	req, err := http.NewRequest("POST", endpoint, emptyPayload())
	if err != nil {
		return fmt.Errorf("cannot create http request: %v", err)
	}
	req.Header.Set("X-Datadog-Trace-Count", "0")
	req.Header.Set("Content-Type", "application/msgpack")
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return fmt.Errorf("%s", res.Status)
	}
	return nil
}

func emptyPayload() *payload {
	p := newPayload()
	p.reset()
	return p
}

// logStartup generates a startupInfo for a tracer and writes it to the log
// in JSON format. Collection faults are reported at warning level and never
// abort tracer initialization.
func logStartup(t *tracer) {
	tags := make(map[string]string)
	for k, v := range t.config.globalTags {
		tags[k] = fmt.Sprintf("%v", v)
	}
	tags["runtime-id"] = globalconfig.RuntimeID()

	var samplerDesc string
	switch s := t.config.sampler.(type) {
	case *rulesSampler:
		samplerDesc = s.describe()
	case RateSampler:
		samplerDesc = fmt.Sprintf("rate(%f)", s.Rate())
	default:
		samplerDesc = fmt.Sprintf("%T", s)
	}

	info := startupInfo{
		Date:                  time.Now().Format(time.RFC3339),
		OSName:                osinfo.OSName(),
		OSVersion:             osinfo.OSVersion(),
		Version:               version.Tag,
		Lang:                  "Go",
		LangVersion:           runtime.Version(),
		Env:                   t.config.env,
		Service:               t.config.serviceName,
		AgentURL:              t.config.agentURL.String(),
		Debug:                 t.config.debug,
		Sampler:               samplerDesc,
		PrioritySampling:      t.prioritySampler != nil,
		Tags:                  tags,
		RuntimeMetricsEnabled: t.config.runtimeMetrics,
		ApplicationVersion:    t.config.version,
		Architecture:          runtime.GOARCH,
		LambdaMode:            fmt.Sprintf("%t", t.config.logToStdout),
		PartialFlushEnabled:   t.config.partialFlushEnabled,
		PartialFlushMinSpans:  t.config.partialFlushMinSpans,
		DogstatsdAddr:         t.config.dogstatsdAddr,
	}
	if !t.config.logToStdout {
		if err := checkEndpoint(t.config.httpClient, newHTTPTransport(t.config.agentURL, t.config.httpClient).endpoint()); err != nil {
			info.AgentError = fmt.Sprintf("%s", err)
			log.Warn("DIAGNOSTICS Unable to reach agent intake: %s", err)
		}
	}
	bs, err := json.Marshal(info)
	if err != nil {
		log.Warn("DIAGNOSTICS Failed to serialize json for startup log (%v) %#v\n", err, info)
		return
	}
	log.Info("DATADOG TRACER CONFIGURATION %s\n", string(bs))
}
