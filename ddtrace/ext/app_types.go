// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package ext

// Application types to be set on spans. The set below mirrors the span types
// understood by the agent and the backend. Span types that are internal to
// an application (as opposed to describing an outbound call to another
// system) are the ones correlated with runtime metrics.
const (
	// SpanTypeWeb marks a span as serving a web request.
	SpanTypeWeb = "web"

	// SpanTypeWorker marks a span as background-job processing.
	SpanTypeWorker = "worker"

	// SpanTypeTemplate marks a span as template rendering.
	SpanTypeTemplate = "template"

	// SpanTypeCustom is the fallback for user-defined units of work.
	SpanTypeCustom = "custom"

	// SpanTypeHTTP marks a span as an outbound HTTP client request.
	SpanTypeHTTP = "http"

	// SpanTypeSQL marks a span as a SQL operation.
	SpanTypeSQL = "sql"

	// SpanTypeCache marks a span as a cache operation.
	SpanTypeCache = "cache"
)
