// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package ext

const (
	// ServiceName defines the Service name for this Span.
	ServiceName = "service.name"

	// ResourceName defines the Resource name for the Span.
	ResourceName = "resource.name"

	// SpanType defines the Span type (web, db, cache).
	SpanType = "span.type"

	// SpanName is a pseudo-tag used to overwrite the span operation name.
	SpanName = "span.name"

	// Environment specifies the environment to use with a trace.
	Environment = "env"

	// Version is a tag that specifies the version of the running application.
	Version = "version"

	// RuntimeID is a tag that contains a unique id for this process.
	RuntimeID = "runtime-id"

	// Language specifies the tracer implementation language, set on root
	// spans of internal application traces so runtime metrics can be
	// correlated.
	Language = "language"

	// Error specifies the error tag. Setting it marks the span as errored.
	Error = "error"

	// ErrorMsg specifies the error message.
	ErrorMsg = "error.msg"

	// ErrorType specifies the error type.
	ErrorType = "error.type"

	// ErrorStack specifies the stack dump.
	ErrorStack = "error.stack"

	// ManualKeep is a tag which specifies that the trace to which this span
	// belongs to should be kept when set to true.
	ManualKeep = "manual.keep"

	// ManualDrop is a tag which specifies that the trace to which this span
	// belongs to should be dropped when set to true.
	ManualDrop = "manual.drop"
)
