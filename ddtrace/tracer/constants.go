// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

// Keys stamped on chunk roots and root spans. These strings are part of the
// wire protocol shared with the agent and must not change.
const (
	// keySamplingPriority is the metric key holding the trace's sampling
	// priority, stamped on the chunk root of every flushed payload.
	keySamplingPriority = "_sampling_priority_v1"

	// keySamplingRate is the metric key holding the rate applied by a rate
	// sampler, letting the backend scale statistics back up.
	keySamplingRate = "_sample_rate"

	// keyOrigin is the meta key holding the provenance of a trace, e.g.
	// "synthetics".
	keyOrigin = "_dd.origin"

	// keyHostname is the meta key holding the tracer's reported hostname.
	keyHostname = "_dd.hostname"
)
