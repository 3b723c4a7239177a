// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import "time"

var (
	// monoBase anchors now() to the monotonic clock reading taken at startup.
	monoBase = time.Now()
	wallBase = monoBase.UnixNano()
)

// now returns the current UNIX time in nanoseconds, computed as the wall
// time at startup plus the monotonic time elapsed since, so durations derived
// from two calls are immune to wall-clock jumps; absolute values are only
// used for span start stamps.
func now() int64 {
	return wallBase + int64(time.Since(monoBase))
}
