// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package ext

// Standard system metadata names.
const (
	// Pid is the process ID, set as a metric on the root span of every trace
	// started by a process.
	Pid = "system.pid"
)
