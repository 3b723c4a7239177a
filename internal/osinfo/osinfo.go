// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package osinfo provides information about the current operating system
// release, used in the tracer's startup diagnostics record.
package osinfo

// OSName returns the name of the operating system.
func OSName() string {
	return osName()
}

// OSVersion returns the operating system release, e.g. major/minor version
// number and build ID.
func OSVersion() string {
	return osVersion()
}
