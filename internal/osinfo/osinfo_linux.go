// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package osinfo

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

func osName() string {
	// Most Linux distributions follow the freedesktop.org os-release spec.
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "Linux (Unknown Distribution)"
	}
	defer f.Close()
	name := "Linux (Unknown Distribution)"
	s := bufio.NewScanner(f)
	for s.Scan() {
		parts := strings.SplitN(s.Text(), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] == "NAME" {
			name = strings.Trim(parts[1], "\"")
		}
	}
	return name
}

func osVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(uts.Release[:])
}
