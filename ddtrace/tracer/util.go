// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"bytes"
	"reflect"
	"runtime"
	"strconv"
	"strings"
)

// sameFunc reports whether a and b point at the same function.
func sameFunc(a, b SpanHook) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// goVersion returns the Go release the binary was built with, without the
// "go" prefix.
func goVersion() string {
	return strings.TrimPrefix(runtime.Version(), "go")
}

// goroutineID returns the ID of the calling goroutine, parsed off the header
// line of its stack dump ("goroutine 18 [running]:"). The runtime does not
// expose this on purpose; the goroutine-slot context provider needs a stable
// key per execution flow and this is the only portable one.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}
