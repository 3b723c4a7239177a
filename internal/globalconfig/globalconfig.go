// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package globalconfig stores configuration which applies globally to both
// the tracer and integrations.
package globalconfig

import (
	"sync"

	"github.com/google/uuid"
)

var cfg = &config{
	runtimeID: uuid.New().String(),
}

type config struct {
	mu          sync.RWMutex
	serviceName string
	runtimeID   string
}

// ServiceName returns the globally set service name.
func ServiceName() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return cfg.serviceName
}

// SetServiceName sets the global service name set for this application.
func SetServiceName(name string) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	cfg.serviceName = name
}

// RuntimeID returns this process's unique runtime id.
func RuntimeID() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return cfg.runtimeID
}

// ResetRuntimeID generates a new runtime id. It is called after a fork is
// detected so that data collected in the child process is not associated
// with the parent's runtime.
func ResetRuntimeID() {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	cfg.runtimeID = uuid.New().String()
}
