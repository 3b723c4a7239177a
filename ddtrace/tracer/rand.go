// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	cryptorand "crypto/rand"
	"math"
	"math/big"
	rand "math/rand"
	"sync"
	"time"

	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// random holds the process' pseudo-random ID generator. It is guarded by its
// own lock rather than relying on the global rand source so that it can be
// reseeded wholesale when a fork is detected.
var random *lockedSource

func init() {
	random = newIDSource()
}

type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newIDSource() *lockedSource {
	var seed int64
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(math.MaxInt64))
	if err == nil {
		seed = n.Int64()
	} else {
		log.Warn("cannot generate random seed: %v; using current time", err)
		seed = time.Now().UnixNano()
	}
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

// Uint64 returns a positive 63-bit integer in [1, 2^63). The high bit is
// kept clear so identifiers survive signed integer wire encodings, and 0 is
// never produced because a zero trace ID means "no parent".
func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if v := uint64(s.rnd.Int63()); v != 0 {
			return v
		}
	}
}

// reseed replaces the generator state. A forked child must call this before
// generating any ID or it would mint the same trace IDs as its parent.
func (s *lockedSource) reseed() {
	fresh := newIDSource()
	s.mu.Lock()
	s.rnd = fresh.rnd
	s.mu.Unlock()
}

func randUint64() uint64 {
	return random.Uint64()
}
