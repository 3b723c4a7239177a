// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"encoding/json"
	"io"
	"sync"

	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// Sampler is the generic interface of any sampler. It must be safe for
// concurrent use.
type Sampler interface {
	// Sample returns true if the given span should be sampled.
	Sample(span *Span) bool
}

// RateSampler is a sampler implementation which randomly selects spans using
// a provided rate. Kept spans carry the rate in the _sample_rate metric so
// the backend can scale statistics back up.
type RateSampler interface {
	Sampler

	// Rate returns the current sample rate.
	Rate() float64

	// SetRate sets a new sample rate.
	SetRate(rate float64)
}

// rateSampler samples from a sample rate.
type rateSampler struct {
	sync.RWMutex
	rate float64
}

// NewAllSampler is a short-hand for NewRateSampler(1). It samples all spans.
func NewAllSampler() RateSampler { return NewRateSampler(1) }

// NewRateSampler returns an initialized RateSampler with its sample rate.
func NewRateSampler(rate float64) RateSampler {
	return &rateSampler{rate: rate}
}

func (r *rateSampler) Rate() float64 {
	r.RLock()
	defer r.RUnlock()
	return r.rate
}

func (r *rateSampler) SetRate(rate float64) {
	r.Lock()
	r.rate = rate
	r.Unlock()
}

// constants used for the Knuth hashing, same as agent.
const knuthFactor = uint64(1111111111111111111)

// Sample returns true if the given span should be sampled.
func (r *rateSampler) Sample(spn *Span) bool {
	if spn == nil {
		return false
	}
	r.RLock()
	defer r.RUnlock()
	if r.rate < 1 {
		return sampledByRate(spn.traceID, r.rate)
	}
	return true
}

// sampledByRate verifies if the number n should be sampled at the specified
// rate. The product with the Knuth factor spreads sequential IDs uniformly,
// and keeps the decision deterministic per trace across services.
func sampledByRate(n uint64, rate float64) bool {
	if rate < 1 {
		return n*knuthFactor < uint64(rate*float64(maxTraceID))
	}
	return true
}

// maxTraceID is the upper bound of the Knuth product, which spans the full
// 64-bit range whatever the width of the IDs fed into it.
const maxTraceID = ^uint64(0)

// prioritySampler is the sampler behind priority sampling: it keeps a table
// of sample rates keyed by service-and-env, fed back by the agent with every
// flush response, and derives the AUTO_KEEP/AUTO_REJECT decision for new
// root spans.
type prioritySampler struct {
	mu          sync.RWMutex
	rates       map[string]float64
	defaultRate float64
	env         string
}

func newPrioritySampler(env string) *prioritySampler {
	return &prioritySampler{
		rates:       make(map[string]float64),
		defaultRate: 1.,
		env:         env,
	}
}

// ratesPayload is the agent response envelope carrying feedback rates.
type ratesPayload struct {
	Rates map[string]float64 `json:"rate_by_service"`
}

// readRatesJSON loads the new sampling rates from the agent's response body.
func (ps *prioritySampler) readRatesJSON(rc io.ReadCloser) error {
	var payload ratesPayload
	if err := json.NewDecoder(rc).Decode(&payload); err != nil {
		return err
	}
	rc.Close()
	ps.mu.Lock()
	ps.rates = payload.Rates
	ps.mu.Unlock()
	return nil
}

// getRate returns the sampling rate to be used for the given span. A span
// whose service and env have no entry in the table, including one with an
// unset service, gets the default rate of 1 and is kept.
func (ps *prioritySampler) getRate(spn *Span) float64 {
	key := "service:" + spn.service + ",env:" + ps.env
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if rate, ok := ps.rates[key]; ok {
		return rate
	}
	return ps.defaultRate
}

// Sample implements Sampler, deciding keep/drop for the root span at the
// service-adjusted rate.
func (ps *prioritySampler) Sample(spn *Span) bool {
	if spn == nil {
		return false
	}
	rate := ps.getRate(spn)
	if !sampledByRate(spn.traceID, rate) {
		return false
	}
	if log.DebugEnabled() {
		log.Debug("kept %s at rate %f", spn.name, rate)
	}
	return true
}
