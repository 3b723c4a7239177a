// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"fmt"
	"math"
	"os"
	"regexp"

	"golang.org/x/time/rate"

	"gopkg.in/DataDog/dd-trace-core.v1/internal"
	"gopkg.in/DataDog/dd-trace-core.v1/internal/log"
)

// SamplingRule is used for applying sampling rates to spans that match the
// service name, operation name or both. The first matching rule wins.
type SamplingRule struct {
	// Service and Name are evaluated against the root span's service and
	// operation name. A nil pattern matches everything.
	Service *regexp.Regexp
	Name    *regexp.Regexp

	// Rate is the keep probability applied when the rule matches.
	Rate float64
}

// ServiceRule returns a SamplingRule matching spans with the given service
// name, sampled at the provided rate.
func ServiceRule(service string, rate float64) SamplingRule {
	return SamplingRule{
		Service: regexp.MustCompile("^" + regexp.QuoteMeta(service) + "$"),
		Rate:    rate,
	}
}

// NameRule returns a SamplingRule matching spans with the given operation
// name, sampled at the provided rate.
func NameRule(name string, rate float64) SamplingRule {
	return SamplingRule{
		Name: regexp.MustCompile("^" + regexp.QuoteMeta(name) + "$"),
		Rate: rate,
	}
}

// NameServiceRule returns a SamplingRule matching on both operation and
// service name, sampled at the provided rate.
func NameServiceRule(name, service string, rate float64) SamplingRule {
	return SamplingRule{
		Service: regexp.MustCompile("^" + regexp.QuoteMeta(service) + "$"),
		Name:    regexp.MustCompile("^" + regexp.QuoteMeta(name) + "$"),
		Rate:    rate,
	}
}

// RateRule returns a SamplingRule matching every span, sampled at rate.
func RateRule(rate float64) SamplingRule {
	return SamplingRule{Rate: rate}
}

func (sr SamplingRule) match(s *Span) bool {
	if sr.Service != nil && !sr.Service.MatchString(s.service) {
		return false
	}
	if sr.Name != nil && !sr.Name.MatchString(s.name) {
		return false
	}
	return true
}

// defaultRateLimit specifies the default trace rate limit used when
// DD_TRACE_RATE_LIMIT is not set: 100 sampled traces per second.
const defaultRateLimit = 100.0

// rulesSampler is the default primary sampler. It applies user-defined rules
// to root spans; when no rule matches it falls back to the global sample
// rate (DD_TRACE_SAMPLE_RATE), and when that is unset too it keeps
// everything. Traces kept by a rule or the global rate pass through a token
// bucket (DD_TRACE_RATE_LIMIT) bounding the volume shipped under load.
type rulesSampler struct {
	rules      []SamplingRule
	globalRate float64 // NaN when unset
	limiter    *rate.Limiter
}

func newRulesSampler(rules []SamplingRule) *rulesSampler {
	return &rulesSampler{
		rules:      rules,
		globalRate: globalSampleRate(),
		limiter:    newRateLimiter(),
	}
}

// globalSampleRate returns the rate set by DD_TRACE_SAMPLE_RATE, or NaN when
// unset or invalid.
func globalSampleRate() float64 {
	defaultRate := math.NaN()
	v := os.Getenv("DD_TRACE_SAMPLE_RATE")
	if v == "" {
		return defaultRate
	}
	r := internal.FloatEnv("DD_TRACE_SAMPLE_RATE", defaultRate)
	if r >= 0.0 && r <= 1.0 {
		return r
	}
	log.Warn("ignoring DD_TRACE_SAMPLE_RATE: out of range %f", r)
	return defaultRate
}

func newRateLimiter() *rate.Limiter {
	limit := internal.FloatEnv("DD_TRACE_RATE_LIMIT", defaultRateLimit)
	if limit < 0.0 {
		log.Warn("DD_TRACE_RATE_LIMIT negative, using default value %f", defaultRateLimit)
		limit = defaultRateLimit
	}
	return rate.NewLimiter(rate.Limit(limit), int(math.Max(1, limit)))
}

// Sample implements Sampler. It reports whether the root span's trace should
// be kept, combining rule rates, the global rate and the rate limiter.
func (rs *rulesSampler) Sample(s *Span) bool {
	if s == nil {
		return false
	}
	for _, rule := range rs.rules {
		if rule.match(s) {
			return rs.applyRate(s, rule.Rate)
		}
	}
	if !math.IsNaN(rs.globalRate) {
		return rs.applyRate(s, rs.globalRate)
	}
	// no rule and no configured global rate: keep, subject to nothing
	return true
}

func (rs *rulesSampler) applyRate(s *Span, r float64) bool {
	s.setMetric(keyRulesSamplerAppliedRate, r)
	if !sampledByRate(s.traceID, r) {
		return false
	}
	return rs.limiter.Allow()
}

// describe returns a serializable description of the sampler for startup
// diagnostics.
func (rs *rulesSampler) describe() string {
	if len(rs.rules) > 0 {
		return fmt.Sprintf("rules(%d)", len(rs.rules))
	}
	if !math.IsNaN(rs.globalRate) {
		return fmt.Sprintf("rate(%f)", rs.globalRate)
	}
	return "keep-all"
}

// keyRulesSamplerAppliedRate is the metric key reporting the rule rate that
// was applied to the trace.
const keyRulesSamplerAppliedRate = "_dd.rule_psr"
