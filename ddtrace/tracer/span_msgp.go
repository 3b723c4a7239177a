// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import "github.com/tinylib/msgp/msgp"

// spanList is the unit of batching handed to the writer: the finished spans
// of one trace chunk.
type spanList []*Span

var _ msgp.Encodable = (spanList)(nil)

// EncodeMsg implements msgp.Encodable.
func (z spanList) EncodeMsg(en *msgp.Writer) (err error) {
	if err = en.WriteArrayHeader(uint32(len(z))); err != nil {
		return
	}
	for _, s := range z {
		if s == nil {
			if err = en.WriteNil(); err != nil {
				return
			}
			continue
		}
		if err = s.EncodeMsg(en); err != nil {
			return
		}
	}
	return
}

// EncodeMsg implements msgp.Encodable. The field set and names are the v0.4
// trace payload format understood by the agent.
func (s *Span) EncodeMsg(en *msgp.Writer) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err = en.WriteMapHeader(12); err != nil {
		return
	}
	if err = en.WriteString("name"); err != nil {
		return
	}
	if err = en.WriteString(s.name); err != nil {
		return
	}
	if err = en.WriteString("service"); err != nil {
		return
	}
	if err = en.WriteString(s.service); err != nil {
		return
	}
	if err = en.WriteString("resource"); err != nil {
		return
	}
	if err = en.WriteString(s.resource); err != nil {
		return
	}
	if err = en.WriteString("type"); err != nil {
		return
	}
	if err = en.WriteString(s.spanType); err != nil {
		return
	}
	if err = en.WriteString("start"); err != nil {
		return
	}
	if err = en.WriteInt64(s.start); err != nil {
		return
	}
	if err = en.WriteString("duration"); err != nil {
		return
	}
	if err = en.WriteInt64(s.duration); err != nil {
		return
	}
	if err = en.WriteString("meta"); err != nil {
		return
	}
	if err = en.WriteMapHeader(uint32(len(s.meta))); err != nil {
		return
	}
	for k, v := range s.meta {
		if err = en.WriteString(k); err != nil {
			return
		}
		if err = en.WriteString(v); err != nil {
			return
		}
	}
	if err = en.WriteString("metrics"); err != nil {
		return
	}
	if err = en.WriteMapHeader(uint32(len(s.metrics))); err != nil {
		return
	}
	for k, v := range s.metrics {
		if err = en.WriteString(k); err != nil {
			return
		}
		if err = en.WriteFloat64(v); err != nil {
			return
		}
	}
	if err = en.WriteString("span_id"); err != nil {
		return
	}
	if err = en.WriteUint64(s.spanID); err != nil {
		return
	}
	if err = en.WriteString("trace_id"); err != nil {
		return
	}
	if err = en.WriteUint64(s.traceID); err != nil {
		return
	}
	if err = en.WriteString("parent_id"); err != nil {
		return
	}
	if err = en.WriteUint64(s.parentID); err != nil {
		return
	}
	if err = en.WriteString("error"); err != nil {
		return
	}
	if err = en.WriteInt32(s.error); err != nil {
		return
	}
	return
}
