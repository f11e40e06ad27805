// Copyright 2017 Fortio Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rpc implements the one bidirectional streaming endpoint named
// in spec.md §4.8/§6: a request stream carrying Plans, a response stream
// carrying per-plan progress/completion records. The wire messages here
// are plain Go structs rather than protoc-generated types — see
// DESIGN.md for why — encoded with the gob codec registered in codec.go.
package rpc // import "metron.dev/metron/rpc"

import (
	"fmt"
	"time"

	"metron.dev/metron/plan"
)

// WireSegment is the over-the-wire representation of plan.Segment: a
// structured schema of Fixed/Linear segments per spec.md §6.
type WireSegment struct {
	Kind          int32
	Rate          uint32
	RateStart     uint32
	RateEnd       uint32
	DurationNanos int64
	Forever       bool
}

// WireHeader preserves the ordered, duplicate-allowed name/value list
// from plan.Header across the wire.
type WireHeader struct {
	Name  string
	Value string
}

// WirePlan is the over-the-wire representation of plan.Plan.
type WirePlan struct {
	ID                string
	Segments          []WireSegment
	Targets           []string
	Method            string
	Headers           []WireHeader
	Payload           []byte
	Connections       int32
	LatencyCorrection bool
}

// ToWire converts p into its wire representation.
func ToWire(p *plan.Plan) *WirePlan {
	w := &WirePlan{
		ID:                p.ID,
		Targets:           append([]string(nil), p.Targets...),
		Method:            p.Method,
		Payload:           append([]byte(nil), p.Payload...),
		Connections:       int32(p.Connections),
		LatencyCorrection: p.LatencyCorrection,
	}
	for _, s := range p.Segments {
		w.Segments = append(w.Segments, WireSegment{
			Kind:          int32(s.Kind),
			Rate:          uint32(s.Rate),
			RateStart:     uint32(s.RateStart),
			RateEnd:       uint32(s.RateEnd),
			DurationNanos: int64(s.Duration),
			Forever:       s.Forever,
		})
	}
	for _, h := range p.Headers {
		w.Headers = append(w.Headers, WireHeader{Name: h.Name, Value: h.Value})
	}
	return w
}

// ToPlan converts a WirePlan back into a plan.Plan. A missing or
// malformed Plan (nil, or a kind outside the known set) is reported as
// an error so the RPC server can answer InvalidArgument, per spec.md
// §4.8.
func (w *WirePlan) ToPlan() (*plan.Plan, error) {
	if w == nil {
		return nil, fmt.Errorf("missing plan")
	}
	p := &plan.Plan{
		ID:                w.ID,
		Targets:           append([]string(nil), w.Targets...),
		Method:            w.Method,
		Payload:           append([]byte(nil), w.Payload...),
		Connections:       int(w.Connections),
		LatencyCorrection: w.LatencyCorrection,
	}
	for i, s := range w.Segments {
		switch plan.Kind(s.Kind) {
		case plan.Fixed, plan.Linear:
		default:
			return nil, fmt.Errorf("segment %d: unknown wire kind %d", i, s.Kind)
		}
		p.Segments = append(p.Segments, plan.Segment{
			Kind:      plan.Kind(s.Kind),
			Rate:      plan.Rate(s.Rate),
			RateStart: plan.Rate(s.RateStart),
			RateEnd:   plan.Rate(s.RateEnd),
			Duration:  time.Duration(s.DurationNanos),
			Forever:   s.Forever,
		})
	}
	for _, h := range w.Headers {
		p.Headers = append(p.Headers, plan.Header{Name: h.Name, Value: h.Value})
	}
	return p, nil
}

// RunRequest is one message on the request stream: one Plan to execute.
type RunRequest struct {
	Plan *WirePlan
}

// RunResponse is one message on the response stream: a progress or
// completion record for one previously-submitted Plan, identified by
// PlanID.
type RunResponse struct {
	PlanID string
	Target string
	Done   bool

	TotalRequests int64
	Total2xx      int64
	TotalNon2xx   int64
	TotalErrors   int64

	// ErrorMessage is set when the run for this Plan failed. A partial
	// Report may still have been produced and is reflected in the
	// counters above, per the partial-report rule.
	ErrorMessage string
}
