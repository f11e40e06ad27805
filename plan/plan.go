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

// Package plan holds Metron's declarative, immutable load test schedule: a
// sequence of PlanSegments and the execution parameters (targets, method,
// headers, payload, connections) that go with them. A Plan doesn't run
// anything itself; it produces a lazy, monotonic sequence of dispatch
// instants through Ticks, which the signaller package drives.
package plan // import "metron.dev/metron/plan"

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"metron.dev/metron/internal/metronerr"
)

// DefaultMethod is used when a Plan's Method field is left empty.
const DefaultMethod = "GET"

// DefaultConnections is used when a Plan's Connections field is left at 0.
const DefaultConnections = 4

// Rate is a positive integer requests-per-second value.
type Rate uint32

// Period returns the time between two consecutive requests at this Rate.
func (r Rate) Period() time.Duration {
	if r == 0 {
		return 0
	}
	return time.Second / time.Duration(r)
}

// Kind distinguishes the two PlanSegment shapes.
type Kind int

const (
	// Fixed is a constant-rate segment.
	Fixed Kind = iota
	// Linear is a segment whose rate varies linearly between two endpoints.
	Linear
)

func (k Kind) String() string {
	if k == Linear {
		return "linear"
	}
	return "fixed"
}

// Segment is one continuous stretch of a Plan at a fixed or linearly
// varying rate. Use FixedSegment, FixedForever or LinearSegment to build
// one; the zero value is not valid.
type Segment struct {
	Kind Kind

	// Rate is used when Kind == Fixed.
	Rate Rate

	// RateStart and RateEnd are used when Kind == Linear.
	RateStart Rate
	RateEnd   Rate

	// Duration is this segment's length. Ignored when Forever is true.
	Duration time.Duration

	// Forever marks a Fixed segment with no end. Only valid on the last
	// segment of a Plan and never valid on a Linear segment.
	Forever bool
}

// FixedSegment is a constant-rate segment that runs for duration.
func FixedSegment(rate Rate, duration time.Duration) Segment {
	return Segment{Kind: Fixed, Rate: rate, Duration: duration}
}

// FixedForever is a constant-rate segment with no end. Only the last
// segment in a Plan may use this.
func FixedForever(rate Rate) Segment {
	return Segment{Kind: Fixed, Rate: rate, Forever: true}
}

// LinearSegment ramps the rate from start to end over duration.
func LinearSegment(start, end Rate, duration time.Duration) Segment {
	return Segment{Kind: Linear, RateStart: start, RateEnd: end, Duration: duration}
}

// Header is one name/value pair. Duplicates are allowed and order is
// significant: Headers with the same name are transmitted in the order
// given.
type Header struct {
	Name  string
	Value string
}

// Plan is an ordered, non-empty sequence of PlanSegments plus the
// execution parameters shared by every request the plan dispatches.
// A Plan is constructed once and is immutable for the duration of a run;
// Normalize/Validate are the only mutating/checking operations and both
// are meant to run before the Plan is handed to a Signaller.
type Plan struct {
	ID                string
	Segments          []Segment
	Targets           []string
	Method            string
	Headers           []Header
	Payload           []byte
	Connections       int
	LatencyCorrection bool
}

// Normalize fills zero-valued fields with their defaults and assigns an ID
// if one hasn't been set. Defaults are filled in-place, not re-derived on
// every read.
func (p *Plan) Normalize() {
	if p.Method == "" {
		p.Method = DefaultMethod
	}
	if p.Connections <= 0 {
		p.Connections = DefaultConnections
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
}

// Clone returns a deep-enough copy of the Plan safe for a concurrent
// RunnerService to run independently of the original (Controller fan-out
// needs this: each downstream RunnerService gets its own copy).
func (p *Plan) Clone() *Plan {
	c := *p
	c.Segments = append([]Segment(nil), p.Segments...)
	c.Targets = append([]string(nil), p.Targets...)
	c.Headers = append([]Header(nil), p.Headers...)
	c.Payload = append([]byte(nil), p.Payload...)
	return &c
}

// Validate checks the Plan invariants from the data model: non-empty
// segments with at most one (last) forever segment, positive rates,
// non-empty absolute http/https targets, and a positive connections count.
// It returns a *metronerr.Error of kind InvalidArgument (via the
// invalidArg helper below) on the first violation found.
func (p *Plan) Validate() error {
	if len(p.Segments) == 0 {
		return invalidArg("plan has no segments")
	}
	for i, seg := range p.Segments {
		last := i == len(p.Segments)-1
		switch seg.Kind {
		case Fixed:
			if seg.Rate == 0 {
				return invalidArg(fmt.Sprintf("segment %d: fixed rate must be >= 1", i))
			}
			if seg.Forever && !last {
				return invalidArg(fmt.Sprintf("segment %d: only the last segment may be forever", i))
			}
			if !seg.Forever && seg.Duration < 0 {
				return invalidArg(fmt.Sprintf("segment %d: duration must be >= 0", i))
			}
		case Linear:
			if seg.RateStart == 0 || seg.RateEnd == 0 {
				return invalidArg(fmt.Sprintf("segment %d: linear rates must be >= 1", i))
			}
			if seg.Forever {
				return invalidArg(fmt.Sprintf("segment %d: linear segments cannot be forever", i))
			}
			if seg.Duration <= 0 {
				return invalidArg(fmt.Sprintf("segment %d: linear segment duration must be > 0", i))
			}
		default:
			return invalidArg(fmt.Sprintf("segment %d: unknown kind", i))
		}
	}
	if len(p.Targets) == 0 {
		return invalidArg("plan has no targets")
	}
	for _, t := range p.Targets {
		u, err := url.Parse(t)
		if err != nil {
			return invalidArg(fmt.Sprintf("target %q: %v", t, err))
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return invalidArg(fmt.Sprintf("target %q: scheme must be http or https", t))
		}
		if u.Host == "" {
			return invalidArg(fmt.Sprintf("target %q: missing authority", t))
		}
	}
	if p.Connections < 1 {
		return invalidArg("connections must be >= 1")
	}
	return nil
}

// TotalDuration sums every segment's Duration. The bool result is false if
// the Plan ends in a forever segment (duration is then unbounded).
func (p *Plan) TotalDuration() (time.Duration, bool) {
	var total time.Duration
	for _, seg := range p.Segments {
		if seg.Forever {
			return 0, false
		}
		total += seg.Duration
	}
	return total, true
}

// segmentAt returns the segment active at progress into the Plan, skipping
// zero-duration segments. ok is false once progress has exhausted every
// segment and none is forever.
func (p *Plan) segmentAt(progress time.Duration) (seg Segment, ok bool) {
	var cumulative time.Duration
	for _, s := range p.Segments {
		if s.Forever {
			return s, true
		}
		if s.Duration <= 0 {
			continue
		}
		cumulative += s.Duration
		if progress < cumulative {
			return s, true
		}
	}
	return Segment{}, false
}

func invalidArg(msg string) error {
	return metronerr.New(metronerr.InvalidArgument, msg)
}
