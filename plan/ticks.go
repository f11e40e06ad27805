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

package plan

import "time"

// Ticks is a lazy, stateful generator of dispatch instants for a Plan.
// It holds no buffering: each call to Next() computes the next instant
// from the previous one (or from the start, on the first call) and the
// Plan's segment at the current progress. A Ticks is not safe for
// concurrent use; it is meant to be driven by exactly one Signaller.
type Ticks struct {
	plan *Plan
	start time.Time

	prev    time.Time
	hasPrev bool

	duration    time.Duration
	hasDuration bool
}

// Ticks returns a new dispatch-instant generator for this Plan, anchored
// at start. start becomes the first tick.
func (p *Plan) Ticks(start time.Time) *Ticks {
	d, bounded := p.TotalDuration()
	return &Ticks{
		plan:        p,
		start:       start,
		duration:    d,
		hasDuration: bounded,
	}
}

// Next returns the next dispatch instant. ok is false once the Plan's
// total duration has elapsed (never, for a Plan ending in a forever
// segment).
//
// The recurrence: progress is how far past start the previous tick fell
// (zero before the first tick). The segment active at that progress
// determines the interval to the next tick: a Fixed segment adds a
// constant period; a Linear segment interpolates the PERIOD (not the
// rate) between its start and end rates by the fraction progress divided
// by the segment's own duration (progress is measured from the Plan's
// start, not the segment's), clamped to 1.
func (t *Ticks) Next() (time.Time, bool) {
	var progress time.Duration
	if t.hasPrev {
		progress = t.prev.Sub(t.start)
	}

	seg, ok := t.plan.segmentAt(progress)
	if !ok {
		return time.Time{}, false
	}

	var next time.Time
	switch {
	case !t.hasPrev:
		next = t.start
	case seg.Kind == Fixed:
		next = t.prev.Add(seg.Rate.Period())
	default: // Linear
		next = t.prev.Add(seg.interval(progress))
	}

	t.prev = next
	t.hasPrev = true

	if t.hasDuration && next.Sub(t.start) >= t.duration {
		return time.Time{}, false
	}
	return next, true
}

// interval returns the time until the next tick for a Linear segment at
// progress into the Plan. It interpolates the PERIOD between the
// segment's start and end rates, not the rate itself, so that the
// cumulative count of requests over the segment stays additive.
func (s Segment) interval(progress time.Duration) time.Duration {
	periodStart := s.RateStart.Period()
	periodEnd := s.RateEnd.Period()

	fraction := progress.Seconds() / s.Duration.Seconds()
	if fraction > 1 {
		fraction = 1
	}
	if fraction < 0 {
		fraction = 0
	}

	delta := float64(periodStart-periodEnd) * fraction
	return periodStart - time.Duration(delta)
}
