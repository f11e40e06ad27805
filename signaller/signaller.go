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

// Package signaller turns a plan.Plan's dispatch-instant sequence into a
// back-pressured stream of Signals a Runner can consume at its own pace.
// It is the producer half of the Signaller/Runner pipeline from the
// component design: a Signaller never drops a tick, it blocks until the
// consumer catches up.
package signaller // import "metron.dev/metron/signaller"

import (
	"runtime"
	"time"

	"fortio.org/log"

	"metron.dev/metron/internal/metronerr"
	"metron.dev/metron/plan"
	"metron.dev/metron/waiter"
)

// ChannelCapacity is the depth of the back-pressure channel between a
// Signaller and its consumer.
const ChannelCapacity = 1024

// Kind selects the concurrency model a Signaller uses to produce timing
// signals.
type Kind int

const (
	// KindBlocking dedicates a goroutine pinned to an OS thread and
	// busy-waits (waiter.Spinning) for maximum timing precision. This is
	// the zero value and default, matching the original's
	// Kind::default() == Blocking.
	KindBlocking Kind = iota
	// KindCooperative uses a plain goroutine and a timer-based sleep
	// (waiter.Cooperative), trading precision for not pinning a thread.
	KindCooperative
)

func (k Kind) String() string {
	if k == KindCooperative {
		return "cooperative"
	}
	return "blocking"
}

// Signal is one dispatch instant handed from a Signaller to its consumer.
type Signal struct {
	// Due is the instant this request was scheduled to fire at. The
	// Runner compares this to the actual send time to compute
	// coordinated-omission-corrected latency.
	Due time.Time
}

// Signaller drives a plan.Ticks sequence in the background and publishes
// each tick as a Signal on a bounded channel. Construct with New, then
// Start exactly once; Recv reads the produced Signals in order until the
// Plan is exhausted and the channel is closed.
type Signaller struct {
	kind Kind
	plan *plan.Plan

	ch      chan Signal
	started bool
	stop    chan struct{}
}

// New creates a Signaller for plan p using the given Kind. The Plan is
// not copied; callers should not mutate it after calling Start.
func New(kind Kind, p *plan.Plan) *Signaller {
	return &Signaller{
		kind: kind,
		plan: p,
		ch:   make(chan Signal, ChannelCapacity),
		stop: make(chan struct{}),
	}
}

// Start begins producing Signals in the background, anchored at the
// current time. It returns an error of kind metronerr.AlreadyStarted if
// called more than once on the same Signaller.
func (s *Signaller) Start() error {
	if s.started {
		return metronerr.New(metronerr.AlreadyStarted, "signaller already started")
	}
	s.started = true

	start := time.Now()
	ticks := s.plan.Ticks(start)

	var w waiter.Waiter = waiter.Cooperative{}
	if s.kind == KindBlocking {
		w = waiter.Spinning{}
	}

	run := func() {
		defer close(s.ch)
		for {
			t, ok := ticks.Next()
			if !ok {
				return
			}
			if !w.Wait(t, s.stop) {
				log.Debugf("signaller stopped mid-wait for plan %s", s.plan.ID)
				return
			}
			select {
			case s.ch <- Signal{Due: t}:
			case <-s.stop:
				return
			}
		}
	}

	if s.kind == KindBlocking {
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			run()
		}()
	} else {
		go run()
	}
	return nil
}

// Recv returns the next Signal, blocking until one is available. ok is
// false once the Plan is exhausted and every produced Signal has been
// consumed.
func (s *Signaller) Recv() (Signal, bool) {
	sig, ok := <-s.ch
	return sig, ok
}

// Stop requests the background producer to exit as soon as possible. It
// is safe to call more than once and safe to call before Start.
func (s *Signaller) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
