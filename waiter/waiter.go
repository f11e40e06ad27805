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

// Package waiter implements the two ways a Signaller can wait for a
// dispatch instant to arrive: a high-precision busy (spinning) wait for
// the Blocking signaller kind, and a scheduler-friendly sleep for the
// Cooperative kind. Both satisfy the Waiter interface so the signaller
// package can select between them by Kind without branching on behavior.
package waiter // import "metron.dev/metron/waiter"

import (
	"runtime"
	"time"
)

// Waiter blocks the calling goroutine until instant t has arrived, or
// until stop is closed, whichever happens first. It returns false if it
// returned because stop was closed before t arrived.
type Waiter interface {
	Wait(t time.Time, stop <-chan struct{}) bool
}

// Spinning waits by repeatedly checking the clock and yielding the
// scheduler, rather than sleeping. It trades CPU for precision: a
// dedicated OS thread spinning like this can dispatch within
// microseconds of the target instant, where time.Sleep's timer
// resolution and scheduler latency can add low-single-digit
// milliseconds of jitter. Intended for the Blocking signaller kind
// running on a locked OS thread.
type Spinning struct{}

// Wait implements Waiter.
func (Spinning) Wait(t time.Time, stop <-chan struct{}) bool {
	for {
		select {
		case <-stop:
			return false
		default:
		}
		now := time.Now()
		if !now.Before(t) {
			return true
		}
		runtime.Gosched()
	}
}

// Cooperative waits using a single time.Timer, selecting on its channel
// against the stop channel.
// It costs nothing while waiting but carries ordinary Go timer/scheduler
// jitter.
type Cooperative struct{}

// Wait implements Waiter.
func (Cooperative) Wait(t time.Time, stop <-chan struct{}) bool {
	d := time.Until(t)
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
