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

// Package runner consumes Signals from a signaller.Signaller, dispatches
// HTTP requests as detached tasks so response latency never delays the
// next scheduled send, and emits one Sample per completed task. This is
// the component in the design that makes Metron accurate under
// Coordinated Omission: the signal loop's only job is to keep time with
// the Plan, never to wait on a response.
package runner // import "metron.dev/metron/runner"

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fortio.org/log"

	"metron.dev/metron/plan"
	"metron.dev/metron/signaller"
)

// DefaultSampleBuffer is the capacity of the channel Run publishes
// Samples on.
const DefaultSampleBuffer = 1024

// Options configures a Runner's dispatch behavior. The zero value is not
// ready for use; call Normalize (or let New call it for you) to fill in
// defaults.
type Options struct {
	// Connections bounds concurrent connections per target authority,
	// mapped onto http.Transport's MaxConnsPerHost.
	Connections int
	// RequestTimeout bounds how long a single request task may run.
	// Zero means no timeout (run to natural completion), matching
	// spec.md's "otherwise requests run to natural completion".
	RequestTimeout time.Duration
	// StopOnError aborts the run on the first transport-level error.
	StopOnError bool
	// StopOnNon2xx aborts the run on the first non-2xx HTTP status.
	StopOnNon2xx bool
	// Transport is injectable for tests; defaults to a fresh
	// *http.Transport tuned from Connections.
	Transport http.RoundTripper
}

// Normalize fills zero-valued fields with defaults.
func (o *Options) Normalize() {
	if o.Connections <= 0 {
		o.Connections = plan.DefaultConnections
	}
	if o.Transport == nil {
		o.Transport = &http.Transport{
			MaxConnsPerHost:     o.Connections,
			MaxIdleConnsPerHost: o.Connections,
		}
	}
}

// Runner dispatches one Plan's requests against its targets in
// round-robin order and emits a Sample per completed request task.
type Runner struct {
	opts   Options
	client *http.Client

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Runner. opts is normalized in place if not already.
func New(opts Options) *Runner {
	opts.Normalize()
	return &Runner{
		opts:   opts,
		client: &http.Client{Transport: opts.Transport},
	}
}

// Run drives s until it is exhausted (or the run is stopped), dispatching
// one HTTP request per Signal against p's targets in round-robin order.
// The returned channel receives one Sample per completed request task
// and is closed once the signal loop has ended and every in-flight task
// has produced its Sample. Run does not block on responses: it returns
// control to the signal loop as soon as each request has been handed off
// to a detached goroutine.
func (r *Runner) Run(ctx context.Context, p *plan.Plan, s *signaller.Signaller) <-chan Sample {
	out := make(chan Sample, DefaultSampleBuffer)
	var targetIdx uint64

	go func() {
		defer func() {
			r.wg.Wait()
			close(out)
		}()
		for {
			if r.stopped.Load() {
				s.Stop()
			}
			sig, ok := s.Recv()
			if !ok {
				return
			}
			idx := atomic.AddUint64(&targetIdx, 1) - 1
			target := p.Targets[int(idx%uint64(len(p.Targets)))]

			r.wg.Add(1)
			go r.dispatch(ctx, p, target, sig.Due, out)
		}
	}()

	return out
}

// Stop requests the Runner to stop accepting new Signals as soon as
// possible. In-flight request tasks are left to finish naturally.
func (r *Runner) Stop() {
	r.stopped.Store(true)
}

func (r *Runner) dispatch(ctx context.Context, p *plan.Plan, target string, due time.Time, out chan<- Sample) {
	defer r.wg.Done()

	reqCtx := ctx
	var cancel context.CancelFunc
	if r.opts.RequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	var body io.Reader
	if len(p.Payload) > 0 {
		body = bytes.NewReader(p.Payload)
	}

	sent := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, p.Method, target, body)
	if err != nil {
		r.emitError(out, target, due, sent, err)
		return
	}
	for _, h := range p.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := r.client.Do(req)
	done := time.Now()
	if err != nil {
		log.LogVf("request to %s failed: %v", target, err)
		r.emitError(out, target, due, sent, err)
		if r.opts.StopOnError {
			r.Stop()
		}
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	out <- Sample{
		Target:  target,
		Due:     due,
		Sent:    sent,
		Done:    done,
		Outcome: OutcomeHTTPStatus,
		Status:  resp.StatusCode,
	}
	if (resp.StatusCode < 200 || resp.StatusCode >= 300) && r.opts.StopOnNon2xx {
		r.Stop()
	}
}

func (r *Runner) emitError(out chan<- Sample, target string, due, sent time.Time, err error) {
	out <- Sample{
		Target:  target,
		Due:     due,
		Sent:    sent,
		Done:    time.Now(),
		Outcome: OutcomeError,
		ErrText: err.Error(),
	}
}
