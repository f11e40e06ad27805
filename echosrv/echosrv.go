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

// Package echosrv implements a minimal HTTP target server: it echoes
// method/headers/body, honors a ?status= override, and can simulate a
// slow first response per caller address for exercising
// coordinated-omission correction against a load run.
package echosrv // import "metron.dev/metron/echosrv"

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fortio.org/log"
	"golang.org/x/time/rate"

	"metron.dev/metron/fnet"
)

// Handler is an http.Handler that echoes the request method, headers,
// and body, and supports two query-string knobs:
//
//   - ?status=NNN overrides the response status code (default 200).
//   - ?delay=DURATION sleeps for DURATION (parsed by time.ParseDuration,
//     e.g. "500ms") before responding.
//
// Additionally, FirstRequestDelay, when set, is applied once per
// distinct caller (by RemoteAddr) on that caller's first request only,
// then never again — this lets a target hold its first response and
// then recover, without requiring the load test driver to orchestrate it.
//
// Limiter, when set, caps the rate at which responses are handed back:
// every request waits its turn on the limiter before being served, the
// way a capacity-constrained real target would queue requests instead
// of processing them instantly. This is what makes it possible to drive
// a load run into a backed-up target and watch corrected latency diverge
// from raw latency.
type Handler struct {
	FirstRequestDelay time.Duration
	Limiter           *rate.Limiter

	mu   sync.Mutex
	seen map[string]bool
}

// NewHandler creates an echo Handler. firstRequestDelay may be zero to
// disable the slow-first-response simulation. rateLimit may be zero to
// leave the handler unthrottled, otherwise it's the requests-per-second
// cap applied across all callers.
func NewHandler(firstRequestDelay time.Duration, rateLimit float64) *Handler {
	h := &Handler{
		FirstRequestDelay: firstRequestDelay,
		seen:              make(map[string]bool),
	}
	if rateLimit > 0 {
		h.Limiter = rate.NewLimiter(rate.Limit(rateLimit), 1)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Limiter != nil {
		if err := h.Limiter.Wait(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	if h.FirstRequestDelay > 0 && h.isFirstFrom(r.RemoteAddr) {
		log.LogVf("echosrv: delaying first response to %s by %v", r.RemoteAddr, h.FirstRequestDelay)
		time.Sleep(h.FirstRequestDelay)
	}

	status := http.StatusOK
	if s := r.URL.Query().Get("status"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			status = parsed
		}
	}
	if d := r.URL.Query().Get("delay"); d != "" {
		if parsed, err := time.ParseDuration(d); err == nil {
			time.Sleep(parsed)
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add("Echo-"+k, v)
		}
	}
	w.Header().Set("Echo-Method", r.Method)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) isFirstFrom(addr string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen[addr] {
		return false
	}
	h.seen[addr] = true
	return true
}

// Serve starts an echo server on addr (a port, "host:port", or a unix
// domain socket path, per fnet.Listen's rules) and blocks until it
// exits: construct a handler, bind, serve.
func Serve(addr string, firstRequestDelay time.Duration, rateLimit float64) error {
	h := NewHandler(firstRequestDelay, rateLimit)
	lis, lAddr := fnet.Listen("echo", addr)
	if lis == nil {
		return fmt.Errorf("listening on %s", addr)
	}
	log.Infof("echosrv listening on %s", lAddr)
	return http.Serve(lis, h) //nolint:gosec // debug/test target, not a production surface.
}
