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

// Package report consumes runner.Samples and aggregates them into
// bounded-memory HDR-style latency histograms plus running counters,
// exactly once per Sample, the way a Reporter is described in the
// component design (§4.5). A Report can be read at any time, including
// mid-run or after a cancelled run, to support the partial-report rule.
package report // import "metron.dev/metron/report"

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"metron.dev/metron/runner"
)

// Histogram bounds from the data model: 1 microsecond to 30 seconds,
// three significant digits of precision.
const (
	lowestTrackableValue  = 1
	highestTrackableValue = 30 * 1000 * 1000 // microseconds
	significantFigures    = 3
)

// Key identifies one (target, status) pair a histogram bucket belongs
// to. Status is -1 for the error bucket.
type Key struct {
	Target string
	Status int
}

// Reporter consumes Samples from a runner.Runner and builds a Report
// incrementally. It is safe for Consume to be called concurrently with
// Snapshot, but Consume itself is meant to be driven by a single
// goroutine reading the Runner's sample channel.
type Reporter struct {
	mu sync.Mutex

	start time.Time

	totalRequests int64
	total2xx      int64
	totalNon2xx   int64
	totalErrors   int64

	actual    map[Key]*hdrhistogram.Histogram
	corrected map[Key]*hdrhistogram.Histogram
	errors    map[string]*hdrhistogram.Histogram // keyed by target
	clientDly map[string]*hdrhistogram.Histogram // keyed by target

	// LatencyCorrection selects whether Report's headline latency uses
	// CorrectedLatency (true) or ActualLatency (false), per spec.md §4.4.
	LatencyCorrection bool
}

// New creates an empty Reporter.
func New(latencyCorrection bool) *Reporter {
	return &Reporter{
		start:             time.Now(),
		actual:            make(map[Key]*hdrhistogram.Histogram),
		corrected:         make(map[Key]*hdrhistogram.Histogram),
		errors:            make(map[string]*hdrhistogram.Histogram),
		clientDly:         make(map[string]*hdrhistogram.Histogram),
		LatencyCorrection: latencyCorrection,
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(lowestTrackableValue, highestTrackableValue, significantFigures)
}

func clampMicros(d time.Duration, h *hdrhistogram.Histogram) int64 {
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	return us
}

// Consume drains ch, folding every Sample into the Report until ch is
// closed. It returns once the Runner's pipeline has fully drained,
// satisfying the "partial report on stop" rule: whatever was consumed
// before ch closed is what Snapshot will return.
func (r *Reporter) Consume(ch <-chan runner.Sample) {
	for s := range ch {
		r.record(s)
	}
}

func (r *Reporter) record(s runner.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalRequests++

	status := -1
	switch s.Outcome {
	case runner.OutcomeHTTPStatus:
		status = s.Status
		if s.Is2xx() {
			r.total2xx++
		} else {
			r.totalNon2xx++
		}
	case runner.OutcomeError:
		r.totalErrors++
	}

	key := Key{Target: s.Target, Status: status}
	actualHist := r.histFor(r.actual, key)
	correctedHist := r.histFor(r.corrected, key)
	_ = actualHist.RecordValue(clampMicros(s.ActualLatency(), actualHist))
	_ = correctedHist.RecordValue(clampMicros(s.CorrectedLatency(), correctedHist))

	if s.Outcome == runner.OutcomeError {
		errHist := r.histForTarget(r.errors, s.Target)
		_ = errHist.RecordValue(clampMicros(s.ActualLatency(), errHist))
	}

	dlyHist := r.histForTarget(r.clientDly, s.Target)
	delay := s.ClientDelay()
	if delay < 0 {
		delay = 0
	}
	_ = dlyHist.RecordValue(clampMicros(delay, dlyHist))
}

func (r *Reporter) histFor(m map[Key]*hdrhistogram.Histogram, key Key) *hdrhistogram.Histogram {
	h, ok := m[key]
	if !ok {
		h = newHistogram()
		m[key] = h
	}
	return h
}

func (r *Reporter) histForTarget(m map[string]*hdrhistogram.Histogram, target string) *hdrhistogram.Histogram {
	h, ok := m[target]
	if !ok {
		h = newHistogram()
		m[target] = h
	}
	return h
}

// Report is an immutable snapshot of everything a Reporter has
// accumulated so far.
type Report struct {
	Elapsed       time.Duration
	TotalRequests int64
	Total2xx      int64
	TotalNon2xx   int64
	TotalErrors   int64

	// Headline is the per-(target,status) latency histogram selected by
	// Reporter.LatencyCorrection (corrected if true, actual otherwise).
	Headline map[Key]*hdrhistogram.Histogram
	Actual   map[Key]*hdrhistogram.Histogram
	Corrected map[Key]*hdrhistogram.Histogram
	Errors    map[string]*hdrhistogram.Histogram
	ClientDelay map[string]*hdrhistogram.Histogram
}

// Snapshot returns a Report reflecting everything consumed so far. Safe
// to call at any point, including concurrently with Consume, and
// specifically safe to call after a cancelled run to satisfy the
// partial-report rule from spec.md §7.
func (r *Reporter) Snapshot() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	headline := r.corrected
	if !r.LatencyCorrection {
		headline = r.actual
	}

	return &Report{
		Elapsed:       time.Since(r.start),
		TotalRequests: r.totalRequests,
		Total2xx:      r.total2xx,
		TotalNon2xx:   r.totalNon2xx,
		TotalErrors:   r.totalErrors,
		Headline:      cloneKeyMap(headline),
		Actual:        cloneKeyMap(r.actual),
		Corrected:     cloneKeyMap(r.corrected),
		Errors:        cloneTargetMap(r.errors),
		ClientDelay:   cloneTargetMap(r.clientDly),
	}
}

func cloneKeyMap(m map[Key]*hdrhistogram.Histogram) map[Key]*hdrhistogram.Histogram {
	out := make(map[Key]*hdrhistogram.Histogram, len(m))
	for k, h := range m {
		out[k] = hdrhistogram.Import(h.Export())
	}
	return out
}

func cloneTargetMap(m map[string]*hdrhistogram.Histogram) map[string]*hdrhistogram.Histogram {
	out := make(map[string]*hdrhistogram.Histogram, len(m))
	for k, h := range m {
		out[k] = hdrhistogram.Import(h.Export())
	}
	return out
}

// Percentile returns the value at percentile p (0-100) for histogram h,
// as a time.Duration, or 0 if h has no recorded values.
func Percentile(h *hdrhistogram.Histogram, p float64) time.Duration {
	if h == nil || h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(p)) * time.Microsecond
}

// Print writes a human-readable summary of the Report to out: one line
// of counters, then one block of percentiles per (target,status) pair,
// sorted for stable output.
func (rep *Report) Print(out io.Writer) {
	fmt.Fprintf(out, "Total requests: %d, 2xx: %d, non-2xx: %d, errors: %d, elapsed: %v\n",
		rep.TotalRequests, rep.Total2xx, rep.TotalNon2xx, rep.TotalErrors, rep.Elapsed)

	keys := make([]Key, 0, len(rep.Headline))
	for k := range rep.Headline {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Target != keys[j].Target {
			return keys[i].Target < keys[j].Target
		}
		return keys[i].Status < keys[j].Status
	})
	for _, k := range keys {
		h := rep.Headline[k]
		fmt.Fprintf(out, "  %s [%d]: count=%d p50=%v p90=%v p99=%v max=%v\n",
			k.Target, k.Status, h.TotalCount(),
			Percentile(h, 50), Percentile(h, 90), Percentile(h, 99),
			time.Duration(h.Max())*time.Microsecond)
	}
}
