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

package report

import (
	"bytes"
	"testing"
	"time"

	"fortio.org/assert"

	"metron.dev/metron/runner"
)

func TestReporterCountersAndHistograms(t *testing.T) {
	r := New(true)
	base := time.Now()
	ch := make(chan runner.Sample, 4)
	ch <- runner.Sample{Target: "http://a/", Due: base, Sent: base, Done: base.Add(10 * time.Millisecond), Outcome: runner.OutcomeHTTPStatus, Status: 200}
	ch <- runner.Sample{Target: "http://a/", Due: base, Sent: base, Done: base.Add(500 * time.Millisecond), Outcome: runner.OutcomeHTTPStatus, Status: 500}
	ch <- runner.Sample{Target: "http://a/", Due: base, Sent: base, Done: base.Add(5 * time.Millisecond), Outcome: runner.OutcomeError, ErrText: "boom"}
	close(ch)
	r.Consume(ch)

	rep := r.Snapshot()
	assert.Equal(t, int64(3), rep.TotalRequests)
	assert.Equal(t, int64(1), rep.Total2xx)
	assert.Equal(t, int64(1), rep.TotalNon2xx)
	assert.Equal(t, int64(1), rep.TotalErrors)

	key200 := Key{Target: "http://a/", Status: 200}
	h, ok := rep.Headline[key200]
	assert.True(t, ok, "expected a headline histogram for the 200 bucket")
	assert.Equal(t, int64(1), h.TotalCount())

	errHist, ok := rep.Errors["http://a/"]
	assert.True(t, ok, "expected an error histogram for the target")
	assert.Equal(t, int64(1), errHist.TotalCount())
}

func TestReporterLatencyCorrectionSelectsHeadline(t *testing.T) {
	base := time.Now()
	sample := runner.Sample{
		Target: "http://a/", Due: base, Sent: base.Add(20 * time.Millisecond),
		Done: base.Add(30 * time.Millisecond), Outcome: runner.OutcomeHTTPStatus, Status: 200,
	}

	corrected := New(true)
	ch := make(chan runner.Sample, 1)
	ch <- sample
	close(ch)
	corrected.Consume(ch)
	correctedRep := corrected.Snapshot()
	key := Key{Target: "http://a/", Status: 200}
	gotCorrected := Percentile(correctedRep.Headline[key], 50)
	assert.Equal(t, sample.CorrectedLatency(), gotCorrected)

	actual := New(false)
	ch2 := make(chan runner.Sample, 1)
	ch2 <- sample
	close(ch2)
	actual.Consume(ch2)
	actualRep := actual.Snapshot()
	gotActual := Percentile(actualRep.Headline[key], 50)
	assert.Equal(t, sample.ActualLatency(), gotActual)
}

func TestReportPrintDoesNotPanic(t *testing.T) {
	r := New(false)
	ch := make(chan runner.Sample, 1)
	ch <- runner.Sample{Target: "http://a/", Done: time.Now(), Outcome: runner.OutcomeHTTPStatus, Status: 200}
	close(ch)
	r.Consume(ch)
	var buf bytes.Buffer
	r.Snapshot().Print(&buf)
	assert.True(t, buf.Len() > 0, "expected Print to write output")
}

func TestSnapshotIsIndependentOfFurtherConsumption(t *testing.T) {
	r := New(false)
	ch := make(chan runner.Sample)
	go func() {
		ch <- runner.Sample{Target: "http://a/", Done: time.Now(), Outcome: runner.OutcomeHTTPStatus, Status: 200}
		close(ch)
	}()
	r.Consume(ch)
	snap1 := r.Snapshot()
	assert.Equal(t, int64(1), snap1.TotalRequests)

	ch2 := make(chan runner.Sample, 1)
	ch2 <- runner.Sample{Target: "http://a/", Done: time.Now(), Outcome: runner.OutcomeHTTPStatus, Status: 200}
	close(ch2)
	r.Consume(ch2)

	assert.Equal(t, int64(1), snap1.TotalRequests) // earlier snapshot unaffected
}
