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

package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fortio.org/assert"

	"metron.dev/metron/plan"
	"metron.dev/metron/report"
	"metron.dev/metron/runner"
	"metron.dev/metron/signaller"
)

type fakeService struct {
	name string
	rep  *report.Report
	err  error
}

func (f *fakeService) Name() string { return f.name }
func (f *fakeService) Run(ctx context.Context, p *plan.Plan) (*report.Report, error) {
	return f.rep, f.err
}

func testPlan(t *testing.T) *plan.Plan {
	t.Helper()
	p := &plan.Plan{
		Segments:    []plan.Segment{plan.FixedSegment(10, time.Second)},
		Targets:     []string{"http://example.test/"},
		Connections: 1,
	}
	p.Normalize()
	return p
}

func TestControllerFanOutAllSucceed(t *testing.T) {
	a := &fakeService{name: "a", rep: &report.Report{TotalRequests: 5, Total2xx: 5}}
	b := &fakeService{name: "b", rep: &report.Report{TotalRequests: 3, Total2xx: 3}}
	c := NewController("ctrl", a, b)

	rep, err := c.Run(context.Background(), testPlan(t))
	assert.True(t, err == nil, "expected no error when all runners succeed")
	assert.Equal(t, int64(8), rep.TotalRequests)
	assert.Equal(t, int64(8), rep.Total2xx)
}

func TestControllerFanOutPartialFailureDoesNotCancelSurvivors(t *testing.T) {
	good := &fakeService{name: "good", rep: &report.Report{TotalRequests: 10, Total2xx: 10}}
	bad := &fakeService{name: "bad", rep: &report.Report{TotalRequests: 2, TotalErrors: 2}, err: errors.New("boom")}
	c := NewController("ctrl", good, bad)

	rep, err := c.Run(context.Background(), testPlan(t))
	assert.True(t, err != nil, "expected an aggregated error")
	var fanErr *FanOutError
	assert.True(t, errors.As(err, &fanErr), "expected a *FanOutError")
	assert.Equal(t, 1, len(fanErr.Failed))
	assert.Equal(t, "bad", fanErr.Failed[0].Name)
	// Survivor's contribution is still reflected in the merged report.
	assert.Equal(t, int64(12), rep.TotalRequests)
	assert.Equal(t, int64(10), rep.Total2xx)
}

func TestControllerFanOutAllFail(t *testing.T) {
	a := &fakeService{name: "a", rep: &report.Report{}, err: errors.New("down")}
	b := &fakeService{name: "b", rep: &report.Report{}, err: errors.New("down too")}
	c := NewController("ctrl", a, b)

	_, err := c.Run(context.Background(), testPlan(t))
	assert.True(t, err != nil, "expected an error when every runner fails")
	var fanErr *FanOutError
	assert.True(t, errors.As(err, &fanErr), "expected a *FanOutError")
	assert.Equal(t, 2, len(fanErr.Failed))
}

func TestControllerRecursiveComposition(t *testing.T) {
	leaf := &fakeService{name: "leaf", rep: &report.Report{TotalRequests: 1, Total2xx: 1}}
	inner := NewController("inner", leaf)
	outer := NewController("outer", inner)

	rep, err := outer.Run(context.Background(), testPlan(t))
	assert.True(t, err == nil, "expected no error")
	assert.Equal(t, int64(1), rep.TotalRequests)
}

func TestLocalRunnerServiceRunsAgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &plan.Plan{
		Segments:    []plan.Segment{plan.FixedSegment(50, 100*time.Millisecond)},
		Targets:     []string{srv.URL},
		Connections: 1,
	}

	svc := NewLocalRunnerService("local", signaller.KindCooperative, runner.Options{Connections: 1})
	rep, err := svc.Run(context.Background(), p)
	assert.True(t, err == nil, "expected no error")
	assert.True(t, rep.TotalRequests > 0, "expected at least one request recorded")
	assert.Equal(t, rep.TotalRequests, rep.Total2xx)
}
