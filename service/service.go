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

// Package service defines the uniform RunnerService capability
// (accept a Plan, acknowledge on completion, surface errors) and the
// Controller that fans a Plan out to many RunnerServices, recursively.
// Because a Controller itself implements RunnerService, a Controller can
// manage other Controllers transparently: one small interface implemented
// uniformly across every runner.
package service // import "metron.dev/metron/service"

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fortio.org/log"

	"metron.dev/metron/plan"
	"metron.dev/metron/report"
)

// RunnerService is the single capability every dispatch target in the
// system exposes: run a Plan to completion and return its Report (or a
// partial Report alongside an error, per the partial-report rule).
// Implementations: a local Runner (via LocalRunnerService), an RPC
// Client talking to a remote agent, and Controller itself.
type RunnerService interface {
	// Run executes p to completion (or until ctx is cancelled) and
	// returns the resulting Report. A non-nil error may still carry a
	// usable partial Report.
	Run(ctx context.Context, p *plan.Plan) (*report.Report, error)

	// Name identifies this service for error aggregation and logging.
	Name() string
}

// FailedRunner names one RunnerService that failed during a Controller's
// fan-out, along with its error.
type FailedRunner struct {
	Name string
	Err  error
}

// FanOutError aggregates the failures from a Controller.Run call. Per
// spec.md §4.7, survivors are allowed to finish even when some runners
// fail. A FanOutError is returned whenever at least one runner failed,
// including when every runner failed.
type FanOutError struct {
	Failed []FailedRunner
}

func (e *FanOutError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = fmt.Sprintf("%s: %v", f.Name, f.Err)
	}
	return fmt.Sprintf("%d runner(s) failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// Controller holds an ordered list of RunnerServices and fans a Plan out
// to all of them concurrently. A Controller is itself a RunnerService,
// so controllers compose recursively (spec.md §4.6/§4.7).
type Controller struct {
	name     string
	services []RunnerService
}

// NewController creates a Controller dispatching to the given
// RunnerServices, in order. The order only matters for deterministic
// result ordering in tests; dispatch itself is concurrent.
func NewController(name string, services ...RunnerService) *Controller {
	return &Controller{name: name, services: services}
}

// Name implements RunnerService.
func (c *Controller) Name() string {
	return c.name
}

// Run implements RunnerService: clone p once per downstream service,
// invoke all of them concurrently, wait for all to finish, and merge
// their Reports. Survivors are never cancelled because one runner
// failed — their partial reports remain salvageable.
func (c *Controller) Run(ctx context.Context, p *plan.Plan) (*report.Report, error) {
	if len(c.services) == 0 {
		return &report.Report{}, fmt.Errorf("controller %s: no runner services configured", c.name)
	}

	type result struct {
		name string
		rep  *report.Report
		err  error
	}
	results := make([]result, len(c.services))

	var wg sync.WaitGroup
	for i, svc := range c.services {
		wg.Add(1)
		go func(i int, svc RunnerService) {
			defer wg.Done()
			childPlan := p.Clone()
			rep, err := svc.Run(ctx, childPlan)
			if err != nil {
				log.S(log.Warning, "runner service failed", log.Attr("controller", c.name),
					log.Attr("service", svc.Name()), log.Attr("error", err.Error()))
			}
			results[i] = result{name: svc.Name(), rep: rep, err: err}
		}(i, svc)
	}
	wg.Wait()

	merged := &report.Report{}
	var failed []FailedRunner
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, FailedRunner{Name: r.name, Err: r.err})
		}
		mergeInto(merged, r.rep)
	}

	if len(failed) > 0 {
		return merged, &FanOutError{Failed: failed}
	}
	return merged, nil
}

// Ready reports whether this Controller can still make progress: true as
// long as at least one downstream RunnerService is not a Controller that
// has itself gone fully unready. Local runners and RPC clients are
// always considered ready here; liveness of the remote connection is
// instead surfaced as a Transport error from Run, per spec.md §4.7 point 4.
func (c *Controller) Ready() bool {
	for _, svc := range c.services {
		if nested, ok := svc.(interface{ Ready() bool }); ok {
			if nested.Ready() {
				return true
			}
			continue
		}
		return true
	}
	return false
}

func mergeInto(dst *report.Report, src *report.Report) {
	if src == nil {
		return
	}
	dst.TotalRequests += src.TotalRequests
	dst.Total2xx += src.Total2xx
	dst.TotalNon2xx += src.TotalNon2xx
	dst.TotalErrors += src.TotalErrors
	if src.Elapsed > dst.Elapsed {
		dst.Elapsed = src.Elapsed
	}
	dst.Headline = mergeHistMap(dst.Headline, src.Headline)
	dst.Actual = mergeHistMap(dst.Actual, src.Actual)
	dst.Corrected = mergeHistMap(dst.Corrected, src.Corrected)
	dst.Errors = mergeTargetHistMap(dst.Errors, src.Errors)
	dst.ClientDelay = mergeTargetHistMap(dst.ClientDelay, src.ClientDelay)
}
