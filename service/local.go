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

	"fortio.org/log"

	"metron.dev/metron/plan"
	"metron.dev/metron/report"
	"metron.dev/metron/runner"
	"metron.dev/metron/signaller"
)

// LocalRunnerService adapts the Signaller/Runner/Reporter pipeline to
// the RunnerService interface, so a single process can be dispatched to
// exactly like a remote agent: this is the "Local Runner" implementation
// named in spec.md §4.6.
type LocalRunnerService struct {
	name          string
	signallerKind signaller.Kind
	runnerOptions runner.Options
}

// NewLocalRunnerService creates a LocalRunnerService identified by name,
// using kind to drive its Signaller and opts to configure its Runner.
func NewLocalRunnerService(name string, kind signaller.Kind, opts runner.Options) *LocalRunnerService {
	return &LocalRunnerService{name: name, signallerKind: kind, runnerOptions: opts}
}

// Name implements RunnerService.
func (l *LocalRunnerService) Name() string {
	return l.name
}

// Run implements RunnerService: validate and normalize p, wire a fresh
// Signaller -> Runner -> Reporter pipeline, drain it to completion (or
// until ctx is cancelled), and return the resulting Report.
func (l *LocalRunnerService) Run(ctx context.Context, p *plan.Plan) (*report.Report, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return &report.Report{}, err
	}

	sig := signaller.New(l.signallerKind, p)
	if err := sig.Start(); err != nil {
		return &report.Report{}, err
	}

	r := runner.New(l.runnerOptions)
	rep := report.New(p.LatencyCorrection)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sig.Stop()
			r.Stop()
		case <-done:
		}
	}()

	samples := r.Run(ctx, p, sig)
	rep.Consume(samples)

	log.S(log.Info, "local run complete", log.Attr("service", l.name), log.Attr("plan", p.ID))
	return rep.Snapshot(), ctx.Err()
}
