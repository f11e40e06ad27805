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

package rpc

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fortio.org/log"

	"metron.dev/metron/internal/metronerr"
	"metron.dev/metron/plan"
	"metron.dev/metron/report"
	"metron.dev/metron/service"
)

// Server implements MetronServer by translating each inbound Plan into a
// call against a wrapped service.RunnerService, which may itself be a
// Controller — so a controller process composes transparently with an
// agent process, per spec.md §4.6/§4.7.
type Server struct {
	Wrapped service.RunnerService
}

// NewServer wraps svc as a MetronServer.
func NewServer(svc service.RunnerService) *Server {
	return &Server{Wrapped: svc}
}

// Run implements MetronServer: reads Plans off the request stream, runs
// each one against the wrapped RunnerService concurrently with the
// others, and writes one completion RunResponse per Plan. A missing or
// malformed Plan is answered with codes.InvalidArgument without running
// anything, per spec.md §4.8.
func (s *Server) Run(stream MetronRunServer) error {
	var wg sync.WaitGroup
	var sendMu sync.Mutex
	send := func(resp *RunResponse) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.Send(resp)
	}

	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			wg.Wait()
			return status.Error(codes.Unavailable, err.Error())
		}

		p, convErr := req.Plan.ToPlan()
		if convErr != nil {
			// A missing/unparsable Plan is a protocol violation, not a
			// recoverable per-plan condition: fail the whole stream.
			wg.Wait()
			return toGRPCStatus(metronerr.Wrap(metronerr.InvalidArgument, "missing or malformed plan", convErr))
		}
		if valErr := p.Validate(); valErr != nil {
			// A structurally present but semantically invalid Plan is
			// reported back on the response stream so the caller can keep
			// submitting other plans on the same connection.
			_ = send(&RunResponse{PlanID: p.ID, Done: true, ErrorMessage: valErr.Error()})
			continue
		}

		wg.Add(1)
		go func(p *plan.Plan) {
			defer wg.Done()
			s.runOne(stream.Context(), p, send)
		}(p)
	}

	wg.Wait()
	return nil
}

func (s *Server) runOne(ctx context.Context, p *plan.Plan, send func(*RunResponse) error) {
	rep, err := s.Wrapped.Run(ctx, p)
	resp := &RunResponse{PlanID: p.ID, Done: true}
	if rep != nil {
		fillCounters(resp, rep)
	}
	if err != nil {
		resp.ErrorMessage = err.Error()
		log.S(log.Warning, "runner service failed", log.Attr("plan", p.ID), log.Attr("error", err.Error()))
	}
	if sendErr := send(resp); sendErr != nil {
		log.Warnf("failed to send run response for plan %s: %v", p.ID, sendErr)
	}
}

func fillCounters(resp *RunResponse, rep *report.Report) {
	resp.TotalRequests = rep.TotalRequests
	resp.Total2xx = rep.Total2xx
	resp.TotalNon2xx = rep.TotalNon2xx
	resp.TotalErrors = rep.TotalErrors
}

// toGRPCStatus maps a Metron error kind to the status code named in
// spec.md §6/§7: InvalidArgument for malformed plans, Unavailable for
// transport failures, Internal for runner crashes.
func toGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	var merr *metronerr.Error
	if errors.As(err, &merr) {
		switch merr.Kind {
		case metronerr.InvalidArgument:
			return status.Error(codes.InvalidArgument, merr.Error())
		case metronerr.Transport:
			return status.Error(codes.Unavailable, merr.Error())
		default:
			return status.Error(codes.Internal, merr.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
