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
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"metron.dev/metron/internal/metronerr"
	"metron.dev/metron/plan"
	"metron.dev/metron/report"
)

// Client implements service.RunnerService against a remote agent or
// controller process reachable over grpc, per spec.md §4.6 ("RPC Client
// (remote)"). It retains one streaming call for its lifetime; on
// transport failure that call fails and is surfaced as a metronerr
// Transport error, and reconnection is the caller's responsibility,
// matching spec.md §4.8's connection lifecycle note.
type Client struct {
	name string
	conn *grpc.ClientConn
	cli  MetronClient

	mu     sync.Mutex
	stream MetronRunClient
}

// Dial connects to a Metron agent or controller at addr (insecure
// transport; TLS is out of spec.md's scope) and returns a ready Client.
func Dial(name, addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, metronerr.Wrap(metronerr.Transport, "dialing "+addr, err)
	}
	return &Client{name: name, conn: conn, cli: NewMetronClient(conn)}, nil
}

// Name implements service.RunnerService.
func (c *Client) Name() string {
	return c.name
}

// Close releases the underlying grpc connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) ensureStream(ctx context.Context) (MetronRunClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return c.stream, nil
	}
	stream, err := c.cli.Run(ctx)
	if err != nil {
		return nil, metronerr.Wrap(metronerr.Transport, "opening run stream", err)
	}
	c.stream = stream
	return stream, nil
}

func (c *Client) invalidateStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = nil
}

// Run implements service.RunnerService: submit p on the retained stream
// and wait for its completion record.
func (c *Client) Run(ctx context.Context, p *plan.Plan) (*report.Report, error) {
	// Normalize before sending so p.ID is never empty: the server mints
	// its own UUID for an empty-ID plan, and this Client would then wait
	// forever for a PlanID it never sent.
	p.Normalize()

	stream, err := c.ensureStream(ctx)
	if err != nil {
		return &report.Report{}, err
	}

	c.mu.Lock()
	sendErr := stream.Send(&RunRequest{Plan: ToWire(p)})
	c.mu.Unlock()
	if sendErr != nil {
		c.invalidateStream()
		return &report.Report{}, metronerr.Wrap(metronerr.Transport, "sending plan", sendErr)
	}

	for {
		resp, recvErr := stream.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				return &report.Report{}, metronerr.New(metronerr.Transport, "run stream closed before completion")
			}
			c.invalidateStream()
			return &report.Report{}, metronerr.Wrap(metronerr.Transport, "receiving run response", recvErr)
		}
		if resp.PlanID != p.ID {
			// A response for a different in-flight plan on this shared
			// stream; keep waiting for ours.
			continue
		}
		rep := &report.Report{
			TotalRequests: resp.TotalRequests,
			Total2xx:      resp.Total2xx,
			TotalNon2xx:   resp.TotalNon2xx,
			TotalErrors:   resp.TotalErrors,
		}
		if resp.ErrorMessage != "" {
			return rep, metronerr.New(metronerr.RunnerFailed, fmt.Sprintf("%s: %s", c.name, resp.ErrorMessage))
		}
		if resp.Done {
			return rep, nil
		}
	}
}
