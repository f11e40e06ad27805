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
	"fmt"
	"net"

	"google.golang.org/grpc"

	"metron.dev/metron/fnet"
	"metron.dev/metron/service"
)

// Listener binds a service.RunnerService to a grpc.Server serving
// Metron's one Run RPC, grounded on fgrpc/pingsrv.go's PingServer
// bootstrap (grpc.NewServer, fnet.Listen, RegisterXServer, Serve).
type Listener struct {
	grpcServer *grpc.Server
	listener   net.Listener
	Addr       string
}

// Listen binds addr (a port, "host:port", or a unix domain socket path,
// per fnet.Listen's rules) and wires svc as the MetronServer backing it.
// Unlike PingServer, reflection/health registration is left out: Metron
// has exactly one RPC contract and no operator-facing service discovery
// surface in spec.md.
func Listen(name, addr string, svc service.RunnerService) (*Listener, error) {
	lis, lAddr := fnet.Listen(name, addr)
	if lis == nil {
		return nil, fmt.Errorf("listening on %s: %s", name, addr)
	}
	grpcServer := grpc.NewServer()
	RegisterMetronServer(grpcServer, NewServer(svc))
	return &Listener{grpcServer: grpcServer, listener: lis, Addr: lAddr.String()}, nil
}

// Serve blocks accepting connections until the listener is closed or the
// server is stopped.
func (l *Listener) Serve() error {
	return l.grpcServer.Serve(l.listener)
}

// Stop gracefully stops the grpc server, letting in-flight streams drain.
func (l *Listener) Stop() {
	l.grpcServer.GracefulStop()
}
