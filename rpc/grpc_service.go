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

	"google.golang.org/grpc"
)

// ServiceName is the grpc service name for Metron's single RPC, the
// stand-in for a ".metron.Metron" protobuf service name.
const ServiceName = "metron.Metron"

// MetronServer is implemented by anything that can serve the Run
// bidirectional stream. Server (server.go) is the concrete
// implementation wrapping a service.RunnerService.
type MetronServer interface {
	Run(stream MetronRunServer) error
}

// MetronRunServer is the server-side view of the Run stream.
type MetronRunServer interface {
	Send(*RunResponse) error
	Recv() (*RunRequest, error)
	grpc.ServerStream
}

type metronRunServer struct {
	grpc.ServerStream
}

func (x *metronRunServer) Send(m *RunResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *metronRunServer) Recv() (*RunRequest, error) {
	m := new(RunRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func runHandler(srv any, stream grpc.ServerStream) error {
	return srv.(MetronServer).Run(&metronRunServer{ServerStream: stream})
}

// ServiceDesc is the grpc.ServiceDesc for Metron's single streaming RPC,
// hand-written in the shape protoc-gen-go-grpc would otherwise generate
// from a metron.proto (see DESIGN.md).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetronServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Run",
			Handler:       runHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "metron.rpc",
}

// RegisterMetronServer registers srv with s under ServiceDesc.
func RegisterMetronServer(s grpc.ServiceRegistrar, srv MetronServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// MetronClient opens the Run stream against a remote Metron server.
type MetronClient interface {
	Run(ctx context.Context, opts ...grpc.CallOption) (MetronRunClient, error)
}

type metronClient struct {
	cc grpc.ClientConnInterface
}

// NewMetronClient wraps an established grpc.ClientConn.
func NewMetronClient(cc grpc.ClientConnInterface) MetronClient {
	return &metronClient{cc: cc}
}

func (c *metronClient) Run(ctx context.Context, opts ...grpc.CallOption) (MetronRunClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Run", opts...)
	if err != nil {
		return nil, err
	}
	return &metronRunClient{ClientStream: stream}, nil
}

// MetronRunClient is the client-side view of the Run stream.
type MetronRunClient interface {
	Send(*RunRequest) error
	Recv() (*RunResponse, error)
	grpc.ClientStream
}

type metronRunClient struct {
	grpc.ClientStream
}

func (x *metronRunClient) Send(m *RunRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *metronRunClient) Recv() (*RunResponse, error) {
	m := new(RunResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
