// internal/proto/control.go
// Hand-authored in the shape protoc-gen-go-grpc would generate from a
// control.proto defining hyphapb.ControlService. The StreamEvents RPC
// carries google.protobuf.Struct so router-wide connect/disconnect/register
// events can be shipped over the wire without a bespoke generated message;
// the unary Invoke RPC backs hyphactl's debug calls.
package hyphapb

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	emptypb "google.golang.org/protobuf/types/known/emptypb"
	structpb "google.golang.org/protobuf/types/known/structpb"
)

const _ = grpc.SupportPackageIsVersion9

const (
	ControlService_StreamEvents_FullMethodName = "/hyphapb.ControlService/StreamEvents"
	ControlService_Invoke_FullMethodName       = "/hyphapb.ControlService/Invoke"
)

// ControlServiceClient is the client API for ControlService.
type ControlServiceClient interface {
	// StreamEvents streams router-wide connect/disconnect/register-service
	// events to an operator tool, each encoded as a google.protobuf.Struct.
	StreamEvents(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
	// Invoke proxies one workspace-service or registered-service call for
	// debugging from outside the WebSocket data plane.
	Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type controlServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewControlServiceClient adapts a ClientConn into a ControlServiceClient.
func NewControlServiceClient(cc grpc.ClientConnInterface) ControlServiceClient {
	return &controlServiceClient{cc}
}

func (c *controlServiceClient) StreamEvents(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	stream, err := c.cc.NewStream(ctx, &ControlService_ServiceDesc.Streams[0], ControlService_StreamEvents_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *controlServiceClient) Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, ControlService_Invoke_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ControlService_StreamEventsClient is a backwards-compatible alias for the
// generic stream type, matching the convention generated code follows for
// older callers.
type ControlService_StreamEventsClient = grpc.ServerStreamingClient[structpb.Struct]

// ControlServiceServer is the server API for ControlService.
// All implementations must embed UnimplementedControlServiceServer.
type ControlServiceServer interface {
	StreamEvents(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
	mustEmbedUnimplementedControlServiceServer()
}

// UnimplementedControlServiceServer must be embedded by value to have
// forward compatible implementations.
type UnimplementedControlServiceServer struct{}

func (UnimplementedControlServiceServer) StreamEvents(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Errorf(codes.Unimplemented, "method StreamEvents not implemented")
}
func (UnimplementedControlServiceServer) Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Invoke not implemented")
}
func (UnimplementedControlServiceServer) mustEmbedUnimplementedControlServiceServer() {}
func (UnimplementedControlServiceServer) testEmbeddedByValue()                        {}

// UnsafeControlServiceServer may be embedded to opt out of forward
// compatibility for this service.
type UnsafeControlServiceServer interface {
	mustEmbedUnimplementedControlServiceServer()
}

// RegisterControlServiceServer registers srv on s.
func RegisterControlServiceServer(s grpc.ServiceRegistrar, srv ControlServiceServer) {
	if t, ok := srv.(interface{ testEmbeddedByValue() }); ok {
		t.testEmbeddedByValue()
	}
	s.RegisterService(&ControlService_ServiceDesc, srv)
}

func _ControlService_StreamEvents_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ControlServiceServer).StreamEvents(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

func _ControlService_Invoke_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServiceServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ControlService_Invoke_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServiceServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ControlService_StreamEventsServer is a backwards-compatible alias for the
// generic stream type.
type ControlService_StreamEventsServer = grpc.ServerStreamingServer[structpb.Struct]

// ControlService_ServiceDesc is the grpc.ServiceDesc for ControlService.
// It's only intended for direct use with grpc.RegisterService, and not to
// be introspected or modified (even as a copy).
var ControlService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "hyphapb.ControlService",
	HandlerType: (*ControlServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    _ControlService_Invoke_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       _ControlService_StreamEvents_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "control.proto",
}
