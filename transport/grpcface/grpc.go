package grpcface

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FaceServer is the server API for the Face gRPC service.
//
// Requests and replies are protobuf well-known wrapper types carrying the
// binary name, packet and announcement encodings, so no codegen is needed.
//
//	service Face {
//	  rpc Fetch(google.protobuf.BytesValue) returns (google.protobuf.BytesValue); // name wire -> packet wire
//	  rpc Announce(google.protobuf.BytesValue) returns (google.protobuf.Empty);   // announcement envelope
//	}
type FaceServer interface {
	Fetch(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Announce(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

// UnimplementedFaceServer can be embedded to have forward compatible implementations.
type UnimplementedFaceServer struct{}

func (UnimplementedFaceServer) Fetch(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Fetch not implemented")
}
func (UnimplementedFaceServer) Announce(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Announce not implemented")
}

// RegisterFaceServer registers the Face service on a gRPC server.
func RegisterFaceServer(s grpc.ServiceRegistrar, srv FaceServer) {
	s.RegisterService(&Face_ServiceDesc, srv)
}

// FaceClient is the client API for the Face gRPC service.
type FaceClient interface {
	Fetch(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Announce(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type faceClient struct{ cc grpc.ClientConnInterface }

func NewFaceClient(cc grpc.ClientConnInterface) FaceClient { return &faceClient{cc: cc} }

func (c *faceClient) Fetch(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/aincraft.transport.v1.Face/Fetch", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *faceClient) Announce(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	err := c.cc.Invoke(ctx, "/aincraft.transport.v1.Face/Announce", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Face_Fetch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FaceServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/aincraft.transport.v1.Face/Fetch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FaceServer).Fetch(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Face_Announce_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FaceServer).Announce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/aincraft.transport.v1.Face/Announce"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FaceServer).Announce(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Face_ServiceDesc is the grpc.ServiceDesc for the Face service.
var Face_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "aincraft.transport.v1.Face",
	HandlerType: (*FaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fetch", Handler: _Face_Fetch_Handler},
		{MethodName: "Announce", Handler: _Face_Announce_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "face.proto",
}
