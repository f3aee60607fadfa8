package grpcface

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/aincraft/name"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/transport"
)

// Server exposes a face's local handlers and subscriptions over the Face service.
type Server struct {
	UnimplementedFaceServer
	Mux *transport.Mux
}

func (s *Server) Fetch(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Mux == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing mux")
	}
	n, err := name.DecodeWire(in.GetValue())
	if err != nil || len(n) == 0 {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidName.Error())
	}
	p, err := s.Mux.Answer(ctx, n)
	if err != nil {
		return nil, mapErr(err)
	}
	// Never answer with a packet under a different name.
	if !p.Name.Equal(n) {
		return nil, status.Error(codes.DataLoss, storage.ErrNameMismatch.Error())
	}
	return wrapperspb.Bytes(p.Wire()), nil
}

func (s *Server) Announce(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	_ = ctx
	if s == nil || s.Mux == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing mux")
	}
	group, payload, err := decodeEnvelope(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.Mux.Deliver(group, payload)
	return &emptypb.Empty{}, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, transport.ErrNoRoute):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidName):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNameMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
