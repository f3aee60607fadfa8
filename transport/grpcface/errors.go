package grpcface

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/transport"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		// Server uses NotFound both for unknown names and for unserved prefixes.
		if st.Message() == transport.ErrNoRoute.Error() {
			return transport.ErrNoRoute
		}
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidName
	case codes.DataLoss:
		return storage.ErrNameMismatch
	default:
		return err
	}
}
