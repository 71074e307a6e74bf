package qdrantvec

import (
	"context"
	"errors"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/errcode"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// classify maps gRPC failures onto the error taxonomy. Already classified
// errors are returned unchanged.
func classify(err error) error {
	if err == nil || errcode.KindOf(err) != errcode.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errcode.ErrTimeout.Wrap(err)
	case errors.Is(err, context.Canceled):
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return errcode.ErrServer.Wrap(err)
	}
	switch st.Code() {
	case codes.Unavailable:
		return errcode.ErrConnection.WithMsg(st.Message()).Wrap(err)
	case codes.DeadlineExceeded:
		return errcode.ErrTimeout.WithMsg(st.Message()).Wrap(err)
	case codes.Canceled:
		return context.Canceled
	case codes.NotFound:
		return backend.ErrIndexNotFound.WithMsg(st.Message()).Wrap(err)
	case codes.AlreadyExists:
		return backend.ErrIndexExists.WithMsg(st.Message()).Wrap(err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return errcode.ErrValidation.WithMsg(st.Message()).Wrap(err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return errcode.ErrAuthentication.WithMsg(st.Message()).Wrap(err)
	case codes.Aborted:
		return errcode.ErrConflict.WithMsg(st.Message()).Wrap(err)
	default:
		return errcode.ErrServer.WithMsg(st.Message()).Wrap(err)
	}
}
