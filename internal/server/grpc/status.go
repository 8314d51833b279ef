package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
)

var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{common.ErrInvalidInput, codes.InvalidArgument},
	{common.ErrWrongPassword, codes.Unauthenticated},
	{common.ErrRecoveryFailed, codes.Unauthenticated},
	{common.ErrorUnauthorized, codes.Unauthenticated},
	{common.ErrInvalidToken, codes.Unauthenticated},
	{common.ErrTokenExpired, codes.Unauthenticated},
	{common.ErrDiaryLocked, codes.FailedPrecondition},
	{common.ErrNotSetUp, codes.FailedPrecondition},
	{common.ErrAlreadySetUp, codes.FailedPrecondition},
	{common.ErrIntegrity, codes.DataLoss},
	{common.ErrorNotFound, codes.NotFound},
	{common.ErrConflict, codes.Aborted},
	{common.ErrUserExists, codes.AlreadyExists},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// toStatus maps service errors onto gRPC codes. Validation errors keep
// their full text, other known errors only their sentinel text, and anything
// else becomes a bare Internal so storage or driver details never reach the
// client.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			if sc.code == codes.InvalidArgument {
				return status.Error(sc.code, err.Error())
			}
			return status.Error(sc.code, sc.err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}
