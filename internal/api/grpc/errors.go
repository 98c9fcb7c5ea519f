package grpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"equiprent-backend/internal/domain"
)

// StatusFromError translates an engine error into a gRPC status. Errors that
// already carry a status pass through.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var insufficient *domain.InsufficientInventoryError
	var misconfigured *domain.MisconfiguredRuleError
	switch {
	case errors.As(err, &insufficient):
		return status.Errorf(codes.FailedPrecondition, "insufficient inventory: requested %d, available %d",
			insufficient.Requested, insufficient.Available)
	case errors.As(err, &misconfigured):
		return status.Error(codes.FailedPrecondition, misconfigured.Error())
	case errors.Is(err, domain.ErrIdempotencyKeyInFlight),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidDiscount),
		errors.Is(err, domain.ErrInvalidBookable),
		errors.Is(err, domain.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnknownItem),
		errors.Is(err, domain.ErrUnknownUnit),
		errors.Is(err, domain.ErrUnknownKit),
		errors.Is(err, domain.ErrUnknownVariant),
		errors.Is(err, domain.ErrUnknownCommitment):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
