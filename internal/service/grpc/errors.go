package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// toStatus переводит доменную ошибку в gRPC-статус.
// Ошибки без доменного смысла логируются и скрываются за Internal.
func toStatus(logger *log.Entry, operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return status.Error(codes.FailedPrecondition, stockErr.Error())
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrMissingBuyerInfo),
		errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrQuantityTooLarge),
		errors.Is(err, domain.ErrProductNameRequired),
		errors.Is(err, domain.ErrPriceNegative),
		errors.Is(err, domain.ErrStockNegative),
		errors.Is(err, domain.ErrSettingsInvalid),
		errors.Is(err, domain.ErrItemsRequired):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, domain.ErrProductNotFound.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrProductAlreadyExists),
		errors.Is(err, domain.ErrOrderAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case domain.IsVersionConflict(err):
		return status.Error(codes.Aborted, domain.ErrOrderVersionConflict.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		logger.WithError(err).WithField("operation", operation).Error("request failed")
		return status.Errorf(codes.Internal, "%s failed", operation)
	}
}
