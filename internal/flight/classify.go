package flight

import (
	"context"
	"errors"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/platform/retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Classify decides whether a failed Flight call is worth retrying.
func Classify(err error) retry.Action {
	switch {
	case errors.Is(err, domain.ErrStreamNotFound), errors.Is(err, context.Canceled):
		return retry.Stop
	case errors.Is(err, circuitbreaker.ErrOpen):
		return retry.After
	}

	st, ok := status.FromError(err)
	if !ok {
		return retry.Retry
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal, codes.Unknown:
		return retry.Retry
	case codes.ResourceExhausted:
		return retry.After
	default:
		return retry.Stop
	}
}
