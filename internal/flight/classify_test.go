package flight

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/platform/retry"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.Action
	}{
		{"unknown stream", fmt.Errorf("resolve: %w", domain.ErrStreamNotFound), retry.Stop},
		{"cancelled", context.Canceled, retry.Stop},
		{"breaker open", circuitbreaker.ErrOpen, retry.After},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), retry.Retry},
		{"wrapped unavailable", fmt.Errorf("list flights: %w", status.Error(codes.Unavailable, "down")), retry.Retry},
		{"exhausted", status.Error(codes.ResourceExhausted, "slow down"), retry.After},
		{"unauthenticated", status.Error(codes.Unauthenticated, "no token"), retry.Stop},
		{"plain", errors.New("eof"), retry.Retry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
