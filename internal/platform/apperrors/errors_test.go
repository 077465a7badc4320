package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantHTTP int
		wantGRPC codes.Code
	}{
		{"validation", ValidationError("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{"not found", NotFoundError("missing"), http.StatusNotFound, codes.NotFound},
		{"conflict", ConflictError("dup"), http.StatusConflict, codes.AlreadyExists},
		{"forbidden", ForbiddenError("plan"), http.StatusForbidden, codes.PermissionDenied},
		{"unauthenticated", UnauthenticatedError("token"), http.StatusUnauthorized, codes.Unauthenticated},
		{"rate limited", RateLimitedError("slow down"), http.StatusTooManyRequests, codes.ResourceExhausted},
		{"external", ExternalError("binance", errors.New("timeout")), http.StatusBadGateway, codes.Unavailable},
		{"internal", InternalError("db", errors.New("boom")), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantHTTP, tt.err.HTTPStatus())
			assert.Equal(t, tt.wantGRPC, tt.err.GRPCCode())
		})
	}
}

func TestAs_WrapsPlainErrors(t *testing.T) {
	plain := errors.New("connection reset")

	structured := As(plain)

	assert.Equal(t, TypeInternal, structured.Type)
	assert.ErrorIs(t, structured, plain)
}

func TestAs_FindsWrappedStructuredError(t *testing.T) {
	inner := NotFoundError("trade not found").WithField("trade_id", "abc")
	wrapped := fmt.Errorf("get trade: %w", inner)

	structured := As(wrapped)

	assert.Same(t, inner, structured)
	assert.True(t, IsType(wrapped, TypeNotFound))
	assert.False(t, IsType(wrapped, TypeValidation))
}

func TestToResponse_OmitsEmptyContext(t *testing.T) {
	resp := ValidationError("symbol is required").ToResponse()

	assert.Equal(t, "symbol is required", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Nil(t, resp.Context)
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := ExternalError("price lookup failed", errors.New("503"))

	assert.Equal(t, "external: price lookup failed: 503", err.Error())
	assert.Nil(t, As(nil))
}
