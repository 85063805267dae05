package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAppError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
		external   bool
	}{
		{
			name:       "validation",
			err:        NewValidationError("need at least 2 nodes"),
			wantType:   ErrorTypeValidation,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rate limit",
			err:        NewRateLimitError(""),
			wantType:   ErrorTypeRateLimit,
			wantStatus: http.StatusTooManyRequests,
			external:   true,
		},
		{
			name:       "quota",
			err:        NewQuotaError("AI credits depleted"),
			wantType:   ErrorTypeQuota,
			wantStatus: http.StatusPaymentRequired,
			external:   true,
		},
		{
			name:       "malformed response",
			err:        NewMalformedResponseError("cluster-nodes", errors.New("no JSON")),
			wantType:   ErrorTypeMalformedResponse,
			wantStatus: http.StatusBadGateway,
			external:   true,
		},
		{
			name:       "reconciliation",
			err:        NewReconciliationError("no valid clusters"),
			wantType:   ErrorTypeReconciliation,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "wrapped not found",
			err:        fmt.Errorf("loading canvas: %w", NewNotFoundError("canvas")),
			wantType:   ErrorTypeNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "foreign error",
			err:        errors.New("boom"),
			wantType:   ErrorTypeInternal,
			wantStatus: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, TypeOf(tt.err))
			assert.Equal(t, tt.external, IsExternal(tt.err))
			if appErr := GetAppError(tt.err); appErr != nil {
				assert.Equal(t, tt.wantStatus, appErr.HTTPStatus)
			}
		})
	}
}

func TestAppError_UnwrapReachesSentinel(t *testing.T) {
	sentinel := errors.New("node not found")
	err := NewNotFoundError("node").WithCause(sentinel)

	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "caused by")
}

func TestFromStatus(t *testing.T) {
	assert.True(t, IsRateLimit(FromStatus("llm", http.StatusTooManyRequests, "")))
	assert.True(t, IsQuota(FromStatus("llm", http.StatusPaymentRequired, "credits")))
	assert.True(t, IsValidation(FromStatus("llm", http.StatusBadRequest, "No nodes provided")))

	err := FromStatus("llm", http.StatusInternalServerError, "")
	assert.True(t, IsType(err, ErrorTypeExternal))
	assert.Equal(t, http.StatusInternalServerError, err.Details["status"])
}

func TestErrorHandler_Handle(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)

	t.Run("app error keeps type and code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v2/canvases/c1/cluster", nil)

		h.Handle(rec, req, NewValidationError("Need at least 2 nodes to cluster").WithCode(CodeNotEnoughNodes))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, string(ErrorTypeValidation), resp.Error.Type)
		assert.Equal(t, CodeNotEnoughNodes, resp.Error.Code)
	})

	t.Run("foreign error is hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		h.Handle(rec, req, errors.New("secret detail"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret detail")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		h.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("bad")
		})).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
