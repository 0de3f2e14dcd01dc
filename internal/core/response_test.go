package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindgarden/internal/types"
)

func TestJSON_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, map[string]bool{"received": true})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}

func TestError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-123"))

	Error(w, r, types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for user", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found_subscription", resp.Error.Code)
	assert.Equal(t, "req-123", resp.Error.RequestID)
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppError(types.ErrCodeValidationInvalidPlan, "unknown plan", nil)
	Error(w, r, errors.Join(errors.New("outer"), inner))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestError_GenericErrorIs500AndOpaque(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("pq: connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		UserID string `json:"user_id"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"user_id":"u1"}`, false},
		{"empty body", ``, true},
		{"syntax error", `{"user_id`, true},
		{"unknown field", `{"user_id":"u1","extra":1}`, true},
		{"wrong type", `{"user_id":42}`, true},
		{"multiple values", `{"user_id":"u1"}{"user_id":"u2"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst payload
			err := DecodeJSON(w, r, &dst)
			if tt.wantErr {
				var appErr *types.AppError
				require.Error(t, err)
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "u1", dst.UserID)
			}
		})
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	big := bytes.Repeat([]byte("a"), maxRequestBodySize+1)
	body := `{"user_id":"` + string(big) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst struct {
		UserID string `json:"user_id"`
	}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)
}
