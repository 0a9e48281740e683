package handlers

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
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/ctxkeys"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestWriteSuccess_IncludesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid facts",
			err:        types.NewError(types.ErrInvalidFacts, "financial report is required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_FACTS",
		},
		{
			name:       "session failure",
			err:        types.NewSessionFailure("round 2 response generation failed", errors.New("503")),
			wantStatus: http.StatusBadGateway,
			wantCode:   "SESSION_FAILURE",
		},
		{
			name:       "explicit status wins",
			err:        types.NewError(types.ErrRateLimited, "busy").WithHTTPStatus(http.StatusServiceUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "RATE_LIMITED",
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(w, r, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"acme"}`},
		{name: "unknown field", body: `{"name":"acme","extra":1}`, wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
		{name: "empty", body: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			var r *http.Request
			if tt.body == "" {
				r = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
			} else {
				r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			}

			var dst payload
			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "acme", dst.Name)
		})
	}
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	big := `{"name":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(big))

	var dst map[string]string
	err := DecodeJSONBody(w, r, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.Header.Set("Content-Type", tt.contentType)
			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError) // 只记录第一次
	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := map[types.ErrorCode]int{
		types.ErrInvalidRequest:      http.StatusBadRequest,
		types.ErrInvalidFacts:        http.StatusBadRequest,
		types.ErrUnauthorized:        http.StatusUnauthorized,
		types.ErrForbidden:           http.StatusForbidden,
		types.ErrNotFound:            http.StatusNotFound,
		types.ErrRateLimited:         http.StatusTooManyRequests,
		types.ErrTimeout:             http.StatusGatewayTimeout,
		types.ErrSessionFailure:      http.StatusBadGateway,
		types.ErrGenerationTransport: http.StatusBadGateway,
		types.ErrServiceUnavailable:  http.StatusServiceUnavailable,
		types.ErrConfiguration:       http.StatusInternalServerError,
		types.ErrSynthesisParse:      http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, mapErrorCodeToHTTPStatus(code), string(code))
	}
}
