package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/api"
	"github.com/BaSui01/switchboard/internal/ctxkeys"
	"github.com/BaSui01/switchboard/types"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data any) api.Response {
	t.Helper()
	var raw struct {
		api.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.Response
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-1"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	var data map[string]string
	resp := decodeResponse(t, w, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "value", data["key"])
	assert.Nil(t, resp.Error)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "bad"), http.StatusBadRequest, "INVALID_REQUEST", "bad"},
		{"not found", types.NewError(types.ErrNotFound, "gone"), http.StatusNotFound, "NOT_FOUND", "gone"},
		{"conflict", types.NewError(types.ErrConflict, "taken"), http.StatusConflict, "CONFLICT", "taken"},
		{"store", types.NewError(types.ErrStoreUnavailable, "down"), http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "down"},
		{"explicit status", types.NewError(types.ErrInvalidRequest, "x").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot, "INVALID_REQUEST", "x"},
		{"wrapped", errors.Join(errors.New("ctx"), types.NewError(types.ErrUnauthorized, "who")), http.StatusUnauthorized, "UNAUTHORIZED", "who"},
		{"plain error hides text", errors.New("secret detail"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(w, r, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w, nil)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.NotContains(t, w.Body.String(), "secret detail")
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		var p payload
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		require.NoError(t, DecodeJSONBody(w, r, &p, nil))
		assert.Equal(t, "x", p.Name)
	})

	for name, body := range map[string]string{
		"unknown field": `{"name":"x","extra":1}`,
		"malformed":     `{"name":`,
		"empty":         ``,
		"too large":     `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var p payload
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			err := DecodeJSONBody(w, r, &p, nil)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	for ct, want := range map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"text/plain":                      false,
		"":                                false,
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.Equal(t, want, ValidateContentType(w, r, nil), ct)
		if !want {
			assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	get := func(q string) (int, error) {
		return queryLimit(httptest.NewRequest(http.MethodGet, "/x"+q, nil), 10, 100)
	}

	n, err := get("")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = get("?limit=5")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = get("?limit=5000")
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	_, err = get("?limit=0")
	assert.Error(t, err)
	_, err = get("?limit=abc")
	assert.Error(t, err)
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Same(t, rec, rw.Unwrap())

	_, _, err = rw.Hijack()
	assert.Error(t, err, "the recorder cannot be hijacked")
}
