package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, map[string]string{"status": "ok"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name     string
		write    func(w http.ResponseWriter)
		code     int
		message  string
		hasExtra bool
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad id") }, http.StatusBadRequest, "bad id", false},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "invoice 9 not found") }, http.StatusNotFound, "invoice 9 not found", false},
		{"conflict", func(w http.ResponseWriter) {
			WriteConflict(w, "finalize rejected", map[string]interface{}{"reason": "RECONCILIATION_NOT_OK"})
		}, http.StatusConflict, "finalize rejected", true},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w) }, http.StatusInternalServerError, "internal server error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.code, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.message, body.Error)
			if tt.hasExtra {
				assert.Equal(t, "RECONCILIATION_NOT_OK", body.Details["reason"])
			} else {
				assert.Nil(t, body.Details)
			}
		})
	}
}
