package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"adva/ms_conciliacion_core/internal/testutil"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		message    string
		details    []string
	}{
		{
			name:       "single detail",
			statusCode: http.StatusBadRequest,
			message:    "Error de Validación",
			details:    []string{"el CUIT no supera el dígito verificador"},
		},
		{
			name:       "multiple details",
			statusCode: http.StatusUnprocessableEntity,
			message:    "Error al escanear documentos",
			details:    []string{"carpeta raíz inaccesible", "token vencido"},
		},
		{
			name:       "no details",
			statusCode: http.StatusInternalServerError,
			message:    "Error Interno",
			details:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.statusCode, tt.message, tt.details, testutil.NewNullLogger())

			if w.Code != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", ct)
			}

			var body ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error != tt.message {
				t.Errorf("expected error %q, got %q", tt.message, body.Error)
			}
			if len(body.Details) != len(tt.details) {
				t.Fatalf("expected %d details, got %d", len(tt.details), len(body.Details))
			}
			for i, want := range tt.details {
				if body.Details[i] != want {
					t.Errorf("detail[%d]: expected %q, got %q", i, want, body.Details[i])
				}
			}
		})
	}
}

func TestWriteError_NilLogger(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "Test", []string{"detalle"}, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

type brokenWriter struct {
	http.ResponseWriter
}

func (b *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestWriteError_EncodingFailureDoesNotPanic(t *testing.T) {
	w := &brokenWriter{ResponseWriter: httptest.NewRecorder()}
	WriteError(w, http.StatusBadRequest, "Test", nil, testutil.NewNullLogger())
}
