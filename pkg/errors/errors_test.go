package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"wrapped not found", fmt.Errorf("loading recipe 7: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"invalid helper", Invalid("limit must be positive"), http.StatusBadRequest},
		{"empty corpus", fmt.Errorf("building index: %w", ErrEmptyCorpus), http.StatusServiceUnavailable},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("handler: %w", Newf(ErrInvalidInput, http.StatusBadRequest, "attribute %q", "keto"))
	var appErr *AppError
	if !As(err, &appErr) {
		t.Fatal("expected AppError in chain")
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("expected ErrInvalidInput in chain")
	}
	if appErr.Message != `attribute "keto"` {
		t.Errorf("unexpected message %q", appErr.Message)
	}
}
