package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/transport/internal/mocks"
)

func TestRecovery_Panics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     any
		wantCause string
	}{
		{name: "string", value: "something went wrong", wantCause: "something went wrong"},
		{name: "error", value: errors.New("wrapped failure"), wantCause: "wrapped failure"},
		{name: "int", value: 42, wantCause: "42"},
		{name: "struct", value: struct{ Code int }{Code: 7}, wantCause: "{7}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, logs := newTestLogger()
			responder := &mocks.ErrorResponder{}
			handler := NewRecoveryMiddleware(responder, logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.value)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/companies", nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", w.Code)
			}

			var apiErr *ierrors.APIError
			if !errors.As(responder.LastError(), &apiErr) {
				t.Fatalf("rendered %v, want *APIError", responder.LastError())
			}
			if apiErr.Area != ierrors.AreaException || apiErr.InstanceID == "" {
				t.Errorf("APIError = %+v, want area Exception with an id", apiErr)
			}
			if !strings.Contains(apiErr.Err.Error(), tt.wantCause) {
				t.Errorf("cause = %v, want to contain %q", apiErr.Err, tt.wantCause)
			}

			entry := logs.find("panic recovered")
			if entry == nil {
				t.Fatal("panic was not logged")
			}
			if entry["level"] != "ERROR" || entry["path"] != "/api/companies" {
				t.Errorf("log entry = %v", entry)
			}
			if stack, _ := entry["stack"].(string); !strings.Contains(stack, "goroutine") {
				t.Error("log entry has no stack trace")
			}
		})
	}
}

func TestRecovery_NoPanic(t *testing.T) {
	t.Parallel()

	responder := &mocks.ErrorResponder{}
	handler := NewRecoveryMiddleware(responder, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Custom", "value")
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusAccepted || w.Header().Get("X-Custom") != "value" {
		t.Errorf("response = %d %q", w.Code, w.Header().Get("X-Custom"))
	}
	if responder.LastError() != nil {
		t.Errorf("responder called without a panic: %v", responder.LastError())
	}
}

func TestRecovery_AbortHandlerIsRepanicked(t *testing.T) {
	t.Parallel()

	handler := NewRecoveryMiddleware(&mocks.ErrorResponder{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if got := recover(); got != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", got)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRecovery_SequentialPanics(t *testing.T) {
	t.Parallel()

	responder := &mocks.ErrorResponder{}
	count := 0
	handler := NewRecoveryMiddleware(responder, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		count++
		panic(fmt.Sprintf("panic %d", count))
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("request %d status = %d, want 500", i, w.Code)
		}
	}
	if len(responder.Errors()) != 3 {
		t.Errorf("rendered %d errors, want 3", len(responder.Errors()))
	}
}

func TestNewRecoveryMiddleware_NilResponder(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("NewRecoveryMiddleware(nil, ...) should panic")
		}
	}()
	NewRecoveryMiddleware(nil, nil)
}
