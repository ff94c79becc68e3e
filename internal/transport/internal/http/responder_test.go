package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/oautherr"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

const testMetadataURL = "https://api.example.com/.well-known/oauth-protected-resource"

// newTestResponder creates a responder logging into buf.
func newTestResponder(buf *bytes.Buffer) transportcore.ErrorResponder {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return NewErrorResponder(ChallengeConfig{
		Realm:       "sample-api",
		Scope:       "sample-api",
		MetadataURL: testMetadataURL,
	}, logger)
}

func TestResponder_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantArea      string
		wantID        bool
		wantChallenge string
		wantLogLevel  string
	}{
		{
			name:          "missing token gets a bare challenge",
			err:           oautherr.NewMissingTokenError("Authorize"),
			wantStatus:    http.StatusUnauthorized,
			wantCode:      ierrors.CodeUnauthorized,
			wantArea:      ierrors.AreaOAuth,
			wantChallenge: `Bearer realm="sample-api", scope="sample-api", resource_metadata="` + testMetadataURL + `"`,
			wantLogLevel:  "WARN",
		},
		{
			name:          "expired token",
			err:           oautherr.NewTokenExpiredError("ValidateToken", 1),
			wantStatus:    http.StatusUnauthorized,
			wantCode:      ierrors.ErrorCodeInvalidToken,
			wantArea:      ierrors.AreaOAuth,
			wantChallenge: `Bearer realm="sample-api", error="invalid_token", error_description="The access token is expired", scope="sample-api", resource_metadata="` + testMetadataURL + `"`,
			wantLogLevel:  "WARN",
		},
		{
			name:          "insufficient scope",
			err:           oautherr.NewInsufficientScopeError("ValidateToken", "sample-api"),
			wantStatus:    http.StatusForbidden,
			wantCode:      ierrors.ErrorCodeInsufficientScope,
			wantArea:      ierrors.AreaOAuth,
			wantChallenge: `error="insufficient_scope"`,
			wantLogLevel:  "WARN",
		},
		{
			name:         "not found has no challenge",
			err:          ierrors.NewClientError(http.StatusNotFound, "company_not_found", "nope"),
			wantStatus:   http.StatusNotFound,
			wantCode:     "company_not_found",
			wantLogLevel: "WARN",
		},
		{
			name:         "jwks failure is hidden behind an id",
			err:          oautherr.NewMetadataLookupError("fetchJWKS", "https://issuer.example/jwks", http.StatusBadGateway, errors.New("upstream")),
			wantStatus:   http.StatusInternalServerError,
			wantCode:     ierrors.CodeServerError,
			wantArea:     ierrors.AreaMetadataLookup,
			wantID:       true,
			wantLogLevel: "ERROR",
		},
		{
			name:         "plain error",
			err:          fmt.Errorf("boom"),
			wantStatus:   http.StatusInternalServerError,
			wantCode:     ierrors.CodeServerError,
			wantArea:     ierrors.AreaException,
			wantID:       true,
			wantLogLevel: "ERROR",
		},
		{
			name:         "nil error",
			err:          nil,
			wantStatus:   http.StatusInternalServerError,
			wantCode:     ierrors.CodeServerError,
			wantArea:     ierrors.AreaException,
			wantID:       true,
			wantLogLevel: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			responder := newTestResponder(&logs)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/companies", nil)
			responder.Error(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			challenge := w.Header().Get("WWW-Authenticate")
			switch {
			case tt.wantChallenge == "" && challenge != "":
				t.Errorf("WWW-Authenticate = %q, want none", challenge)
			case !strings.Contains(challenge, tt.wantChallenge):
				t.Errorf("WWW-Authenticate = %q, want to contain %q", challenge, tt.wantChallenge)
			}

			var body errorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Area != tt.wantArea {
				t.Errorf("area = %q, want %q", body.Area, tt.wantArea)
			}
			if (body.ID != "") != tt.wantID {
				t.Errorf("id = %q, want present=%v", body.ID, tt.wantID)
			}
			if body.Message == "" {
				t.Error("message is empty")
			}

			if !strings.Contains(logs.String(), `"level":"`+tt.wantLogLevel+`"`) {
				t.Errorf("log = %s, want level %s", logs.String(), tt.wantLogLevel)
			}
			if tt.wantID && !strings.Contains(logs.String(), body.ID) {
				t.Errorf("log does not reference the returned id %s", body.ID)
			}
		})
	}
}

func TestResponder_DoesNotLeakInternals(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	responder := newTestResponder(&logs)

	w := httptest.NewRecorder()
	err := oautherr.NewMetadataLookupError("fetchJWKS", "https://internal.example/jwks", 503, errors.New("dial tcp 10.0.0.7:443"))
	responder.Error(w, httptest.NewRequest(http.MethodGet, "/", nil), err)

	body := w.Body.String()
	for _, secret := range []string{"internal.example", "10.0.0.7", "fetchJWKS"} {
		if strings.Contains(body, secret) {
			t.Errorf("response body leaks %q: %s", secret, body)
		}
	}
	if !strings.Contains(logs.String(), "internal.example") {
		t.Errorf("log should keep the url for operators: %s", logs.String())
	}
}

func TestResponder_FillsLogEntry(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	responder := newTestResponder(&logs)

	entry := &transportcore.LogEntry{}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(transportcore.ContextWithLogEntry(context.Background(), entry))

	responder.Error(httptest.NewRecorder(), r, errors.New("boom"))

	if entry.ErrorCode != ierrors.CodeServerError {
		t.Errorf("ErrorCode = %q, want %q", entry.ErrorCode, ierrors.CodeServerError)
	}
	if entry.ErrorID == "" {
		t.Error("ErrorID is empty for a server error")
	}

	entry = &transportcore.LogEntry{}
	r = r.WithContext(transportcore.ContextWithLogEntry(context.Background(), entry))
	responder.Error(httptest.NewRecorder(), r, oautherr.NewTokenExpiredError("op", 1))
	if entry.ErrorCode != ierrors.ErrorCodeInvalidToken || entry.ErrorID != "" {
		t.Errorf("entry = %+v, want invalid_token without id", entry)
	}
}
