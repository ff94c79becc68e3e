package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
	"github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

// errorResponse represents a JSON error response body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Area    string `json:"area,omitempty"`
	ID      string `json:"id,omitempty"`
}

// ChallengeConfig describes the bearer challenge sent with 401 and 403 responses.
type ChallengeConfig struct {
	// Realm is the protection space, usually the API name.
	Realm string

	// Scope is the scope the API requires.
	Scope string

	// MetadataURL is the RFC 9728 protected resource metadata URL.
	MetadataURL string
}

// errorResponder implements transportcore.ErrorResponder.
type errorResponder struct {
	challenge ChallengeConfig
	handler   *ierrors.Handler
	logger    *slog.Logger
}

// NewErrorResponder creates an error responder. Errors are logged through
// an errors.Handler on logger. If logger is nil, it uses the default slog logger.
func NewErrorResponder(challenge ChallengeConfig, logger *slog.Logger) transportcore.ErrorResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &errorResponder{
		challenge: challenge,
		handler:   ierrors.NewHandler(logger),
		logger:    logger,
	}
}

// Error logs err and writes the client-facing error as JSON.
//
// Format: WWW-Authenticate: Bearer realm="<realm>", error="<code>", error_description="<message>", scope="<scope>", resource_metadata="<url>"
func (e *errorResponder) Error(w http.ResponseWriter, r *http.Request, err error) {
	ce := e.handler.Handle(r.Context(), err)
	if ce == nil {
		ce = e.handler.Handle(r.Context(), ierrors.ErrInternal)
	}

	if entry := transportcore.LogEntryFromContext(r.Context()); entry != nil {
		entry.ErrorCode = ce.Code
		entry.ErrorID = ce.ID
	}

	if ce.StatusCode == http.StatusUnauthorized || ce.StatusCode == http.StatusForbidden {
		challenge := ierrors.ChallengeFor(ce, e.challenge.Realm, e.challenge.Scope).
			WithResourceMetadata(e.challenge.MetadataURL)
		w.Header().Set(oauth.HeaderWWWAuthenticate, challenge.WWWAuthenticate())
	}

	resp := errorResponse{
		Code:    ce.Code,
		Message: ce.Message,
		Area:    ce.Area,
		ID:      ce.ID,
	}
	writeJSON(w, e.logger, statusOf(ce), resp)
}

// statusOf returns the HTTP status for ce, falling back to 500 for
// values outside the 4xx and 5xx ranges.
func statusOf(ce *ierrors.ClientError) int {
	if ce.StatusCode < http.StatusBadRequest || ce.StatusCode > 599 {
		return http.StatusInternalServerError
	}
	return ce.StatusCode
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set(oauth.HeaderContentType, oauth.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
		// Can't send error response here since headers are already written
	}
}
