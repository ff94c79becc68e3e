package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jamesprial/oauth-resource-core/internal/oauth"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

// metadataHandler serves OAuth 2.0 Protected Resource Metadata per RFC 9728.
type metadataHandler struct {
	service   oauth.MetadataService
	responder transportcore.ErrorResponder
	logger    *slog.Logger
}

// NewMetadataHandler creates a handler for the /.well-known/oauth-protected-resource endpoint.
// It serves Protected Resource Metadata to aid client discovery per RFC 9728.
func NewMetadataHandler(service oauth.MetadataService, responder transportcore.ErrorResponder, logger *slog.Logger) http.Handler {
	if service == nil {
		panic("service cannot be nil")
	}
	if responder == nil {
		panic("responder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &metadataHandler{
		service:   service,
		responder: responder,
		logger:    logger,
	}
}

// ServeHTTP handles GET requests for protected resource metadata.
// Only GET method is allowed per RFC 9728.
func (h *metadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	metadata, err := h.service.GetMetadata(r.Context())
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, metadata)
}
