package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jamesprial/oauth-resource-core/internal/companies"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/oautherr"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

// CompanyIDPathValue is the wildcard name of the company id in the
// transactions route pattern.
const CompanyIDPathValue = "id"

// CompaniesHandler serves the company endpoints for authorized callers.
// Both routes must sit behind the authentication middleware.
type CompaniesHandler struct {
	service   *companies.Service
	responder transportcore.ErrorResponder
	logger    *slog.Logger
}

// NewCompaniesHandler creates the company endpoints.
// If logger is nil, it uses the default slog logger.
func NewCompaniesHandler(service *companies.Service, responder transportcore.ErrorResponder, logger *slog.Logger) *CompaniesHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if responder == nil {
		panic("responder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompaniesHandler{service: service, responder: responder, logger: logger}
}

// List handles GET /api/companies.
func (h *CompaniesHandler) List(w http.ResponseWriter, r *http.Request) {
	rights, ok := h.rights(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), rights)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, list)
}

// Transactions handles GET /api/companies/{id}/transactions.
func (h *CompaniesHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, err := companies.ParseCompanyID(r.PathValue(CompanyIDPathValue))
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	rights, ok := h.rights(w, r)
	if !ok {
		return
	}

	result, err := h.service.Transactions(r.Context(), rights, id)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

// rights reads the caller's company rights from the attached claims and
// renders an error when they are unusable.
func (h *CompaniesHandler) rights(w http.ResponseWriter, r *http.Request) (companies.Rights, bool) {
	c, ok := transportcore.ClaimsFromContext(r.Context())
	if !ok {
		h.responder.Error(w, r, oautherr.NewMissingTokenError("companies"))
		return companies.Rights{}, false
	}

	rights, err := companies.RightsFromClaims(c)
	if err != nil {
		h.responder.Error(w, r, oautherr.NewClaimsError("companies", err))
		return companies.Rights{}, false
	}
	return rights, true
}
