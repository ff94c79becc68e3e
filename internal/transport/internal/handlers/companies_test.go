package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	"github.com/jamesprial/oauth-resource-core/internal/companies"
	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/transport/internal/mocks"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

// newCompaniesMux routes the company endpoints the way the server does.
func newCompaniesMux(responder *mocks.ErrorResponder) *http.ServeMux {
	h := NewCompaniesHandler(companies.NewService(companies.NewSampleRepository()), responder, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/companies", h.List)
	mux.HandleFunc("GET /api/companies/{id}/transactions", h.Transactions)
	return mux
}

func requestWithCustom(t *testing.T, path, custom string) *http.Request {
	t.Helper()
	var raw json.RawMessage
	if custom != "" {
		raw = json.RawMessage(custom)
	}
	c, err := claims.New(claims.TokenClaims{UserID: "u", ClientID: "c", Scopes: []string{"sample-api"}}, nil, raw)
	if err != nil {
		t.Fatalf("claims.New() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	return req.WithContext(transportcore.ContextWithClaims(req.Context(), c))
}

func TestCompaniesHandler_List(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		custom  string
		wantIDs []int
	}{
		{name: "rights filter the list", custom: `{"user_company_ids":[1,4]}`, wantIDs: []int{1, 4}},
		{name: "no custom claims means no companies", custom: "", wantIDs: []int{}},
		{name: "unknown ids are ignored", custom: `{"user_company_ids":[2,99]}`, wantIDs: []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			newCompaniesMux(&mocks.ErrorResponder{}).ServeHTTP(w, requestWithCustom(t, "/api/companies", tt.custom))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
			}
			var got []companies.Company
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if got == nil {
				t.Fatal("list encoded as null, want []")
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d companies, want %v", len(got), tt.wantIDs)
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("companies[%d].ID = %d, want %d", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestCompaniesHandler_Transactions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{name: "allowed company", path: "/api/companies/2/transactions", wantStatus: http.StatusOK},
		{name: "company outside rights", path: "/api/companies/3/transactions", wantStatus: http.StatusNotFound, wantCode: companies.CodeCompanyNotFound},
		{name: "unknown company", path: "/api/companies/99/transactions", wantStatus: http.StatusNotFound, wantCode: companies.CodeCompanyNotFound},
		{name: "non numeric id", path: "/api/companies/abc/transactions", wantStatus: http.StatusBadRequest, wantCode: companies.CodeInvalidCompanyID},
		{name: "zero id", path: "/api/companies/0/transactions", wantStatus: http.StatusBadRequest, wantCode: companies.CodeInvalidCompanyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			responder := &mocks.ErrorResponder{}
			w := httptest.NewRecorder()
			newCompaniesMux(responder).ServeHTTP(w, requestWithCustom(t, tt.path, `{"user_company_ids":[1,2,4]}`))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode == "" {
				var got companies.CompanyTransactions
				if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if got.ID != 2 || got.Company.ID != 2 || got.Transactions == nil {
					t.Errorf("response = %+v, want company 2 with transactions", got)
				}
				return
			}
			var ce *ierrors.ClientError
			if !errors.As(responder.LastError(), &ce) || ce.Code != tt.wantCode {
				t.Errorf("rendered %v, want code %s", responder.LastError(), tt.wantCode)
			}
		})
	}
}

func TestCompaniesHandler_RequiresClaims(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/api/companies", "/api/companies/1/transactions"} {
		w := httptest.NewRecorder()
		newCompaniesMux(&mocks.ErrorResponder{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, w.Code)
		}
	}
}

func TestCompaniesHandler_MalformedRights(t *testing.T) {
	t.Parallel()

	responder := &mocks.ErrorResponder{}
	w := httptest.NewRecorder()
	newCompaniesMux(responder).ServeHTTP(w, requestWithCustom(t, "/api/companies", `{"user_company_ids":"all"}`))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var apiErr *ierrors.APIError
	if !errors.As(responder.LastError(), &apiErr) || apiErr.Area != ierrors.AreaClaims {
		t.Errorf("rendered %v, want a claims APIError", responder.LastError())
	}
}
