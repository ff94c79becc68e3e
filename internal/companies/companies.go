// Package companies is the sample business area served by the resource
// server. Users may only see the companies listed in their product rights,
// which are attached to the request as custom claims.
package companies

import (
	"net/http"

	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
)

// Error codes returned by this package.
const (
	CodeCompanyNotFound  = "company_not_found"
	CodeInvalidCompanyID = "invalid_company_id"
)

// Company is a summary of one company.
type Company struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Region          string `json:"region"`
	TargetUSD       int    `json:"target_usd"`
	InvestmentUSD   int    `json:"investment_usd"`
	NumberOfBackers int    `json:"number_of_backers"`
}

// Transaction is one investment in a company.
type Transaction struct {
	ID         string `json:"id"`
	InvestorID string `json:"investor_id"`
	AmountUSD  int    `json:"amount_usd"`
}

// CompanyTransactions is a company with its transactions.
type CompanyTransactions struct {
	ID           int           `json:"id"`
	Company      Company       `json:"company"`
	Transactions []Transaction `json:"transactions"`
}

// Rights is the custom claims section this package reads and writes.
type Rights struct {
	UserCompanyIDs []int `json:"user_company_ids"`
}

// Allows reports whether the rights include companyID.
func (r Rights) Allows(companyID int) bool {
	for _, id := range r.UserCompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

// NewCompanyNotFoundError reports a company that does not exist or that the
// caller has no rights to. Both cases look the same to the caller.
func NewCompanyNotFoundError(op string, companyID int) *ierrors.ClientError {
	ce := ierrors.NewClientError(http.StatusNotFound, CodeCompanyNotFound,
		"The company was not found for the current user")
	ce.Op = op
	return ce.WithContext("company_id", companyID)
}

// NewInvalidCompanyIDError reports a company id that is not a positive integer.
func NewInvalidCompanyIDError(op, raw string) *ierrors.ClientError {
	ce := ierrors.NewClientError(http.StatusBadRequest, CodeInvalidCompanyID,
		"The company id must be a positive integer")
	ce.Op = op
	return ce.WithContext("company_id", raw)
}
