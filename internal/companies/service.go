package companies

import (
	"context"
	"strconv"
)

// Service applies the caller's rights to the repository.
type Service struct {
	repo *Repository
}

// NewService creates a service over repo.
func NewService(repo *Repository) *Service {
	if repo == nil {
		panic("repository cannot be nil")
	}
	return &Service{repo: repo}
}

// List returns the companies rights allows, in repository order.
func (s *Service) List(ctx context.Context, rights Rights) ([]Company, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	allowed := make([]Company, 0, len(all))
	for _, c := range all {
		if rights.Allows(c.ID) {
			allowed = append(allowed, c)
		}
	}
	return allowed, nil
}

// Transactions returns a company and its transactions. A company outside
// rights is reported as not found.
func (s *Service) Transactions(ctx context.Context, rights Rights, companyID int) (*CompanyTransactions, error) {
	const op = "Transactions"

	if !rights.Allows(companyID) {
		return nil, NewCompanyNotFoundError(op, companyID)
	}

	company, ok, err := s.repo.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewCompanyNotFoundError(op, companyID)
	}

	transactions, err := s.repo.Transactions(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []Transaction{}
	}

	return &CompanyTransactions{
		ID:           companyID,
		Company:      company,
		Transactions: transactions,
	}, nil
}

// ParseCompanyID parses a company id from a URL path segment.
func ParseCompanyID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, NewInvalidCompanyIDError("ParseCompanyID", raw)
	}
	return id, nil
}
