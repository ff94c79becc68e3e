package companies

import (
	"context"
	"slices"
)

// Repository holds the company data and the per-user company rights.
// It is read-only after construction.
type Repository struct {
	companies     []Company
	transactions  map[int][]Transaction
	userRights    map[string][]int
	defaultRights []int
}

// NewRepository creates a repository over the given data. Users without an
// entry in userRights get defaultRights.
func NewRepository(companies []Company, transactions map[int][]Transaction, userRights map[string][]int, defaultRights []int) *Repository {
	return &Repository{
		companies:     slices.Clone(companies),
		transactions:  transactions,
		userRights:    userRights,
		defaultRights: slices.Clone(defaultRights),
	}
}

// NewSampleRepository creates a repository with the sample data set.
func NewSampleRepository() *Repository {
	companies := []Company{
		{ID: 1, Name: "Company 1", Region: "Europe", TargetUSD: 100000, InvestmentUSD: 40000, NumberOfBackers: 10},
		{ID: 2, Name: "Company 2", Region: "USA", TargetUSD: 75000, InvestmentUSD: 50000, NumberOfBackers: 12},
		{ID: 3, Name: "Company 3", Region: "Asia", TargetUSD: 50000, InvestmentUSD: 5000, NumberOfBackers: 2},
		{ID: 4, Name: "Company 4", Region: "Europe", TargetUSD: 85000, InvestmentUSD: 20000, NumberOfBackers: 5},
	}
	transactions := map[int][]Transaction{
		1: {
			{ID: "1001", InvestorID: "871", AmountUSD: 15000},
			{ID: "1002", InvestorID: "872", AmountUSD: 25000},
		},
		2: {
			{ID: "2001", InvestorID: "873", AmountUSD: 30000},
			{ID: "2002", InvestorID: "871", AmountUSD: 20000},
		},
		3: {
			{ID: "3001", InvestorID: "874", AmountUSD: 5000},
		},
		4: {
			{ID: "4001", InvestorID: "875", AmountUSD: 12000},
			{ID: "4002", InvestorID: "872", AmountUSD: 8000},
		},
	}
	return NewRepository(companies, transactions, nil, []int{1, 2, 4})
}

// List returns every company.
func (r *Repository) List(ctx context.Context) ([]Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(r.companies), nil
}

// Get returns the company with id. It reports false when there is none.
func (r *Repository) Get(ctx context.Context, id int) (Company, bool, error) {
	if err := ctx.Err(); err != nil {
		return Company{}, false, err
	}
	for _, c := range r.companies {
		if c.ID == id {
			return c, true, nil
		}
	}
	return Company{}, false, nil
}

// Transactions returns the transactions of company id.
func (r *Repository) Transactions(ctx context.Context, id int) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(r.transactions[id]), nil
}

// CompanyIDsForUser returns the ids of the companies userID may access.
func (r *Repository) CompanyIDsForUser(ctx context.Context, userID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ids, ok := r.userRights[userID]; ok {
		return slices.Clone(ids), nil
	}
	return slices.Clone(r.defaultRights), nil
}
