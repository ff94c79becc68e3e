package companies

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
)

// ClaimsProvider adds the user's company rights as the custom claims section.
type ClaimsProvider struct {
	repo *Repository
}

// NewClaimsProvider creates a provider that reads rights from repo.
func NewClaimsProvider(repo *Repository) *ClaimsProvider {
	if repo == nil {
		panic("repository cannot be nil")
	}
	return &ClaimsProvider{repo: repo}
}

// AddCustomClaims returns {"user_company_ids": [...]} for the token's user.
// The ids are sorted and free of duplicates.
func (p *ClaimsProvider) AddCustomClaims(ctx context.Context, _ string, token claims.TokenClaims) (*claims.UserInfoClaims, json.RawMessage, error) {
	ids, err := p.repo.CompanyIDsForUser(ctx, token.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("look up company rights: %w", err)
	}

	slices.Sort(ids)
	custom, err := json.Marshal(Rights{UserCompanyIDs: slices.Compact(ids)})
	if err != nil {
		return nil, nil, fmt.Errorf("encode company rights: %w", err)
	}
	return nil, custom, nil
}

// RightsFromClaims reads the company rights from the custom claims section.
// Claims without a custom section grant no companies.
func RightsFromClaims(c *claims.APIClaims) (Rights, error) {
	var rights Rights
	if _, err := c.DecodeCustom(&rights); err != nil {
		return Rights{}, err
	}
	return rights, nil
}
