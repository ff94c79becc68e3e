package claims

import (
	"context"
	"encoding/json"
	"fmt"
)

// CustomClaimsProvider adds the optional sections of APIClaims for a
// validated token. Implementations may call userinfo endpoints or internal
// entitlement services and must honor ctx cancellation.
type CustomClaimsProvider interface {
	AddCustomClaims(ctx context.Context, accessToken string, token TokenClaims) (*UserInfoClaims, json.RawMessage, error)
}

// ProviderFunc adapts a function to CustomClaimsProvider.
type ProviderFunc func(ctx context.Context, accessToken string, token TokenClaims) (*UserInfoClaims, json.RawMessage, error)

// AddCustomClaims calls f.
func (f ProviderFunc) AddCustomClaims(ctx context.Context, accessToken string, token TokenClaims) (*UserInfoClaims, json.RawMessage, error) {
	return f(ctx, accessToken, token)
}

// NoCustomClaims is the default provider. It adds nothing.
type NoCustomClaims struct{}

// AddCustomClaims returns empty sections.
func (NoCustomClaims) AddCustomClaims(context.Context, string, TokenClaims) (*UserInfoClaims, json.RawMessage, error) {
	return nil, nil, nil
}

// Chain runs providers in order and merges their sections. A later provider
// replaces a section only when it returns a non-empty one. The first error
// stops the chain.
func Chain(providers ...CustomClaimsProvider) CustomClaimsProvider {
	return ProviderFunc(func(ctx context.Context, accessToken string, token TokenClaims) (*UserInfoClaims, json.RawMessage, error) {
		var (
			userInfo *UserInfoClaims
			custom   json.RawMessage
		)
		for _, p := range providers {
			if p == nil {
				continue
			}
			u, c, err := p.AddCustomClaims(ctx, accessToken, token.clone())
			if err != nil {
				return nil, nil, err
			}
			if !u.empty() {
				userInfo = u
			}
			if len(c) > 0 {
				custom = c
			}
		}
		return userInfo, custom, nil
	})
}

// Resolve builds APIClaims for a validated access token, asking provider for
// the user-profile and custom sections.
func Resolve(ctx context.Context, provider CustomClaimsProvider, accessToken string, token *AccessToken) (*APIClaims, error) {
	if token == nil {
		return nil, fmt.Errorf("%w: no access token", ErrIncompleteClaims)
	}
	if provider == nil {
		provider = NoCustomClaims{}
	}

	base := token.TokenClaims()
	userInfo, custom, err := provider.AddCustomClaims(ctx, accessToken, base.clone())
	if err != nil {
		return nil, err
	}
	return New(base, userInfo, custom)
}
