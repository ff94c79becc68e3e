package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/jamesprial/oauth-resource-core/internal/oauth/oautherr"
	pkgoauth "github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

// maxUserInfoBody bounds how much of a userinfo response is read.
const maxUserInfoBody = 1 << 20

// userInfoResponse is the subset of the OpenID Connect userinfo response we use.
type userInfoResponse struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}

// UserInfoProvider fills the user-profile section by calling the
// authorization server's userinfo endpoint with the caller's access token.
type UserInfoProvider struct {
	endpoint   string
	httpClient *http.Client
}

// NewUserInfoProvider creates a provider for the given userinfo endpoint.
// httpClient supplies the base transport, proxy and timeout; nil means
// http.DefaultClient.
func NewUserInfoProvider(endpoint string, httpClient *http.Client) *UserInfoProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &UserInfoProvider{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

// AddCustomClaims returns the user-profile section. It never sets a custom section.
func (p *UserInfoProvider) AddCustomClaims(ctx context.Context, accessToken string, _ TokenClaims) (*UserInfoClaims, json.RawMessage, error) {
	const op = "UserInfo"

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   pkgoauth.BearerToken,
	}))
	client.Timeout = p.httpClient.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, nil, oautherr.NewUserInfoError(op, p.endpoint, 0, err)
	}
	req.Header.Set("Accept", pkgoauth.ContentTypeJSON)

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, oautherr.NewUserInfoError(op, p.endpoint, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBody))
	if err != nil {
		return nil, nil, oautherr.NewUserInfoError(op, p.endpoint, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, oautherr.NewUserInfoError(op, p.endpoint, resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithDetails(string(body))
	}

	var info userInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, nil, oautherr.NewUserInfoError(op, p.endpoint, resp.StatusCode, err)
	}

	return &UserInfoClaims{
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Email:      info.Email,
	}, nil, nil
}
