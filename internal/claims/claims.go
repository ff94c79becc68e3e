// Package claims defines the claims model passed to business logic and the
// capability through which hosts add product-specific claims.
package claims

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

var (
	// ErrIncompleteClaims is returned when the token section cannot be populated.
	ErrIncompleteClaims = errors.New("incomplete token claims")

	// ErrInvalidCustomClaims is returned when the custom section is not valid JSON.
	ErrInvalidCustomClaims = errors.New("invalid custom claims")
)

// AccessToken is the decoded payload of a validated JWT access token.
// It lives only for the duration of one authorization and is never persisted.
type AccessToken struct {
	Issuer    string
	Audience  []string
	ExpiresAt int64
	Subject   string
	ClientID  string
	Scope     string
}

// Scopes returns the space-delimited scope claim as a slice.
func (t *AccessToken) Scopes() []string {
	if t == nil {
		return nil
	}
	return oauth.ParseScope(t.Scope)
}

// TokenClaims returns the token section derived from the access token.
func (t *AccessToken) TokenClaims() TokenClaims {
	return TokenClaims{
		UserID:    t.Subject,
		ClientID:  t.ClientID,
		Scopes:    t.Scopes(),
		ExpiresAt: t.ExpiresAt,
	}
}

// TokenClaims is the section of APIClaims taken from the access token itself.
type TokenClaims struct {
	UserID    string   `json:"user_id"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at"`
}

// HasScope returns true if the token has the specified scope.
func (c *TokenClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HasAnyScope returns true if the token has any of the specified scopes.
func (c *TokenClaims) HasAnyScope(scopes ...string) bool {
	if c == nil || len(scopes) == 0 {
		return false
	}
	for _, required := range scopes {
		if c.HasScope(required) {
			return true
		}
	}
	return false
}

// HasAllScopes returns true if the token has all specified scopes.
func (c *TokenClaims) HasAllScopes(scopes ...string) bool {
	if c == nil {
		return len(scopes) == 0
	}
	for _, required := range scopes {
		if !c.HasScope(required) {
			return false
		}
	}
	return true
}

// clone returns a copy that shares no memory with c.
func (c TokenClaims) clone() TokenClaims {
	c.Scopes = append([]string(nil), c.Scopes...)
	return c
}

// UserInfoClaims is the user-profile section, present only when sourced from
// a userinfo or identity lookup.
type UserInfoClaims struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}

func (u *UserInfoClaims) empty() bool {
	return u == nil || (u.GivenName == "" && u.FamilyName == "" && u.Email == "")
}

// APIClaims is the authorization object attached to a request.
// Values are built once by New and must not be modified afterwards.
type APIClaims struct {
	Token    TokenClaims     `json:"token"`
	UserInfo *UserInfoClaims `json:"user_info,omitempty"`

	// Custom holds the provider-specific section as a JSON document.
	// The core never interprets it.
	Custom json.RawMessage `json:"custom,omitempty"`
}

// New composes APIClaims from its three sections in one step.
// The token section must carry at least one scope; duplicate scopes are
// dropped. An empty user-profile section is treated as absent and the custom
// section, when present, must be a valid JSON document.
func New(token TokenClaims, userInfo *UserInfoClaims, custom json.RawMessage) (*APIClaims, error) {
	scopes := dedupe(token.Scopes)
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: no scopes", ErrIncompleteClaims)
	}

	c := &APIClaims{
		Token: TokenClaims{
			UserID:    token.UserID,
			ClientID:  token.ClientID,
			Scopes:    scopes,
			ExpiresAt: token.ExpiresAt,
		},
	}

	if !userInfo.empty() {
		u := *userInfo
		c.UserInfo = &u
	}

	trimmed := bytes.TrimSpace(custom)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		// Compact so a fresh value and its cached copy carry the same bytes.
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return nil, ErrInvalidCustomClaims
		}
		c.Custom = json.RawMessage(compact.Bytes())
	}

	return c, nil
}

// UserID returns the subject of the access token.
func (c *APIClaims) UserID() string {
	return c.Token.UserID
}

// ClientID returns the client the access token was issued to.
func (c *APIClaims) ClientID() string {
	return c.Token.ClientID
}

// Scopes returns a copy of the token's scopes.
func (c *APIClaims) Scopes() []string {
	return append([]string(nil), c.Token.Scopes...)
}

// HasScope returns true if the token has the specified scope.
func (c *APIClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	return c.Token.HasScope(scope)
}

// DecodeCustom unmarshals the custom section into v.
// It reports false when there is no custom section.
func (c *APIClaims) DecodeCustom(v any) (bool, error) {
	if c == nil || len(c.Custom) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(c.Custom, v); err != nil {
		return true, fmt.Errorf("decode custom claims: %w", err)
	}
	return true, nil
}

// dedupe returns the non-empty values of in, in order, without duplicates.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
