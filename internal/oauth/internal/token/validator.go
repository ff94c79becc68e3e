// Package token validates JWT access tokens issued by the configured
// authorization server.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/jwks"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/oautherr"
	pkgoauth "github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

// KeyResolver returns the signing key for a kid.
// This avoids importing the parent oauth package.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (*jwks.SigningKey, error)
}

// Config holds the values every token must match.
type Config struct {
	Issuer        string
	Audience      string
	Algorithm     string
	RequiredScope string
}

// Validator validates access tokens against one issuer and key set.
type Validator struct {
	keys   KeyResolver
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the time source used for the expiry check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewValidator creates a new token validator.
func NewValidator(keys KeyResolver, cfg Config, opts ...Option) *Validator {
	v := &Validator{
		keys:   keys,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateToken verifies the signature of tokenString and checks its claims.
// Checks run in a fixed order and stop at the first failure: issuer,
// audience, expiry, scope presence, required scope.
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*claims.AccessToken, error) {
	const op = "ValidateToken"

	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, oautherr.NewMalformedTokenError(op, err)
	}

	kid, _ := unverified.Header[pkgoauth.ClaimKeyID].(string)
	if kid == "" {
		return nil, oautherr.NewMissingKidError(op)
	}

	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		return nil, err
	}
	if key.Algorithm != v.cfg.Algorithm {
		return nil, oautherr.NewUnsupportedAlgorithmError(op, key.Algorithm)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.cfg.Algorithm}),
		jwt.WithoutClaimsValidation(),
	)
	verified, err := parser.Parse(tokenString, func(*jwt.Token) (any, error) {
		return key.PublicKey, nil
	})
	if err != nil {
		v.logger.DebugContext(ctx, "token signature rejected", "kid", kid, "error", err)
		return nil, oautherr.NewInvalidSignatureError(op, err)
	}

	payload, ok := verified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, oautherr.NewInvalidSignatureError(op, fmt.Errorf("unexpected claims type %T", verified.Claims))
	}

	at, err := decode(payload)
	if err != nil {
		return nil, err
	}

	if err := v.checkClaims(at); err != nil {
		return nil, err
	}
	return at, nil
}

func (v *Validator) checkClaims(at *claims.AccessToken) error {
	const op = "checkClaims"

	if at.Issuer != v.cfg.Issuer {
		return oautherr.NewInvalidIssuerError(op, v.cfg.Issuer, at.Issuer)
	}

	if v.cfg.Audience != "" && !contains(at.Audience, v.cfg.Audience) {
		return oautherr.NewInvalidAudienceError(op, v.cfg.Audience, at.Audience)
	}

	if !time.Unix(at.ExpiresAt, 0).After(v.now()) {
		return oautherr.NewTokenExpiredError(op, at.ExpiresAt)
	}

	scopes := at.Scopes()
	if len(scopes) == 0 {
		return oautherr.NewMissingClaimError(op, pkgoauth.ClaimScope)
	}

	if v.cfg.RequiredScope != "" && !contains(scopes, v.cfg.RequiredScope) {
		return oautherr.NewInsufficientScopeError(op, v.cfg.RequiredScope)
	}

	return nil
}

// claimField maps one or more wire names onto an AccessToken field.
// The first name present in the payload wins.
type claimField struct {
	names  []string
	decode func(value any, at *claims.AccessToken) error
}

var accessTokenFields = []claimField{
	{
		names: []string{pkgoauth.ClaimIssuer},
		decode: func(value any, at *claims.AccessToken) (err error) {
			at.Issuer, err = stringClaim(value)
			return err
		},
	},
	{
		names: []string{pkgoauth.ClaimAudience},
		decode: func(value any, at *claims.AccessToken) (err error) {
			at.Audience, err = stringListClaim(value)
			return err
		},
	},
	{
		names: []string{pkgoauth.ClaimExpiration},
		decode: func(value any, at *claims.AccessToken) (err error) {
			at.ExpiresAt, err = numericClaim(value)
			return err
		},
	},
	{
		names: []string{pkgoauth.ClaimSubject},
		decode: func(value any, at *claims.AccessToken) (err error) {
			at.Subject, err = stringClaim(value)
			return err
		},
	},
	{
		names: []string{pkgoauth.ClaimClientID, "cid", "azp"},
		decode: func(value any, at *claims.AccessToken) (err error) {
			at.ClientID, err = stringClaim(value)
			return err
		},
	},
	{
		names: []string{pkgoauth.ClaimScope, "scp"},
		decode: func(value any, at *claims.AccessToken) error {
			scopes, err := stringListClaim(value)
			at.Scope = strings.Join(scopes, " ")
			return err
		},
	},
}

// decode builds an AccessToken from a verified payload.
func decode(payload jwt.MapClaims) (*claims.AccessToken, error) {
	at := &claims.AccessToken{}
	for _, field := range accessTokenFields {
		for _, name := range field.names {
			value, ok := payload[name]
			if !ok || value == nil {
				continue
			}
			if err := field.decode(value, at); err != nil {
				return nil, oautherr.NewInvalidClaimError("decode", name, err)
			}
			break
		}
	}
	return at, nil
}

func stringClaim(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

// stringListClaim accepts a single string or an array of strings.
func stringListClaim(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string array element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or array, got %T", value)
	}
}

func numericClaim(value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("expected finite number")
		}
		if v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("number %g out of range", v)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
