// Package authz runs the authorization pipeline: validate the bearer token,
// then resolve the claims for it, failing closed at every step.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/metrics"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/claimscache"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/oautherr"
)

// State is a step of one authorization.
type State int

const (
	Unauthenticated State = iota
	TokenValidated
	ClaimsResolved
	Attached
	Rejected
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case TokenValidated:
		return "token_validated"
	case ClaimsResolved:
		return "claims_resolved"
	case Attached:
		return "attached"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome label values.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
)

// TokenValidator validates a raw access token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*claims.AccessToken, error)
}

// claimsFunc builds the claims for a validated token.
type claimsFunc func(ctx context.Context, accessToken string, token *claims.AccessToken) (*claims.APIClaims, error)

// Authorizer turns a bearer token into claims or a normalized error.
type Authorizer struct {
	kind      string
	validator TokenValidator
	claims    claimsFunc
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) {
		a.metrics = m
	}
}

// NewStandard creates an authorizer that calls provider on every request.
func NewStandard(validator TokenValidator, provider claims.CustomClaimsProvider, opts ...Option) *Authorizer {
	return newAuthorizer("standard", validator, func(ctx context.Context, accessToken string, token *claims.AccessToken) (*claims.APIClaims, error) {
		return claims.Resolve(ctx, provider, accessToken, token)
	}, opts)
}

// NewCaching creates an authorizer that serves claims from cache and calls
// the provider only on a miss.
func NewCaching(validator TokenValidator, cache *claimscache.Cache, opts ...Option) *Authorizer {
	return newAuthorizer("caching", validator, cache.GetOrCreate, opts)
}

func newAuthorizer(kind string, validator TokenValidator, fn claimsFunc, opts []Option) *Authorizer {
	a := &Authorizer{
		kind:      kind,
		validator: validator,
		claims:    fn,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize validates accessToken and returns its claims. The returned error
// is always a *errors.ClientError or a *errors.APIError, and claims are
// never returned together with an error.
func (a *Authorizer) Authorize(ctx context.Context, accessToken string) (result *claims.APIClaims, err error) {
	state := Unauthenticated

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = ierrors.NewAPIError(ierrors.CodeServerError, ierrors.AreaException,
				"Unexpected failure during authorization", fmt.Errorf("panic: %v", r)).
				WithOp("Authorize")
		}
		if err != nil {
			result = nil
			err = ierrors.Normalize(err)
			a.transition(ctx, state, Rejected, "reason", reasonOf(err))
			a.metrics.Authorized(a.kind, OutcomeRejected, reasonOf(err))
			return
		}
		a.metrics.Authorized(a.kind, OutcomeAllowed, "")
	}()

	if accessToken == "" {
		return nil, oautherr.NewMissingTokenError("Authorize")
	}

	token, err := a.validator.ValidateToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	state = a.transition(ctx, state, TokenValidated, "client_id", token.ClientID)

	resolved, err := a.claims(ctx, accessToken, token)
	if err != nil {
		if errors.Is(err, claims.ErrIncompleteClaims) || errors.Is(err, claims.ErrInvalidCustomClaims) {
			err = oautherr.NewClaimsError("Authorize", err)
		}
		return nil, err
	}
	a.transition(ctx, state, ClaimsResolved, "user_id", resolved.UserID())

	return resolved, nil
}

func (a *Authorizer) transition(ctx context.Context, from, to State, args ...any) State {
	a.logger.DebugContext(ctx, "authorization state changed",
		append([]any{"authorizer", a.kind, "from", from.String(), "to", to.String()}, args...)...)
	return to
}

// reasonOf returns the label describing why err rejected a request.
func reasonOf(err error) string {
	if reason := oautherr.ReasonOf(err); reason != "" {
		return reason
	}
	var apiErr *ierrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var ce *ierrors.ClientError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ierrors.CodeServerError
}
