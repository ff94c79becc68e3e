package oauth

import (
	"errors"
)

// Configuration errors returned by the constructors in this package.
// Request-time failures use the oautherr constructors instead.
var (
	// ErrUnknownAuthorizerKind indicates an unsupported provider selection.
	ErrUnknownAuthorizerKind = errors.New("unknown authorizer kind")

	// ErrInvalidConfig indicates a Config missing a required value.
	ErrInvalidConfig = errors.New("invalid oauth configuration")
)
