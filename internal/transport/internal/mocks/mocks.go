// Package mocks provides mock implementations for testing the transport layer.
package mocks

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/oauth"
)

// Authorizer is a mock implementation of oauth.Authorizer.
type Authorizer struct {
	AuthorizeFunc func(ctx context.Context, token string) (*claims.APIClaims, error)

	mu     sync.Mutex
	tokens []string
}

// Authorize records the token and calls the mock AuthorizeFunc.
func (m *Authorizer) Authorize(ctx context.Context, token string) (*claims.APIClaims, error) {
	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()

	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, token)
	}
	return nil, errors.New("mock authorizer: no AuthorizeFunc")
}

// Tokens returns the tokens passed to Authorize so far.
func (m *Authorizer) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens...)
}

// MetadataService is a mock implementation of oauth.MetadataService.
type MetadataService struct {
	GetMetadataFunc    func(ctx context.Context) (*oauth.ProtectedResourceMetadata, error)
	GetMetadataURLFunc func() string
}

// GetMetadata calls the mock GetMetadataFunc.
func (m *MetadataService) GetMetadata(ctx context.Context) (*oauth.ProtectedResourceMetadata, error) {
	if m.GetMetadataFunc != nil {
		return m.GetMetadataFunc(ctx)
	}
	return &oauth.ProtectedResourceMetadata{}, nil
}

// GetMetadataURL calls the mock GetMetadataURLFunc.
func (m *MetadataService) GetMetadataURL() string {
	if m.GetMetadataURLFunc != nil {
		return m.GetMetadataURLFunc()
	}
	return "https://example.com/.well-known/oauth-protected-resource"
}

// ErrorResponder records rendered errors and writes their status code.
// Client errors keep their status; anything else is written as 500.
type ErrorResponder struct {
	mu   sync.Mutex
	errs []error
}

// Error records err and writes the status.
func (m *ErrorResponder) Error(w http.ResponseWriter, _ *http.Request, err error) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()

	status := http.StatusInternalServerError
	var ce *ierrors.ClientError
	if errors.As(err, &ce) {
		status = ce.StatusCode
	}
	w.WriteHeader(status)
}

// Errors returns the errors rendered so far.
func (m *ErrorResponder) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.errs...)
}

// LastError returns the most recent rendered error, or nil.
func (m *ErrorResponder) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) == 0 {
		return nil
	}
	return m.errs[len(m.errs)-1]
}

// Reset clears all recorded state.
func (m *ErrorResponder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = nil
}
