// Package metadata builds the RFC 9728 Protected Resource Metadata document
// that tells clients which authorization server issues tokens for this API.
package metadata

import (
	"context"
	"fmt"
	"strings"
)

// WellKnownPath is where the metadata document is served.
const WellKnownPath = "/.well-known/oauth-protected-resource"

// ProtectedResourceMetadata represents the OAuth 2.0 Protected Resource
// Metadata as defined in RFC 9728.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// Service serves a fixed metadata document.
type Service struct {
	document    ProtectedResourceMetadata
	metadataURL string
}

// NewService creates a metadata service.
//
// resource is the identifier tokens are issued for, normally the configured
// audience. baseURL is where this API is reachable; the metadata URL is
// derived from it. issuer is the only authorization server listed.
func NewService(resource, baseURL, issuer string, scopes []string, name string) *Service {
	return &Service{
		document: ProtectedResourceMetadata{
			Resource:               strings.TrimRight(resource, "/"),
			AuthorizationServers:   []string{issuer},
			ScopesSupported:        append([]string(nil), scopes...),
			BearerMethodsSupported: []string{"header"},
			ResourceName:           name,
		},
		metadataURL: strings.TrimRight(baseURL, "/") + WellKnownPath,
	}
}

// GetMetadata returns a copy of the metadata document.
func (s *Service) GetMetadata(_ context.Context) (*ProtectedResourceMetadata, error) {
	doc := s.document
	doc.AuthorizationServers = append([]string(nil), s.document.AuthorizationServers...)
	doc.ScopesSupported = append([]string(nil), s.document.ScopesSupported...)
	doc.BearerMethodsSupported = append([]string(nil), s.document.BearerMethodsSupported...)
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetMetadataURL returns the URL where the document is served.
func (s *Service) GetMetadataURL() string {
	return s.metadataURL
}

// Validate checks the fields RFC 9728 requires.
func Validate(doc *ProtectedResourceMetadata) error {
	if doc.Resource == "" {
		return fmt.Errorf("resource field is required")
	}
	if len(doc.AuthorizationServers) == 0 {
		return fmt.Errorf("authorization_servers field must contain at least one server")
	}
	for _, server := range doc.AuthorizationServers {
		if server == "" {
			return fmt.Errorf("authorization server URL cannot be empty")
		}
	}
	return nil
}
