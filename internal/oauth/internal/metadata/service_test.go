package metadata

import (
	"context"
	"reflect"
	"testing"
)

func TestService_GetMetadata(t *testing.T) {
	t.Parallel()

	s := NewService("api://sample/", "https://api.example.com/", "https://issuer.example", []string{"sample-api"}, "Sample API")

	got, err := s.GetMetadata(context.Background())
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}

	want := &ProtectedResourceMetadata{
		Resource:               "api://sample",
		AuthorizationServers:   []string{"https://issuer.example"},
		ScopesSupported:        []string{"sample-api"},
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "Sample API",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetMetadata() = %+v, want %+v", got, want)
	}

	got.AuthorizationServers[0] = "mutated"
	again, _ := s.GetMetadata(context.Background())
	if again.AuthorizationServers[0] != "https://issuer.example" {
		t.Error("GetMetadata() should return a copy")
	}

	if u := s.GetMetadataURL(); u != "https://api.example.com/.well-known/oauth-protected-resource" {
		t.Errorf("GetMetadataURL() = %q", u)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     ProtectedResourceMetadata
		wantErr bool
	}{
		{name: "valid", doc: ProtectedResourceMetadata{Resource: "r", AuthorizationServers: []string{"https://as"}}},
		{name: "missing resource", doc: ProtectedResourceMetadata{AuthorizationServers: []string{"https://as"}}, wantErr: true},
		{name: "no servers", doc: ProtectedResourceMetadata{Resource: "r"}, wantErr: true},
		{name: "empty server", doc: ProtectedResourceMetadata{Resource: "r", AuthorizationServers: []string{""}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := Validate(&tt.doc); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_MissingIssuer(t *testing.T) {
	t.Parallel()

	s := NewService("api://sample", "https://api.example.com", "", nil, "")
	if _, err := s.GetMetadata(context.Background()); err == nil {
		t.Error("GetMetadata() without issuer should fail")
	}
}
