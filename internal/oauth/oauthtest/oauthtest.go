// Package oauthtest provides an authorization server double for tests:
// signing keys, signed access tokens and a JWKS endpoint.
package oauthtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	pkgoauth "github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

// Key is a signing key pair with its kid and algorithm.
type Key struct {
	KeyID     string
	Algorithm string
	Private   crypto.Signer

	// OmitAlgorithm publishes the JWK without an alg member.
	OmitAlgorithm bool
}

// NewRSAKey generates an RSA key for RS256.
func NewRSAKey(t testing.TB, kid string) *Key {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &Key{KeyID: kid, Algorithm: pkgoauth.AlgorithmRS256, Private: priv}
}

// NewECKey generates a P-256 key for ES256.
func NewECKey(t testing.TB, kid string) *Key {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	return &Key{KeyID: kid, Algorithm: pkgoauth.AlgorithmES256, Private: priv}
}

// Public returns the public half of the key.
func (k *Key) Public() crypto.PublicKey {
	return k.Private.Public()
}

// Sign returns a compact JWT over claims with the key's kid in the header.
func (k *Key) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return k.SignWithHeader(t, claims, map[string]any{pkgoauth.ClaimKeyID: k.KeyID})
}

// SignWithHeader signs claims with extra header fields. A nil value removes
// the field from the header.
func (k *Key) SignWithHeader(t testing.TB, claims jwt.MapClaims, header map[string]any) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.GetSigningMethod(k.Algorithm), claims)
	for name, value := range header {
		if value == nil {
			delete(token.Header, name)
			continue
		}
		token.Header[name] = value
	}
	signed, err := token.SignedString(k.Private)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// JWK returns the public key as a JWK.
func (k *Key) JWK(t testing.TB) jwk.Key {
	t.Helper()
	key, err := jwk.Import(k.Public())
	if err != nil {
		t.Fatalf("import jwk: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, k.KeyID); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if !k.OmitAlgorithm {
		if err := key.Set(jwk.AlgorithmKey, k.Algorithm); err != nil {
			t.Fatalf("set alg: %v", err)
		}
	}
	return key
}

// KeySet encodes keys as a JWKS document.
func KeySet(t testing.TB, keys ...*Key) []byte {
	t.Helper()
	set := jwk.NewSet()
	for _, k := range keys {
		if err := set.AddKey(k.JWK(t)); err != nil {
			t.Fatalf("add key: %v", err)
		}
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return body
}

// JWKSServer serves a JWKS document and counts downloads.
type JWKSServer struct {
	*httptest.Server

	requests atomic.Int64

	mu     sync.Mutex
	body   []byte
	status int
	gate   chan struct{}
}

// NewJWKSServer starts a server publishing keys. It is closed when the test ends.
func NewJWKSServer(t testing.TB, keys ...*Key) *JWKSServer {
	t.Helper()
	s := &JWKSServer{body: KeySet(t, keys...), status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL of the JWKS document.
func (s *JWKSServer) JWKSURL() string {
	return s.URL + "/.well-known/jwks.json"
}

// Requests returns the number of downloads served so far.
func (s *JWKSServer) Requests() int {
	return int(s.requests.Load())
}

// SetKeys replaces the published keys.
func (s *JWKSServer) SetKeys(t testing.TB, keys ...*Key) {
	t.Helper()
	s.SetBody(KeySet(t, keys...))
}

// SetBody replaces the raw response body.
func (s *JWKSServer) SetBody(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

// SetStatus makes the server answer with status.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hold makes requests block until the returned release function is called.
func (s *JWKSServer) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *JWKSServer) serve(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	body, status := s.body, s.status
	s.mu.Unlock()

	w.Header().Set(pkgoauth.HeaderContentType, pkgoauth.ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
