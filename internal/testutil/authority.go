package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const signingKeyID = "test-key"

// ErrStaleToken is returned by TokenAuthority.Verify for tokens minted before
// the last rotation.
var ErrStaleToken = errors.New("token was issued before the last rotation")

// TokenAuthority mints RS256 access tokens and verifies them for a fake
// protected backend. Rotate invalidates every token issued so far, which is
// how tests make cached credentials go stale on demand.
type TokenAuthority struct {
	key    *rsa.PrivateKey
	jwks   *keyfunc.JWKS
	issuer string

	mu         sync.Mutex
	generation int
	issued     int
}

// NewTokenAuthority creates an authority with a fresh signing key.
func NewTokenAuthority(tb testing.TB) *TokenAuthority {
	tb.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate signing key: %v", err)
	}

	jwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		signingKeyID: keyfunc.NewGivenRSA(&key.PublicKey, keyfunc.GivenKeyOptions{
			Algorithm: jwt.SigningMethodRS256.Alg(),
		}),
	})

	return &TokenAuthority{
		key:    key,
		jwks:   jwks,
		issuer: "https://auth.example.com",
	}
}

// Issue mints a token for the current generation.
func (a *TokenAuthority) Issue() (string, error) {
	a.mu.Lock()
	a.issued++
	gen := a.generation
	n := a.issued
	a.mu.Unlock()

	claims := jwt.MapClaims{
		"iss": a.issuer,
		"sub": "test-client",
		"gen": gen,
		"jti": fmt.Sprintf("token-%d", n),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = signingKeyID
	return token.SignedString(a.key)
}

// Rotate makes every token issued so far stale.
func (a *TokenAuthority) Rotate() {
	a.mu.Lock()
	a.generation++
	a.mu.Unlock()
}

// Issued returns how many tokens were minted.
func (a *TokenAuthority) Issued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issued
}

// Verify checks the signature against the authority's key set, then the
// issuer, expiry and generation of raw.
func (a *TokenAuthority) Verify(raw string) error {
	token, err := jwt.Parse(raw, a.jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("unexpected claims type")
	}

	gen, ok := claims["gen"].(float64)
	if !ok {
		return errors.New("missing generation claim")
	}

	a.mu.Lock()
	current := a.generation
	a.mu.Unlock()

	if int(gen) != current {
		return ErrStaleToken
	}
	return nil
}

// TokenEndpoint returns a RoundTripFunc serving client-credentials responses
// with freshly minted tokens. Pass it to NewMockOAuth2Server.
func (a *TokenAuthority) TokenEndpoint() RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		token, err := a.Issue()
		if err != nil {
			return nil, err
		}
		body := fmt.Sprintf(`{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, token)
		return JSONResponse(req, http.StatusOK, body), nil
	}
}

// Protect wraps next so that requests without a current bearer token get 401.
func (a *TokenAuthority) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || a.Verify(raw) != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
