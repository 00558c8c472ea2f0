package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TokenSource provides bearer tokens. *oauth2client.TokenManager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// OAuth2Transport is an http.RoundTripper that automatically adds OAuth2
// Bearer tokens to outgoing HTTP requests.
//
// The token is looked up on every round trip, so when it sits below a
// RefreshTransport each retried attempt carries the refreshed token.
type OAuth2Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// TokenManager provides OAuth2 access tokens.
	TokenManager TokenSource
}

// RoundTrip implements http.RoundTripper interface.
// The token fetch respects the request context's cancellation and deadline.
func (t *OAuth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.TokenManager == nil {
		closeRequestBody(req)
		return nil, errors.New("httpclient: TokenManager is nil")
	}

	token, err := t.TokenManager.Token(req.Context())
	if err != nil {
		closeRequestBody(req)
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(reqClone)
}

// NewOAuth2Transport creates a new OAuth2Transport with the given token source.
// The base transport defaults to http.DefaultTransport if not specified.
func NewOAuth2Transport(tm TokenSource, base http.RoundTripper) *OAuth2Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &OAuth2Transport{
		Base:         base,
		TokenManager: tm,
	}
}

func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
