package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ErrEmptyToken is returned when the token endpoint answers without an access token.
var ErrEmptyToken = errors.New("oauth2: token endpoint returned an empty access token")

// DefaultExpiryLeeway is how long before expiry a cached token is treated as stale.
const DefaultExpiryLeeway = time.Minute

// TokenManager manages OAuth2 tokens with automatic refresh.
// It uses the client credentials flow and is safe for concurrent access.
//
// TokenManager implements refresh.Handler, so it can be handed directly to
// refresh.New to have stale tokens replaced when the backend rejects them.
type TokenManager struct {
	config       *clientcredentials.Config
	token        *oauth2.Token
	mu           sync.RWMutex
	ctx          context.Context // carries the HTTP client used for token requests
	expiryLeeway time.Duration
	logger       *zap.Logger
}

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithLogger sets a logger for token fetch and refresh events.
// If not set, no logging will occur.
func WithLogger(logger *zap.Logger) Option {
	return func(tm *TokenManager) {
		if logger != nil {
			tm.logger = logger
		}
	}
}

// WithLoggingEnabled enables logging with a production zap logger.
func WithLoggingEnabled() Option {
	return func(tm *TokenManager) {
		if logger, err := zap.NewProduction(); err == nil {
			tm.logger = logger
		}
	}
}

// WithExpiryLeeway changes how early a cached token is considered stale.
func WithExpiryLeeway(d time.Duration) Option {
	return func(tm *TokenManager) {
		if d >= 0 {
			tm.expiryLeeway = d
		}
	}
}

// NewTokenManager creates a new OAuth2 token manager using client credentials flow.
//
// Parameters:
//   - ctx: Base context; its values (e.g. oauth2.HTTPClient) are used for every token request
//   - tokenURL: OAuth2 token endpoint (e.g., "https://auth.example.com/oauth/v2/token")
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - scopes: Space-separated list of OAuth2 scopes (e.g., "openid profile email")
//   - opts: Optional configuration options
func NewTokenManager(ctx context.Context, tokenURL, clientID, clientSecret, scopes string, opts ...Option) *TokenManager {
	if ctx == nil {
		ctx = context.Background()
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	tm := &TokenManager{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       strings.Fields(scopes),
		},
		ctx:          ctx,
		expiryLeeway: DefaultExpiryLeeway,
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(tm)
	}

	return tm
}

// Token returns a valid access token, fetching one if the cache is empty or stale.
// It respects ctx's cancellation and deadline and uses double-checked locking.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	tm.mu.RLock()
	if tm.tokenValid() {
		token := tm.token.AccessToken
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Another goroutine may have fetched while we waited for the write lock.
	if tm.tokenValid() {
		return tm.token.AccessToken, nil
	}

	if err := tm.fetchLocked(ctx); err != nil {
		return "", err
	}

	return tm.token.AccessToken, nil
}

// Refresh discards the cached token and fetches a new one, even if the cached
// token has not expired yet. It is meant to be called after the backend has
// rejected the current token.
func (tm *TokenManager) Refresh(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.token = nil
	return tm.fetchLocked(ctx)
}

// Invalidate drops the cached token so the next Token call fetches a new one.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = nil
	tm.mu.Unlock()
}

// fetchLocked requests a new token. tm.mu must be held for writing.
func (tm *TokenManager) fetchLocked(ctx context.Context) error {
	if ctx.Value(oauth2.HTTPClient) == nil {
		if client := tm.ctx.Value(oauth2.HTTPClient); client != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
		}
	}

	token, err := tm.config.Token(ctx)
	if err != nil {
		tm.logger.Warn("oauth2: token request failed", zap.Error(err))
		return fmt.Errorf("oauth2: failed to fetch token: %w", err)
	}
	if token.AccessToken == "" {
		return ErrEmptyToken
	}

	tm.token = token
	tm.logger.Info("oauth2: obtained new access token", zap.Time("expires", token.Expiry))

	return nil
}

// tokenValid reports whether the cached token is still usable with a small safety window.
func (tm *TokenManager) tokenValid() bool {
	if tm.token == nil {
		return false
	}
	if !tm.token.Expiry.IsZero() && time.Until(tm.token.Expiry) <= tm.expiryLeeway {
		return false
	}
	return tm.token.Valid()
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
//
// The token is fetched per call, so a call retried after a refresh carries the
// new token.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(tokenManager.UnaryClientInterceptor()),
//	)
func (tm *TokenManager) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		token, err := tm.Token(ctx)
		if err != nil {
			return fmt.Errorf("oauth2: failed to get token: %w", err)
		}

		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
func (tm *TokenManager) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		token, err := tm.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth2: failed to get token: %w", err)
		}

		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

		return streamer(ctx, desc, cc, method, opts...)
	}
}
