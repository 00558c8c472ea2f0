package grpcclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/AmmannChristian/go-refreshx/oauth2client"
	"github.com/AmmannChristian/go-refreshx/refresh"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Builder provides a fluent interface for constructing gRPC client connections
// with optional OAuth2 authentication, coordinated credential refresh and
// TLS/mTLS support.
type Builder struct {
	address string

	// OAuth2 configuration
	oauth2Enabled      bool
	oauth2TokenURL     string
	oauth2ClientID     string
	oauth2ClientSecret string
	oauth2Scopes       string
	tokenManager       *oauth2client.TokenManager

	// Refresh configuration
	coordinator *refresh.Coordinator
	autoRefresh bool
	refreshOpts []refresh.Option
	logger      *zap.Logger

	// TLS configuration
	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsServerName string

	// Additional dial options
	dialOpts []grpc.DialOption
}

// NewBuilder creates a new gRPC client builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAddress sets the server address (e.g., "server.example.com:9090").
func (b *Builder) WithAddress(address string) *Builder {
	b.address = address
	return b
}

// WithOAuth2 enables OAuth2 client credentials authentication.
//
// Parameters:
//   - tokenURL: OAuth2 token endpoint (e.g., "https://auth.example.com/oauth/v2/token")
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - scopes: Space-separated list of OAuth2 scopes (e.g., "openid profile email")
func (b *Builder) WithOAuth2(tokenURL, clientID, clientSecret, scopes string) *Builder {
	b.oauth2Enabled = true
	b.oauth2TokenURL = tokenURL
	b.oauth2ClientID = clientID
	b.oauth2ClientSecret = clientSecret
	b.oauth2Scopes = scopes
	return b
}

// WithTokenManager uses an existing token manager instead of creating one
// from WithOAuth2 settings. Sharing a token manager between clients of the
// same backend avoids fetching one token per client.
func (b *Builder) WithTokenManager(tm *oauth2client.TokenManager) *Builder {
	b.tokenManager = tm
	return b
}

// WithRefreshCoordinator resends unary calls through c when the backend
// rejects the current token.
func (b *Builder) WithRefreshCoordinator(c *refresh.Coordinator) *Builder {
	b.coordinator = c
	return b
}

// WithAutoRefresh creates a coordinator at Build time around the token
// manager. It requires WithOAuth2 or WithTokenManager and is ignored when
// WithRefreshCoordinator is also set.
func (b *Builder) WithAutoRefresh(opts ...refresh.Option) *Builder {
	b.autoRefresh = true
	b.refreshOpts = append(b.refreshOpts, opts...)
	return b
}

// WithLogger sets the logger for the refresh interceptor and the
// coordinator created by WithAutoRefresh.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (required)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
//   - serverName: Expected server name for TLS verification (optional, overrides SNI)
func (b *Builder) WithTLS(caFile, certFile, keyFile, serverName string) *Builder {
	b.tlsEnabled = true
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	b.tlsServerName = serverName
	return b
}

// WithDialOptions adds custom gRPC dial options.
// These options are applied after OAuth2 and TLS options.
func (b *Builder) WithDialOptions(opts ...grpc.DialOption) *Builder {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// Build constructs the gRPC client connection with the configured options.
//
// Returns:
//   - *grpc.ClientConn: Established gRPC connection
//   - error: Error if connection fails
func (b *Builder) Build(ctx context.Context) (*grpc.ClientConn, error) {
	if b.address == "" {
		return nil, errors.New("grpcclient: server address is required")
	}

	var opts []grpc.DialOption

	tm, err := b.resolveTokenManager(ctx)
	if err != nil {
		return nil, err
	}

	coordinator, err := b.buildCoordinator(tm)
	if err != nil {
		return nil, err
	}

	// Refresh runs outside token injection so each attempt carries the current token.
	var unary []grpc.UnaryClientInterceptor
	if coordinator != nil {
		unary = append(unary, RefreshUnaryInterceptor(coordinator, b.logger))
	}
	if tm != nil {
		unary = append(unary, tm.UnaryClientInterceptor())
		opts = append(opts, grpc.WithChainStreamInterceptor(tm.StreamClientInterceptor()))
	}
	if len(unary) > 0 {
		opts = append(opts, grpc.WithChainUnaryInterceptor(unary...))
	}

	// Add TLS credentials if enabled
	if b.tlsEnabled {
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("grpcclient: TLS config failed: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		// Default to TLS with system roots to avoid accidental plaintext connections.
		// Set MinVersion to TLS 1.2 for secure defaults.
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})))
	}

	// Add custom dial options
	opts = append(opts, b.dialOpts...)

	// Create connection
	conn, err := grpc.NewClient(b.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: dial failed: %w", err)
	}

	return conn, nil
}

// resolveTokenManager returns the configured token manager, creating one
// from the WithOAuth2 settings when needed.
func (b *Builder) resolveTokenManager(ctx context.Context) (*oauth2client.TokenManager, error) {
	if b.tokenManager != nil {
		return b.tokenManager, nil
	}
	if !b.oauth2Enabled {
		return nil, nil
	}
	if err := b.validateOAuth2Config(); err != nil {
		return nil, err
	}

	var tmOpts []oauth2client.Option
	if b.logger != nil {
		tmOpts = append(tmOpts, oauth2client.WithLogger(b.logger))
	}

	return oauth2client.NewTokenManager(
		ctx,
		b.oauth2TokenURL,
		b.oauth2ClientID,
		b.oauth2ClientSecret,
		b.oauth2Scopes,
		tmOpts...,
	), nil
}

func (b *Builder) buildCoordinator(tm *oauth2client.TokenManager) (*refresh.Coordinator, error) {
	if b.coordinator != nil {
		return b.coordinator, nil
	}
	if !b.autoRefresh {
		return nil, nil
	}
	if tm == nil {
		return nil, errors.New("grpcclient: auto refresh requires OAuth2 or a token manager")
	}

	opts := b.refreshOpts
	if b.logger != nil {
		opts = append([]refresh.Option{refresh.WithLogger(b.logger)}, opts...)
	}

	coordinator, err := refresh.New(tm, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: create refresh coordinator: %w", err)
	}
	return coordinator, nil
}

// validateOAuth2Config ensures OAuth2 configuration is complete.
func (b *Builder) validateOAuth2Config() error {
	if b.oauth2TokenURL == "" {
		return errors.New("grpcclient: OAuth2 token URL is required")
	}
	if b.oauth2ClientID == "" {
		return errors.New("grpcclient: OAuth2 client ID is required")
	}
	if b.oauth2ClientSecret == "" {
		return errors.New("grpcclient: OAuth2 client secret is required")
	}
	return nil
}

// buildTLSConfig constructs the TLS configuration for the gRPC connection.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	// Load CA certificate for server verification
	if b.tlsCAFile != "" {
		caCert, err := os.ReadFile(b.tlsCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	// Load client certificate for mTLS (if both cert and key are provided)
	if b.tlsCertFile != "" && b.tlsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.tlsCertFile, b.tlsKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	} else if b.tlsCertFile != "" || b.tlsKeyFile != "" {
		return nil, errors.New("both TLS cert and key files must be provided for mTLS")
	}

	// Set server name override if provided
	if b.tlsServerName != "" {
		tlsConfig.ServerName = b.tlsServerName
	}

	return tlsConfig, nil
}
