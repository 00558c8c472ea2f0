package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AmmannChristian/go-refreshx/internal/testutil"
	"github.com/AmmannChristian/go-refreshx/oauth2client"
	"github.com/AmmannChristian/go-refreshx/refresh"
)

func newBuilderTokenManager(tb testing.TB) (*oauth2client.TokenManager, *testutil.MockOAuth2Server) {
	tb.Helper()

	authServer := testutil.NewMockOAuth2Server(tb, nil)
	tm := oauth2client.NewTokenManager(authServer.Ctx, authServer.URL+"/token", "client", "secret", "openid")
	return tm, authServer
}

func TestNewBuilder_Defaults(t *testing.T) {
	builder := NewBuilder()

	if builder.timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", builder.timeout)
	}

	if !builder.followRedirects {
		t.Error("redirects should be enabled by default")
	}

	if builder.coordinator != nil || builder.autoRefresh {
		t.Error("refresh should be disabled by default")
	}
}

func TestBuilder_Setters(t *testing.T) {
	tm, _ := newBuilderTokenManager(t)
	customTransport := &http.Transport{}

	builder := NewBuilder().
		WithTokenManager(tm).
		WithTLS("/ca.crt", "/cert.crt", "/key.pem").
		WithInsecureSkipVerify().
		WithTimeout(45 * time.Second).
		WithBaseTransport(customTransport).
		WithoutRedirects().
		WithAutoRefresh(refresh.WithMaxRetries(2))

	if builder.tokenManager != tm {
		t.Error("TokenManager not set correctly")
	}
	if !builder.tlsEnabled || builder.tlsCAFile != "/ca.crt" || builder.tlsCertFile != "/cert.crt" || builder.tlsKeyFile != "/key.pem" {
		t.Errorf("unexpected TLS settings: %+v", builder)
	}
	if !builder.tlsSkipVerify {
		t.Error("InsecureSkipVerify should be enabled")
	}
	if builder.timeout != 45*time.Second {
		t.Errorf("unexpected timeout %v", builder.timeout)
	}
	if builder.baseTransport != customTransport {
		t.Error("base transport not set correctly")
	}
	if builder.followRedirects {
		t.Error("redirects should be disabled")
	}
	if !builder.autoRefresh || len(builder.refreshOpts) != 1 {
		t.Error("auto refresh options not recorded")
	}
}

func TestBuilder_WithOAuth2(t *testing.T) {
	builder := NewBuilder().
		WithOAuth2(context.Background(), "https://auth.example.com/token", "client-id", "secret", "openid profile")

	if builder.tokenManager == nil {
		t.Fatal("TokenManager should not be nil")
	}
}

func TestBuilder_Build_Simple(t *testing.T) {
	client, err := NewBuilder().WithoutRedirects().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if client.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", client.Timeout)
	}

	if err := client.CheckRedirect(nil, nil); !errors.Is(err, http.ErrUseLastResponse) {
		t.Errorf("expected ErrUseLastResponse, got %v", err)
	}
}

func TestBuilder_Build_WithOAuth2_WrapsBase(t *testing.T) {
	tm, _ := newBuilderTokenManager(t)
	customTransport := &http.Transport{}

	client, err := NewBuilder().WithBaseTransport(customTransport).WithTokenManager(tm).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	oauth2Transport, ok := client.Transport.(*OAuth2Transport)
	if !ok {
		t.Fatalf("expected *OAuth2Transport, got %T", client.Transport)
	}

	if oauth2Transport.Base != customTransport {
		t.Error("OAuth2Transport should wrap custom transport")
	}
}

func TestBuilder_Build_WithAutoRefresh_Chain(t *testing.T) {
	tm, _ := newBuilderTokenManager(t)

	client, err := NewBuilder().WithTokenManager(tm).WithAutoRefresh().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rt, ok := client.Transport.(*RefreshTransport)
	if !ok {
		t.Fatalf("expected *RefreshTransport, got %T", client.Transport)
	}

	if rt.Coordinator == nil {
		t.Fatal("coordinator should be created")
	}

	if _, ok := rt.Base.(*OAuth2Transport); !ok {
		t.Fatalf("RefreshTransport should wrap OAuth2Transport, got %T", rt.Base)
	}
}

func TestBuilder_Build_WithAutoRefresh_RequiresTokenManager(t *testing.T) {
	_, err := NewBuilder().WithAutoRefresh().Build()
	if err == nil {
		t.Fatal("expected error without token manager")
	}

	if !strings.Contains(err.Error(), "requires a token manager") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuilder_Build_WithAutoRefresh_InvalidOption(t *testing.T) {
	tm, _ := newBuilderTokenManager(t)

	_, err := NewBuilder().WithTokenManager(tm).WithAutoRefresh(refresh.WithStatusCodes(42)).Build()
	if !errors.Is(err, refresh.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuilder_Build_WithRefreshCoordinator_Shared(t *testing.T) {
	coord, err := refresh.New(refresh.HandlerFunc(func(context.Context) error { return nil }))
	if err != nil {
		t.Fatalf("refresh.New failed: %v", err)
	}

	first, err := NewBuilder().WithRefreshCoordinator(coord).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := NewBuilder().WithRefreshCoordinator(coord).WithAutoRefresh().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for _, client := range []*http.Client{first, second} {
		rt, ok := client.Transport.(*RefreshTransport)
		if !ok || rt.Coordinator != coord {
			t.Fatalf("expected transport bound to shared coordinator, got %T", client.Transport)
		}
	}
}

func TestBuilder_Build_InterceptorsWithoutCoordinator(t *testing.T) {
	_, err := NewBuilder().WithInterceptors(Interceptors{
		Error: func(_ *http.Request, err error) error { return err },
	}).Build()
	if err == nil {
		t.Fatal("expected error for interceptors without coordinator")
	}
}

func TestBuilder_Build_RefreshEndToEnd(t *testing.T) {
	authority := testutil.NewTokenAuthority(t)
	authServer := testutil.NewMockOAuth2Server(t, authority.TokenEndpoint())
	tm := oauth2client.NewTokenManager(authServer.Ctx, authServer.URL+"/token", "client", "secret", "openid")

	var hits atomic.Int32
	backend := testutil.NewLocalHTTPServer(t, authority.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "protected")
	})))

	var intercepted atomic.Int32
	client, err := NewBuilder().
		WithBaseTransport(&http.Transport{}).
		WithTokenManager(tm).
		WithAutoRefresh().
		WithInterceptors(Interceptors{
			Request: func(req *http.Request) (*http.Request, error) {
				intercepted.Add(1)
				return req, nil
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	get := func() string {
		t.Helper()
		resp, err := client.Get(backend.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status 200, got %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if got := get(); got != "protected" {
		t.Fatalf("unexpected body %q", got)
	}

	authority.Rotate()

	if got := get(); got != "protected" {
		t.Fatalf("unexpected body after rotation %q", got)
	}

	if authority.Issued() != 2 {
		t.Errorf("expected one initial and one refreshed token, got %d", authority.Issued())
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 authorized hits, got %d", hits.Load())
	}
	if intercepted.Load() != 3 {
		t.Errorf("expected request interceptor on every attempt, got %d", intercepted.Load())
	}
}

func TestNewRefreshingHTTPClient(t *testing.T) {
	tm, _ := newBuilderTokenManager(t)

	client, err := NewRefreshingHTTPClient(tm, refresh.WithMaxRetries(3))
	if err != nil {
		t.Fatalf("NewRefreshingHTTPClient failed: %v", err)
	}

	rt, ok := client.Transport.(*RefreshTransport)
	if !ok {
		t.Fatalf("expected *RefreshTransport, got %T", client.Transport)
	}

	if rt.Coordinator.MaxRetries() != 3 {
		t.Errorf("expected max retries 3, got %d", rt.Coordinator.MaxRetries())
	}
}

func TestBuilder_BuildTLSConfig(t *testing.T) {
	tmpDir := t.TempDir()
	caFile := filepath.Join(tmpDir, "ca.crt")
	badCA := filepath.Join(tmpDir, "bad-ca.crt")
	testutil.WriteTestCACert(t, caFile)
	if err := os.WriteFile(badCA, []byte("invalid cert content"), 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	tests := []struct {
		name       string
		caFile     string
		certFile   string
		keyFile    string
		skipVerify bool
		wantErr    bool
		check      func(*testing.T, *tls.Config)
	}{
		{
			name: "defaults to TLS 1.2",
			check: func(t *testing.T, cfg *tls.Config) {
				if cfg.MinVersion != tls.VersionTLS12 {
					t.Errorf("expected TLS 1.2, got %d", cfg.MinVersion)
				}
			},
		},
		{
			name:       "insecure skip verify",
			skipVerify: true,
			check: func(t *testing.T, cfg *tls.Config) {
				if !cfg.InsecureSkipVerify {
					t.Error("InsecureSkipVerify should be true")
				}
			},
		},
		{
			name:   "custom CA",
			caFile: caFile,
			check: func(t *testing.T, cfg *tls.Config) {
				if cfg.RootCAs == nil {
					t.Error("RootCAs should not be nil")
				}
			},
		},
		{name: "missing CA file", caFile: "/nonexistent/ca.crt", wantErr: true},
		{name: "invalid CA content", caFile: badCA, wantErr: true},
		{name: "cert without key", certFile: "/path/to/cert.crt", wantErr: true},
		{name: "key without cert", keyFile: "/path/to/key.pem", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := NewBuilder()
			builder.tlsEnabled = true
			builder.tlsCAFile = tt.caFile
			builder.tlsCertFile = tt.certFile
			builder.tlsKeyFile = tt.keyFile
			builder.tlsSkipVerify = tt.skipVerify

			cfg, err := builder.buildTLSConfig()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildTLSConfig failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestBuilder_Build_WithMutualTLS_LoadsCertificates(t *testing.T) {
	tmpDir := t.TempDir()
	caFile := filepath.Join(tmpDir, "ca.crt")
	certFile := filepath.Join(tmpDir, "client.crt")
	keyFile := filepath.Join(tmpDir, "client.key")

	testutil.WriteTestCACert(t, caFile)
	testutil.WriteTestCertAndKey(t, certFile, keyFile)

	client, err := NewBuilder().WithTLS(caFile, certFile, keyFile).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}

	if transport.TLSClientConfig.RootCAs == nil {
		t.Error("RootCAs should be configured from CA file")
	}
	if len(transport.TLSClientConfig.Certificates) == 0 {
		t.Fatal("expected client certificates to be loaded")
	}
}

func TestBuilder_Build_WithMutualTLS_InvalidCert(t *testing.T) {
	tmpDir := t.TempDir()
	certFile := filepath.Join(tmpDir, "client.crt")
	keyFile := filepath.Join(tmpDir, "client.key")

	if err := os.WriteFile(certFile, []byte("bad cert"), 0o600); err != nil {
		t.Fatalf("failed to write cert file: %v", err)
	}
	if err := os.WriteFile(keyFile, []byte("bad key"), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	_, err := NewBuilder().WithTLS("", certFile, keyFile).Build()
	if err == nil || !strings.Contains(err.Error(), "load client certificate") {
		t.Fatalf("expected certificate load error, got %v", err)
	}
}

func TestBuilder_Build_FallbackDefaultTransport(t *testing.T) {
	origDefault := http.DefaultTransport
	http.DefaultTransport = testutil.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		return testutil.JSONResponse(req, http.StatusOK, `{}`), nil
	})
	t.Cleanup(func() { http.DefaultTransport = origDefault })

	client, err := NewBuilder().WithInsecureSkipVerify().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	resp, err := client.Get("https://example.com")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
}

func BenchmarkBuilder_Build_WithAutoRefresh(b *testing.B) {
	tm, _ := newBuilderTokenManager(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NewBuilder().WithTokenManager(tm).WithAutoRefresh().Build(); err != nil {
			b.Fatalf("Build failed: %v", err)
		}
	}
}
