// Package httpclient offers HTTP client construction helpers with OAuth2 authentication,
// coordinated credential refresh and TLS/mTLS options.
//
// It provides a fluent Builder that can create an http.Client with automatic Bearer token injection using
// oauth2client.TokenManager, configurable TLS (custom CA, mTLS, insecure for tests), timeouts, base transports,
// and redirect handling. RefreshTransport resends requests rejected with a stale token after a single
// coordinated refresh, see package refresh.
//
// # Features
//
//   - Fluent builder for http.Client with optional OAuth2 token injection
//   - Automatic refresh-and-retry on 401 (or any configured status) via WithAutoRefresh
//   - One refresh for many concurrent rejected requests when clients share a refresh.Coordinator
//   - Request, response and error interceptors with client/transport merge
//   - Request bodies are buffered once and replayed on retry
//   - TLS 1.2+ by default, with custom CA/mTLS and optional InsecureSkipVerify
//
// # Quick Start
//
//	client, err := httpclient.NewBuilder().
//	    WithOAuth2(ctx,
//	        "https://auth.example.com/oauth/v2/token",
//	        "client-id",
//	        "client-secret",
//	        "openid profile",
//	    ).
//	    WithAutoRefresh(refresh.WithMaxRetries(1)).
//	    WithTLS("/path/to/ca.crt", "", "").
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Get("https://api.example.com/data")
//
// # Manual Transport Wrapping
//
//	coord, _ := refresh.New(tm)
//	transport := httpclient.NewRefreshTransport(coord, httpclient.NewOAuth2Transport(tm, nil))
//	client := &http.Client{Transport: transport}
//
// Unless refresh.WithCombineSignals(true) is set, attempts sent through RefreshTransport carry a
// context detached from the caller's, and only a starting refresh cancels it. An expired client
// Timeout still ends the call with a timeout error when the base is net/http's Transport, which
// also watches the request's Cancel channel; the attempt's context itself stays live.
//
// Response bodies returned by RefreshTransport must be closed.
package httpclient
