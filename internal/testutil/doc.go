// Package testutil provides test helpers for go-refreshx packages.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes),
// mock OAuth2 endpoints without real sockets, a JWT token authority whose tokens can be made
// stale on demand, and generators for self-signed TLS certificates.
//
// # Utilities
//
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1
//   - MockOAuth2Server, StaticJSONResponse, JSONResponse: stub OAuth2 token endpoints
//   - RoundTripFunc: inline http.RoundTripper implementations
//   - TokenAuthority: mint, verify and rotate RS256 access tokens; Protect wraps a handler
//   - WriteTestCACert / WriteTestCertAndKey: temporary CA and leaf certificates
//
// These helpers are designed for tests and may mutate http.DefaultClient/Transport; they restore
// previous values via tb.Cleanup.
package testutil
