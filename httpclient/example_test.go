package httpclient_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/AmmannChristian/go-refreshx/httpclient"
	"github.com/AmmannChristian/go-refreshx/oauth2client"
	"github.com/AmmannChristian/go-refreshx/refresh"
)

// Example demonstrates an HTTP client that refreshes its token when the
// backend answers 401 and resends the request once.
func Example() {
	ctx := context.Background()

	tm := oauth2client.NewTokenManager(
		ctx,
		"https://auth.example.com/oauth/v2/token",
		"client-id",
		"client-secret",
		"openid profile",
	)

	client, err := httpclient.NewBuilder().
		WithTokenManager(tm).
		WithAutoRefresh(
			refresh.WithStatusCodes(http.StatusUnauthorized),
			refresh.WithMaxRetries(1),
		).
		WithTimeout(60 * time.Second).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	_, isRefresh := client.Transport.(*httpclient.RefreshTransport)
	fmt.Printf("refreshing client: %v, timeout: %v\n", isRefresh, client.Timeout)
	// Output: refreshing client: true, timeout: 1m0s
}

// ExampleNewHTTPClient demonstrates the simple way to create an HTTP client.
func ExampleNewHTTPClient() {
	tm := oauth2client.NewTokenManager(
		context.Background(),
		"https://auth.example.com/oauth/v2/token",
		"client-id",
		"client-secret",
		"openid",
	)

	client := httpclient.NewHTTPClient(tm)

	fmt.Printf("Client timeout: %v\n", client.Timeout)
	// Output: Client timeout: 30s
}

// ExampleBuilder_WithRefreshCoordinator shares one coordinator between two
// clients of the same backend so a stale token is refreshed only once.
func ExampleBuilder_WithRefreshCoordinator() {
	tm := oauth2client.NewTokenManager(
		context.Background(),
		"https://auth.example.com/oauth/v2/token",
		"client-id",
		"client-secret",
		"openid",
	)

	coord, err := refresh.New(tm)
	if err != nil {
		log.Fatal(err)
	}

	reads, err := httpclient.NewBuilder().WithTokenManager(tm).WithRefreshCoordinator(coord).Build()
	if err != nil {
		log.Fatal(err)
	}
	writes, err := httpclient.NewBuilder().WithTokenManager(tm).WithRefreshCoordinator(coord).WithTimeout(5 * time.Second).Build()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(reads.Transport.(*httpclient.RefreshTransport).Coordinator == writes.Transport.(*httpclient.RefreshTransport).Coordinator)
	// Output: true
}

// ExampleBuilder_WithInterceptors demonstrates request callbacks that run on
// every attempt.
func ExampleBuilder_WithInterceptors() {
	tm := oauth2client.NewTokenManager(
		context.Background(),
		"https://auth.example.com/oauth/v2/token",
		"client-id",
		"client-secret",
		"openid",
	)

	_, err := httpclient.NewBuilder().
		WithTokenManager(tm).
		WithAutoRefresh().
		WithInterceptors(httpclient.Interceptors{
			Request: func(req *http.Request) (*http.Request, error) {
				req.Header.Set("X-Client", "inventory-sync")
				return req, nil
			},
		}).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("interceptors configured")
	// Output: interceptors configured
}

// ExampleBuilder_WithTLS demonstrates TLS configuration.
func ExampleBuilder_WithTLS() {
	_, err := httpclient.NewBuilder().
		WithOAuth2(context.Background(), "https://auth.example.com/oauth/v2/token", "client-id", "secret", "openid").
		WithTLS(
			"/path/to/ca.crt",
			"/path/to/client.crt",
			"/path/to/client.key",
		).
		Build()
	if err != nil {
		// The files do not exist here.
		fmt.Println("TLS configuration attempted")
		return
	}

	fmt.Println("TLS configured")
	// Output: TLS configuration attempted
}

// ExampleNewRefreshTransport demonstrates manual transport composition.
func ExampleNewRefreshTransport() {
	tm := oauth2client.NewTokenManager(
		context.Background(),
		"https://auth.example.com/oauth/v2/token",
		"client-id",
		"client-secret",
		"openid",
	)

	coord, err := refresh.New(tm, refresh.WithMaxRetries(2))
	if err != nil {
		log.Fatal(err)
	}

	client := &http.Client{
		Transport: httpclient.NewRefreshTransport(coord, httpclient.NewOAuth2Transport(tm, nil)),
	}

	fmt.Printf("retry budget: %d\n", client.Transport.(*httpclient.RefreshTransport).Coordinator.MaxRetries())
	// Output: retry budget: 2
}
