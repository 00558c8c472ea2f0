package httpclient

import "net/http"

// Interceptors are user callbacks run by RefreshTransport around the refresh
// pipeline. Any field may be nil.
type Interceptors struct {
	// Request runs on every attempt, after the attempt has been bound to its
	// signal and before it is sent. It may return a modified request.
	Request func(*http.Request) (*http.Request, error)

	// Response runs once on the final response, including error statuses
	// that were not retried.
	Response func(*http.Response) (*http.Response, error)

	// Error runs once on the final error and may replace it.
	Error func(*http.Request, error) error
}

// MergeInterceptors combines client-wide interceptors with per-transport
// ones. Non-nil fields of override replace those of base.
func MergeInterceptors(base, override Interceptors) Interceptors {
	merged := base
	if override.Request != nil {
		merged.Request = override.Request
	}
	if override.Response != nil {
		merged.Response = override.Response
	}
	if override.Error != nil {
		merged.Error = override.Error
	}
	return merged
}

func (i Interceptors) onRequest(req *http.Request) (*http.Request, error) {
	if i.Request == nil {
		return req, nil
	}
	return i.Request(req)
}

func (i Interceptors) onResponse(resp *http.Response) (*http.Response, error) {
	if i.Response == nil {
		return resp, nil
	}
	return i.Response(resp)
}

func (i Interceptors) onError(req *http.Request, err error) error {
	if i.Error == nil {
		return err
	}
	return i.Error(req, err)
}

func (i Interceptors) empty() bool {
	return i.Request == nil && i.Response == nil && i.Error == nil
}
