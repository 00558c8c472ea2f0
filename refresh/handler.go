package refresh

import "context"

// Handler performs the actual credential refresh, for example a call to a
// token endpoint. The coordinator treats the credential as opaque: a nil
// error means the refresh succeeded.
type Handler interface {
	Refresh(ctx context.Context) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context) error

// Refresh calls f(ctx).
func (f HandlerFunc) Refresh(ctx context.Context) error {
	return f(ctx)
}

// TokenFunc adapts a function returning a fresh token to the Handler
// interface. An empty token is reported as ErrEmptyCredential.
func TokenFunc(fn func(ctx context.Context) (string, error)) Handler {
	return HandlerFunc(func(ctx context.Context) error {
		token, err := fn(ctx)
		if err != nil {
			return err
		}
		if token == "" {
			return ErrEmptyCredential
		}
		return nil
	})
}
