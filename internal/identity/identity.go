// Package identity carries the authenticated caller through request handling.
// Authentication itself happens upstream (gateway or CLI flag); this package
// only defines the trusted shape and its context plumbing.
package identity

import "context"

type Caller struct {
	UserID string
	Admin  bool
}

type ctxKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}
