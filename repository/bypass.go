package repository

import "context"

type bypassContextKey struct{}

// WithBypass marks the context so read-through layers beneath the repository
// boundary skip their caches and hit the authoritative store. The
// verification engine sets this on every post-write re-read.
func WithBypass(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

// BypassFromContext reports whether the context requests a cache-bypassing
// read.
func BypassFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	bypass, ok := ctx.Value(bypassContextKey{}).(bool)
	return ok && bypass
}
