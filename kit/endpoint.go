// Package kit holds the transport-agnostic plumbing shared by the HTTP and
// MCP front ends: the Endpoint abstraction, middleware chaining, request
// metadata context keys, and MCP tool registration.
package kit

import "context"

// Endpoint is one transport-independent request handler.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
