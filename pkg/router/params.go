package router

import "context"

// Params holds the path parameters extracted for a matched route.
type Params map[string]string

type paramsKey struct{}

func withParams(ctx context.Context, p Params) context.Context {
	return context.WithValue(ctx, paramsKey{}, p)
}

// FromContext returns the path parameters for the current connection, or
// nil when the route had none.
func FromContext(ctx context.Context) Params {
	p, _ := ctx.Value(paramsKey{}).(Params)
	return p
}

// Param returns one path parameter by name, or "" when absent.
func Param(ctx context.Context, name string) string {
	return FromContext(ctx)[name]
}
