// Package web provides convenience wrappers over the raw gateway
// interface for http handlers: Request drains the request body using the
// canonical receive loop, ResponseWriter stages status and headers and
// enforces the single-start discipline, and Handler adapts the pair back
// to a gavi.Application.
package web
