// Package server implements the Gavi connection driver and the transports
// that feed it.
//
// The Driver is the per-connection state machine: it owns the channel pair,
// validates every outbound event against the protocol state and the
// scope's capability set before forwarding it to the transport, and
// converts failures into terminal states. Transports (HTTP, websocket,
// lifespan) build scopes from raw connection metadata, pump inbound events
// into the driver, and write accepted outbound events to the wire.
//
// Server ties it together: it mounts the HTTP and websocket transports on
// a net/http server, runs the lifespan protocol around the accept loop,
// and shuts down gracefully on signal.
package server
