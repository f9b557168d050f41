// Package protocol defines the gateway interface contract between a Gavi
// server and application code: the per-connection Scope, the closed set of
// Event variants exchanged over the receive/send channel pair, the extension
// capability model, and the error taxonomy the connection driver enforces.
//
// # Scope
//
// A Scope is built exactly once by the server before application code is
// invoked and is immutable afterward. It carries the protocol type, the
// normalized request line fields, the ordered header sequence, the peer
// address, and the negotiated extension capabilities. Because it never
// changes, a single Scope is safely shared by reference across all
// middleware layers of one connection.
//
// # Events
//
// Events are immutable typed messages. Each protocol type has its own legal
// variant set:
//
//   - http: Request, ResponseStart, ResponseBody, ResponseFlush (extension)
//   - lifespan: LifespanStartup/Shutdown and their Complete/Failed replies
//   - websocket: WebSocketConnect, WebSocketAccept, WebSocketReceive,
//     WebSocketSend, WebSocketDisconnect, WebSocketClose
//
// An Event never carries scope data; the Scope is supplied once,
// out-of-band, when the application is invoked.
//
// # Extensions
//
// Optional server capabilities (forced flush, TLS metadata) are advertised
// through Scope.Extensions. Presence of a key is the support signal;
// applications must check presence before emitting a capability-gated
// Event. The connection driver re-validates every gated Event regardless,
// so an unconditional emit surfaces as a ProtocolViolation rather than
// undefined transport behavior.
//
// # Errors
//
// All protocol failures are *Error values with a Code from the closed
// taxonomy (MalformedRequest, ProtocolViolation, TransportFailure,
// ApplicationFailure). They match the exported sentinels under errors.Is.
package protocol
