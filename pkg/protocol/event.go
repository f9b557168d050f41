package protocol

// EventType identifies the variant of an Event.
type EventType uint8

// Event type constants, grouped by protocol type.
const (
	// HTTP events (0x01-0x0F)
	EventRequest       EventType = 0x01 // server → app: request body chunk
	EventResponseStart EventType = 0x02 // app → server: status and headers
	EventResponseBody  EventType = 0x03 // app → server: response body chunk
	EventResponseFlush EventType = 0x04 // app → server: forced flush (extension-gated)

	// Lifespan events (0x10-0x1F)
	EventLifespanStartup          EventType = 0x10
	EventLifespanStartupComplete  EventType = 0x11
	EventLifespanStartupFailed    EventType = 0x12
	EventLifespanShutdown         EventType = 0x13
	EventLifespanShutdownComplete EventType = 0x14
	EventLifespanShutdownFailed   EventType = 0x15

	// WebSocket events (0x20-0x2F)
	EventWebSocketConnect    EventType = 0x20
	EventWebSocketAccept     EventType = 0x21
	EventWebSocketReceive    EventType = 0x22
	EventWebSocketSend       EventType = 0x23
	EventWebSocketDisconnect EventType = 0x24
	EventWebSocketClose      EventType = 0x25
)

// String returns the wire name of the event type.
func (et EventType) String() string {
	switch et {
	case EventRequest:
		return "http.request"
	case EventResponseStart:
		return "http.response.start"
	case EventResponseBody:
		return "http.response.body"
	case EventResponseFlush:
		return "http.response.flush"
	case EventLifespanStartup:
		return "lifespan.startup"
	case EventLifespanStartupComplete:
		return "lifespan.startup.complete"
	case EventLifespanStartupFailed:
		return "lifespan.startup.failed"
	case EventLifespanShutdown:
		return "lifespan.shutdown"
	case EventLifespanShutdownComplete:
		return "lifespan.shutdown.complete"
	case EventLifespanShutdownFailed:
		return "lifespan.shutdown.failed"
	case EventWebSocketConnect:
		return "websocket.connect"
	case EventWebSocketAccept:
		return "websocket.accept"
	case EventWebSocketReceive:
		return "websocket.receive"
	case EventWebSocketSend:
		return "websocket.send"
	case EventWebSocketDisconnect:
		return "websocket.disconnect"
	case EventWebSocketClose:
		return "websocket.close"
	default:
		return "unknown"
	}
}

// Event is a typed, immutable message exchanged between the server and the
// application. The variant set is closed per protocol type; application
// code switches on the concrete type or on Type().
type Event interface {
	Type() EventType
}

// Request is a request body chunk delivered to the application. More
// reports whether further chunks follow; applications drain the body by
// calling receive until More is false or a non-body event arrives.
type Request struct {
	Body []byte
	More bool
}

func (Request) Type() EventType { return EventRequest }

// ResponseStart opens the response with a status code and headers. Exactly
// one ResponseStart is accepted per connection, before any ResponseBody.
type ResponseStart struct {
	Status  int
	Headers Headers
}

func (ResponseStart) Type() EventType { return EventResponseStart }

// ResponseBody carries a response body chunk. A ResponseBody with More
// false completes the response; no further outbound events are accepted.
type ResponseBody struct {
	Body []byte
	More bool
}

func (ResponseBody) Type() EventType { return EventResponseBody }

// ResponseFlush instructs the transport to flush buffered response bytes
// immediately. Gated on ExtensionHTTPResponseFlush: sending it on a
// connection whose scope lacks that key is a ProtocolViolation.
type ResponseFlush struct{}

func (ResponseFlush) Type() EventType { return EventResponseFlush }

// LifespanStartup asks the application to initialize before the server
// accepts connections.
type LifespanStartup struct{}

func (LifespanStartup) Type() EventType { return EventLifespanStartup }

// LifespanStartupComplete signals successful initialization.
type LifespanStartupComplete struct{}

func (LifespanStartupComplete) Type() EventType { return EventLifespanStartupComplete }

// LifespanStartupFailed signals failed initialization; the server must not
// begin accepting connections.
type LifespanStartupFailed struct {
	Message string
}

func (LifespanStartupFailed) Type() EventType { return EventLifespanStartupFailed }

// LifespanShutdown asks the application to release resources.
type LifespanShutdown struct{}

func (LifespanShutdown) Type() EventType { return EventLifespanShutdown }

// LifespanShutdownComplete signals clean shutdown.
type LifespanShutdownComplete struct{}

func (LifespanShutdownComplete) Type() EventType { return EventLifespanShutdownComplete }

// LifespanShutdownFailed signals shutdown finished with errors.
type LifespanShutdownFailed struct {
	Message string
}

func (LifespanShutdownFailed) Type() EventType { return EventLifespanShutdownFailed }

// WebSocketConnect is delivered once when a client requests a websocket
// connection; the application answers with WebSocketAccept or
// WebSocketClose.
type WebSocketConnect struct{}

func (WebSocketConnect) Type() EventType { return EventWebSocketConnect }

// WebSocketAccept completes the websocket handshake, optionally selecting
// a subprotocol and adding response headers.
type WebSocketAccept struct {
	Subprotocol string
	Headers     Headers
}

func (WebSocketAccept) Type() EventType { return EventWebSocketAccept }

// WebSocketReceive is an inbound message. Exactly one of Text and Bytes is
// set: Bytes non-nil for binary frames, Text for text frames.
type WebSocketReceive struct {
	Text  string
	Bytes []byte
}

func (WebSocketReceive) Type() EventType { return EventWebSocketReceive }

// WebSocketSend is an outbound message. Exactly one of Text and Bytes is
// set, mirroring WebSocketReceive.
type WebSocketSend struct {
	Text  string
	Bytes []byte
}

func (WebSocketSend) Type() EventType { return EventWebSocketSend }

// WebSocketDisconnect is delivered when the peer closes or the transport
// drops; no further inbound events follow.
type WebSocketDisconnect struct {
	Code int
}

func (WebSocketDisconnect) Type() EventType { return EventWebSocketDisconnect }

// WebSocketClose closes the connection from the application side, either
// rejecting the handshake (before WebSocketAccept) or terminating an
// accepted connection.
type WebSocketClose struct {
	Code   int
	Reason string
}

func (WebSocketClose) Type() EventType { return EventWebSocketClose }

// Inbound reports whether et travels from server to application.
func (et EventType) Inbound() bool {
	switch et {
	case EventRequest, EventLifespanStartup, EventLifespanShutdown,
		EventWebSocketConnect, EventWebSocketReceive, EventWebSocketDisconnect:
		return true
	}
	return false
}

// Protocol returns the protocol type an event type belongs to.
func (et EventType) Protocol() ProtocolType {
	switch {
	case et >= EventRequest && et <= EventResponseFlush:
		return ProtocolHTTP
	case et >= EventLifespanStartup && et <= EventLifespanShutdownFailed:
		return ProtocolLifespan
	case et >= EventWebSocketConnect && et <= EventWebSocketClose:
		return ProtocolWebSocket
	default:
		return 0
	}
}

// RequiredExtension returns the capability an event type is gated on, and
// whether such a gate exists. Ungated event types return ok == false.
func (et EventType) RequiredExtension() (Extension, bool) {
	if et == EventResponseFlush {
		return ExtensionHTTPResponseFlush, true
	}
	return "", false
}
