package rpcpool

import "fmt"

// Kind is the closed set of failure kinds the pool returns to callers
// (spec.md §6).
type Kind int

const (
	KindNoEndpointsConfigured Kind = iota
	KindNoHealthyEndpoints
	KindInvalidURL
	KindTimeout
	KindAllEndpointsFailed
	KindPoolShutdown
	KindClientCreationFailed
	KindTransportError
	KindNoWebSocketEndpoints
	KindWebSocketError
)

func (k Kind) String() string {
	switch k {
	case KindNoEndpointsConfigured:
		return "NoEndpointsConfigured"
	case KindNoHealthyEndpoints:
		return "NoHealthyEndpoints"
	case KindInvalidURL:
		return "InvalidUrl"
	case KindTimeout:
		return "Timeout"
	case KindAllEndpointsFailed:
		return "AllEndpointsFailed"
	case KindPoolShutdown:
		return "PoolShutdown"
	case KindClientCreationFailed:
		return "ClientCreationFailed"
	case KindTransportError:
		return "TransportError"
	case KindNoWebSocketEndpoints:
		return "NoWebSocketEndpoints"
	case KindWebSocketError:
		return "WebSocketError"
	default:
		return "Unknown"
	}
}

// Error is the pool's error type. Text carries the kind-specific detail
// (the failed-endpoints text, the timeout milliseconds as a string, the
// transport error text, etc).
type Error struct {
	Kind Kind
	Text string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoEndpointsConfigured:
		return "no RPC endpoints configured"
	case KindNoHealthyEndpoints:
		return "no healthy RPC endpoints available"
	case KindInvalidURL:
		return fmt.Sprintf("invalid endpoint URL: %s", e.Text)
	case KindTimeout:
		return fmt.Sprintf("request timeout after %sms", e.Text)
	case KindAllEndpointsFailed:
		return fmt.Sprintf("all RPC endpoints failed: %s", e.Text)
	case KindPoolShutdown:
		return "RPC pool has been shut down"
	case KindClientCreationFailed:
		return fmt.Sprintf("failed to create RPC client: %s", e.Text)
	case KindTransportError:
		return fmt.Sprintf("RPC transport error: %s", e.Text)
	case KindNoWebSocketEndpoints:
		return "no WebSocket-capable endpoints configured"
	case KindWebSocketError:
		return fmt.Sprintf("WebSocket error: %s", e.Text)
	default:
		return "unknown RPC pool error"
	}
}

func errNoEndpointsConfigured() *Error { return &Error{Kind: KindNoEndpointsConfigured} }
func errPoolShutdown() *Error          { return &Error{Kind: KindPoolShutdown} }
func errAllEndpointsFailed(text string) *Error {
	if text == "" {
		text = "Unknown error"
	}
	return &Error{Kind: KindAllEndpointsFailed, Text: text}
}
func errTimeout(ms int64) *Error {
	return &Error{Kind: KindTimeout, Text: fmt.Sprintf("%d", ms)}
}

// NoWebSocketEndpointsError and WebSocketError are exposed for the
// subscription thin-wrapper (subscribe.go).
func NoWebSocketEndpointsError() *Error { return &Error{Kind: KindNoWebSocketEndpoints} }
func WebSocketError(text string) *Error { return &Error{Kind: KindWebSocketError, Text: text} }
