package rpcpool

import (
	"context"

	"github.com/gorilla/websocket"
)

// Subscriber is a thin wrapper around dialing a WebSocket-capable endpoint.
// It carries no reconnect or replay state: Dial tries the WebSocket-capable
// endpoints in priority order and the caller owns the first connection that
// succeeds.
type Subscriber struct {
	pool *Pool
}

// NewSubscriber builds a Subscriber over the given pool's endpoint list.
func NewSubscriber(p *Pool) *Subscriber {
	return &Subscriber{pool: p}
}

// wsURLsInOrder returns each endpoint's WebSocket URL candidate (alt_url
// first, then url) for every endpoint that declares WebSocket support,
// priority-ascending.
func wsURLsInOrder(endpoints []Endpoint) []string {
	var urls []string
	for _, e := range endpoints {
		if !e.Capabilities.SupportsWS {
			continue
		}
		if e.AltURL != "" {
			urls = append(urls, e.AltURL)
		} else {
			urls = append(urls, e.URL)
		}
	}
	return urls
}

// Dial tries each WebSocket-capable endpoint in priority order, returning
// the first successful connection. It returns NoWebSocketEndpointsError if
// no endpoint declares WebSocket support, or WebSocketError wrapping the
// last dial failure if every candidate dial fails.
func (s *Subscriber) Dial(ctx context.Context) (*websocket.Conn, error) {
	candidates := wsURLsInOrder(s.pool.endpoints)
	if len(candidates) == 0 {
		return nil, NoWebSocketEndpointsError()
	}

	var lastErr error
	for _, url := range candidates {
		select {
		case <-s.pool.ctx.Done():
			return nil, errPoolShutdown()
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	text := "unknown error"
	if lastErr != nil {
		text = lastErr.Error()
	}
	return nil, WebSocketError(text)
}
