package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownEvent = errors.New("unknown_event")
	ErrInvalidBody  = errors.New("invalid_body")
)

// ConnContext is what a handler knows about the connection it serves.
type ConnContext struct {
	ConnID string
	Server *WsServer
}

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) error

// Router keeps a map[event]handler, à-la gin.Engine.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
	aliases  map[string]string
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]rawHandler),
		aliases:  make(map[string]string),
	}
}

// Register binds an event to a strongly-typed handler.
func Register[Req any](
	r *Router,
	event string,
	h func(ctx context.Context, c *ConnContext, req Req) error,
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = func(ctx context.Context, c *ConnContext, body json.RawMessage) error {
		var req Req
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidBody, err)
			}
		}
		return h(ctx, c, req)
	}
}

// Alias makes alias dispatch to the handler of event.
func (r *Router) Alias(alias, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = event
}

// dispatch is called by the server's reader loop.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope) error {
	r.mu.RLock()
	event := env.Event
	if target, ok := r.aliases[event]; ok {
		event = target
	}
	h, ok := r.handlers[event]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}
	return h(ctx, c, env.Body)
}
