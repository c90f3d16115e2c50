package engine

import (
	"context"
	"log"
)

// HandlerFunc consumes one inbound envelope.
type HandlerFunc func(Envelope)

// Router maps envelope types to their owning component. Dispatch is a
// pure type lookup; handler failures never escape the loop.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns a router with no handlers registered.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to an envelope type. Re-registering a type
// replaces the previous handler, so a fresh channel can reuse a router.
func (r *Router) Register(msgType string, h HandlerFunc) {
	r.handlers[msgType] = h
}

// Dispatch routes one envelope. Unknown types are ignored; a panicking
// handler is logged and the loop keeps going.
func (r *Router) Dispatch(env Envelope) {
	h, ok := r.handlers[env.Type]
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Router] Handler for %q panicked: %v", env.Type, rec)
		}
	}()
	h(env)
}

// Run drains the channel's inbound queue until the context is canceled
// or the channel closes. All remote applies happen on this goroutine.
func (r *Router) Run(ctx context.Context, ch Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch.Inbound():
			if !ok {
				return
			}
			r.Dispatch(env)
		}
	}
}
