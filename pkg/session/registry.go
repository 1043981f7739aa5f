package session

import "sync"

// Handler receives authentication state changes pushed from the transport
// layer.
type Handler interface {
	SetAuthenticated(authenticated bool)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(authenticated bool)

// SetAuthenticated implements Handler.
func (f HandlerFunc) SetAuthenticated(authenticated bool) {
	f(authenticated)
}

// Registry is a single-slot holder for the active Handler. It lets the HTTP
// client report a 401 to the session without importing it: the client is
// built with Registry.Notify as its unauthorized callback, and whichever
// route guard mounted last receives the notification.
type Registry struct {
	mu      sync.RWMutex
	handler Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs h, replacing any previous handler.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Current returns the registered handler, or nil.
func (r *Registry) Current() Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handler
}

// Notify reports an authentication failure to the current handler. It does
// nothing when no handler is registered.
func (r *Registry) Notify() {
	if h := r.Current(); h != nil {
		h.SetAuthenticated(false)
	}
}
