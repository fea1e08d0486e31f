// -----------------------------------------------------------------------
// Handler Registry - Typed stage handlers and transition observers
// -----------------------------------------------------------------------

package workflow

import (
	"sync"

	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
)

// Registry maps stages to their entry handlers and holds the global
// transition-observer list. Registration normally happens during wiring,
// but the registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[models.Stage][]interfaces.HandlerFunc
	observers []interfaces.ObserverFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[models.Stage][]interfaces.HandlerFunc),
	}
}

// RegisterStageHandler appends a handler for entry into the given stage.
// Handlers run sequentially in registration order.
func (r *Registry) RegisterStageHandler(stage models.Stage, handler interfaces.HandlerFunc) {
	if handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[stage] = append(r.handlers[stage], handler)
}

// RegisterObserver appends a transition observer invoked on every edge.
func (r *Registry) RegisterObserver(observer interfaces.ObserverFunc) {
	if observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

// HandlersFor returns the handler list for a stage. The returned slice
// is a copy; dispatch never holds the registry lock.
func (r *Registry) HandlersFor(stage models.Stage) []interfaces.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := r.handlers[stage]
	out := make([]interfaces.HandlerFunc, len(handlers))
	copy(out, handlers)
	return out
}

// Observers returns a copy of the observer list.
func (r *Registry) Observers() []interfaces.ObserverFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]interfaces.ObserverFunc, len(r.observers))
	copy(out, r.observers)
	return out
}
