package channel

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/surface"
)

// ErrRegistered is returned when an identity already has a channel set.
var ErrRegistered = errors.New("channel: identity already registered")

// Bindings are the coordinator's handlers for one surface. closed is a push
// from the coordinator and has no binding.
type Bindings struct {
	Show    ipc.HandlerFunc
	Close   ipc.HandlerFunc
	LoadURL ipc.HandlerFunc
	Send    ipc.HandlerFunc
	Message ipc.ListenerFunc
}

// Registry maps surface identities to the channel sets bound on a router.
// A set exists exactly as long as its surface is live or tearing down.
type Registry struct {
	router *ipc.Router

	mu   sync.Mutex
	sets map[surface.ID]Set
}

// NewRegistry returns a registry that binds channels on router.
func NewRegistry(router *ipc.Router) *Registry {
	return &Registry{router: router, sets: make(map[surface.ID]Set)}
}

// Register binds every channel of id. It fails without binding anything if
// id is already registered or any of its names is already taken.
func (r *Registry) Register(id surface.ID, b Bindings) (Set, error) {
	if b.Show == nil || b.Close == nil || b.LoadURL == nil || b.Send == nil || b.Message == nil {
		return Set{}, fmt.Errorf("register %s: incomplete bindings", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sets[id]; exists {
		return Set{}, fmt.Errorf("register %s: %w", id, ErrRegistered)
	}

	set := NewSet(id)
	handlers := []struct {
		name string
		h    ipc.HandlerFunc
	}{
		{set.Show, b.Show},
		{set.Close, b.Close},
		{set.LoadURL, b.LoadURL},
		{set.Send, b.Send},
	}
	var bound []string
	for _, entry := range handlers {
		if err := r.router.Handle(entry.name, entry.h); err != nil {
			for _, name := range bound {
				r.router.RemoveHandler(name)
			}
			return Set{}, fmt.Errorf("register %s: %w", id, err)
		}
		bound = append(bound, entry.name)
	}
	r.router.On(set.Message, b.Message)

	r.sets[id] = set
	return set, nil
}

// Deregister unbinds every channel of id. It reports false if id had no
// set, which makes a second call harmless.
func (r *Registry) Deregister(id surface.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[id]
	if !ok {
		return false
	}
	delete(r.sets, id)

	r.router.RemoveHandler(set.Show)
	r.router.RemoveHandler(set.Close)
	r.router.RemoveHandler(set.LoadURL)
	r.router.RemoveHandler(set.Send)
	r.router.RemoveAllListeners(set.Message)
	return true
}

// Lookup returns the set registered for id.
func (r *Registry) Lookup(id surface.ID) (Set, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[id]
	return set, ok
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}

// IDs returns the registered identities in ascending order.
func (r *Registry) IDs() []surface.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]surface.ID, 0, len(r.sets))
	for id := range r.sets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
