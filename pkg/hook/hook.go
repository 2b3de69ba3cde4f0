// Package hook provides the named extension-point dispatcher used by the
// application progression engine. Handlers registered for a hook run in
// series, never concurrently, in registration order; execution strategies
// (waterfall, first-result, early exit) are selected per call.
package hook

import (
	"context"
	"sync"
)

// Handler processes one hook invocation. The payload is shared by every
// handler registered for the hook; the meaning of the return value depends on
// the execution strategy selected by the caller.
type Handler func(ctx context.Context, payload any) (any, error)

// Set maps hook names to handlers, for bulk registration via Use.
type Set map[string]Handler

// Stop is returned by a handler to halt propagation when the calling hook
// allows early exit.
var Stop any = stopSignal{}

type stopSignal struct{}

type entry struct {
	fn Handler
}

// Dispatcher is the named-hook registry. The zero value is not usable; use
// New.
type Dispatcher struct {
	mu    sync.RWMutex
	hooks map[string][]*entry
}

// New constructs an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{hooks: make(map[string][]*entry)}
}

// Register adds a handler to the named hook and returns an unregister
// callback. Handlers run in registration order unless prepend is set, in
// which case the handler runs before existing ones.
func (d *Dispatcher) Register(name string, h Handler, prepend bool) func() {
	if h == nil {
		return func() {}
	}
	e := &entry{fn: h}
	d.mu.Lock()
	if prepend {
		d.hooks[name] = append([]*entry{e}, d.hooks[name]...)
	} else {
		d.hooks[name] = append(d.hooks[name], e)
	}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(name, e) })
	}
}

// Use registers every hook/handler pair in the set and returns a remover that
// unregisters the same pairs.
func (d *Dispatcher) Use(set Set, prepend bool) func() {
	removers := make([]func(), 0, len(set))
	for name, h := range set {
		removers = append(removers, d.Register(name, h, prepend))
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

// Clear removes all handlers for one hook.
func (d *Dispatcher) Clear(name string) {
	d.mu.Lock()
	delete(d.hooks, name)
	d.mu.Unlock()
}

// Reset removes all handlers for all hooks.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.hooks = make(map[string][]*entry)
	d.mu.Unlock()
}

// Count returns the handler count for one hook.
func (d *Dispatcher) Count(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.hooks[name])
}

// Total returns the handler count across all hooks.
func (d *Dispatcher) Total() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total := 0
	for _, entries := range d.hooks {
		total += len(entries)
	}
	return total
}

func (d *Dispatcher) remove(name string, target *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.hooks[name]
	for i, e := range entries {
		if e == target {
			d.hooks[name] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) snapshot(name string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entries := d.hooks[name]
	out := make([]Handler, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	return out
}
