/*
Package realtime contains the core logic of the realtime synchronization service.

This file defines the Router, which fans every decoded inbound event out to the
fixed sinks (read-status ledger, notification aggregator) and to the ad-hoc
registered callbacks whose predicates match.
*/
package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"storesync/internal/app/event"
	"storesync/internal/pkg/logx"
)

// Router dispatches decoded events to in-process consumers.
//
// Dispatch runs on the connection's read-loop goroutine, so delivery order
// matches transport order for any single topic; nothing is guaranteed across
// topics, and consumers are written to be order-independent there.
//
// The router never suppresses self-authored echoes: dropping them here would
// also drop legitimate multi-device echoes. Views deduplicate by message id.
type Router struct {
	// sinks receive every event unconditionally; they decide relevance
	// internally.
	sinks []func(event.Event)

	mu           sync.RWMutex
	callbacks    map[int]callback
	nextCallback int

	logger zerolog.Logger
}

// callback pairs a predicate with its handler.
type callback struct {
	matches func(event.Event) bool
	handle  func(event.Event)
}

// NewRouter constructs a Router with its fixed sinks.
func NewRouter(sinks ...func(event.Event)) *Router {
	return &Router{
		sinks:     sinks,
		callbacks: make(map[int]callback),
		logger:    logx.Component("router"),
	}
}

// Dispatch delivers one event to every sink and every matching callback.
func (r *Router) Dispatch(ev event.Event) {
	for _, sink := range r.sinks {
		sink(ev)
	}

	r.mu.RLock()
	matched := make([]func(event.Event), 0, len(r.callbacks))
	for _, cb := range r.callbacks {
		if cb.matches == nil || cb.matches(ev) {
			matched = append(matched, cb.handle)
		}
	}
	r.mu.RUnlock()

	for _, handle := range matched {
		handle(ev)
	}
}

// RegisterCallback registers an ad-hoc observer and returns its disposer.
// Every registration must be released on view teardown; a leaked disposer is
// a correctness bug in the caller.
func (r *Router) RegisterCallback(matches func(event.Event) bool, handle func(event.Event)) func() {
	r.mu.Lock()
	id := r.nextCallback
	r.nextCallback++
	r.callbacks[id] = callback{matches: matches, handle: handle}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.callbacks, id)
		r.mu.Unlock()
	}
}

// CallbackCount returns the number of live registrations. Diagnostic.
func (r *Router) CallbackCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callbacks)
}
