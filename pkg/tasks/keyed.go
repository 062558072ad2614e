// Package tasks provides keyed cancellable operations: each key owns at
// most one live cancellation token, and starting a new operation for a key
// cancels the previous one. This backs the latest-wins semantics of the
// city autocomplete and similar superseding requests.
package tasks

import (
	"context"
	"sync"
)

type token struct {
	cancel context.CancelFunc
}

// KeyedRunner hands out one cancellation token per key.
type KeyedRunner struct {
	mu     sync.Mutex
	active map[string]*token
}

// NewKeyedRunner returns an empty runner.
func NewKeyedRunner() *KeyedRunner {
	return &KeyedRunner{active: make(map[string]*token)}
}

// Start cancels any operation currently registered under key and returns a
// fresh context for the new one. The returned release func must be called
// when the operation finishes; it cancels the context and drops the
// registration unless a successor already replaced it.
func (r *KeyedRunner) Start(parent context.Context, key string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	tok := &token{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.active[key]; ok {
		prev.cancel()
	}
	r.active[key] = tok
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if r.active[key] == tok {
			delete(r.active, key)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Cancel aborts the operation registered under key, if any.
func (r *KeyedRunner) Cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok, ok := r.active[key]; ok {
		tok.cancel()
		delete(r.active, key)
	}
}

// CancelAll aborts every registered operation.
func (r *KeyedRunner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, tok := range r.active {
		tok.cancel()
		delete(r.active, key)
	}
}

// Active reports how many keys currently hold a token.
func (r *KeyedRunner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
