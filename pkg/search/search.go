// Package search implements the debounced city autocomplete: keystrokes
// past a minimum length schedule a geocoding query after a quiet period,
// and a newer keystroke for the same key supersedes the pending one.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/atrium-sh/atrium/pkg/dashboard"
	"github.com/atrium-sh/atrium/pkg/tasks"
)

// ErrSuperseded reports that a newer query for the same key replaced this
// one. Callers drop the result; only the latest query's candidates are
// ever shown.
var ErrSuperseded = errors.New("query superseded")

// Defaults matching the dashboard's input behavior.
const (
	DefaultDebounce   = 300 * time.Millisecond
	DefaultMinChars   = 2
	DefaultMaxResults = 5
)

// Autocomplete debounces geocoding lookups per key. The key identifies one
// input session (one text field); concurrent sessions do not supersede
// each other.
type Autocomplete struct {
	geocoder   dashboard.Geocoder
	runner     *tasks.KeyedRunner
	debounce   time.Duration
	minChars   int
	maxResults int
}

// Option tweaks an Autocomplete.
type Option func(*Autocomplete)

// WithDebounce overrides the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(a *Autocomplete) { a.debounce = d }
}

// WithMinChars overrides the minimum query length.
func WithMinChars(n int) Option {
	return func(a *Autocomplete) { a.minChars = n }
}

// WithMaxResults overrides the candidate cap.
func WithMaxResults(n int) Option {
	return func(a *Autocomplete) { a.maxResults = n }
}

// New returns an autocomplete over the given geocoder.
func New(geocoder dashboard.Geocoder, opts ...Option) *Autocomplete {
	a := &Autocomplete{
		geocoder:   geocoder,
		runner:     tasks.NewKeyedRunner(),
		debounce:   DefaultDebounce,
		minChars:   DefaultMinChars,
		maxResults: DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Query schedules a lookup for the typed text. It blocks through the
// debounce window and the provider call, returning the candidates, or
// ErrSuperseded when a newer query for the same key arrived in the
// meantime. Input shorter than the minimum returns no candidates
// immediately and cancels any pending query so the suggestion list hides.
func (a *Autocomplete) Query(ctx context.Context, key, text string) ([]dashboard.Location, error) {
	if len([]rune(text)) < a.minChars {
		a.runner.Cancel(key)
		return nil, nil
	}

	qctx, release := a.runner.Start(ctx, key)
	defer release()

	timer := time.NewTimer(a.debounce)
	defer timer.Stop()
	select {
	case <-qctx.Done():
		return nil, supersededOr(ctx)
	case <-timer.C:
	}

	locs, err := a.geocoder.Geocode(qctx, text, a.maxResults)
	if err != nil {
		if qctx.Err() != nil {
			return nil, supersededOr(ctx)
		}
		return nil, err
	}
	return locs, nil
}

// Close cancels every pending query.
func (a *Autocomplete) Close() {
	a.runner.CancelAll()
}

// supersededOr distinguishes a caller-side cancellation from a newer query
// stealing the token.
func supersededOr(parent context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return ErrSuperseded
}
