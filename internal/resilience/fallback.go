package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/jarvis/pkg/provider/live"
)

// ErrAllFailed is returned when no provider in a [Fallback] could open a
// session.
var ErrAllFailed = errors.New("all providers failed")

type fallbackEntry struct {
	name     string
	provider live.Provider
	breaker  *CircuitBreaker
}

// Fallback is a [live.Provider] that opens sessions on the first healthy
// provider in registration order. Each provider sits behind its own
// [CircuitBreaker]. Only session establishment fails over; an open session
// that later breaks is reported to the caller as usual.
type Fallback struct {
	cfg     CircuitBreakerConfig
	entries []fallbackEntry
}

var _ live.Provider = (*Fallback)(nil)

// NewFallback creates a [Fallback] with primary as the preferred provider.
// cfg is applied to every breaker; its Name is replaced by the provider name.
func NewFallback(primaryName string, primary live.Provider, cfg CircuitBreakerConfig) *Fallback {
	f := &Fallback{cfg: cfg}
	f.Add(primaryName, primary)
	return f
}

// Add registers a provider tried after all previously added ones. It must not
// be called concurrently with Connect.
func (f *Fallback) Add(name string, p live.Provider) {
	cfg := f.cfg
	cfg.Name = name
	f.entries = append(f.entries, fallbackEntry{name: name, provider: p, breaker: NewCircuitBreaker(cfg)})
}

// Breaker returns the circuit breaker guarding the named provider, or nil.
func (f *Fallback) Breaker(name string) *CircuitBreaker {
	for i := range f.entries {
		if f.entries[i].name == name {
			return f.entries[i].breaker
		}
	}
	return nil
}

// Connect implements [live.Provider]. Providers whose breaker is open are
// skipped. A cancelled ctx stops the walk immediately.
func (f *Fallback) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	var errs []error
	for i := range f.entries {
		e := &f.entries[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var sess live.Session
		err := e.breaker.Execute(func() error {
			var err error
			sess, err = e.provider.Connect(ctx, cfg)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Info("live session opened on fallback provider", "provider", e.name)
			}
			return sess, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", e.name)
		} else {
			slog.Warn("provider failed to open session", "provider", e.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
