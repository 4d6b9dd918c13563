package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Outcome of a dedup check.
type Outcome int

const (
	Unique Outcome = iota
	Duplicate
)

// Store is the atomic insert-if-absent primitive the guard runs on. The
// implementation must guarantee that for concurrent inserts of the same
// key at most one caller observes true — a read-then-write sequence is not
// an acceptable implementation.
type Store interface {
	InsertIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Guard checks submission fingerprints against the store within a window.
type Guard struct {
	store  Store
	window time.Duration
}

// NewGuard creates a Guard with the given dedup window.
func NewGuard(store Store, window time.Duration) *Guard {
	return &Guard{store: store, window: window}
}

// Window returns the configured dedup window.
func (g *Guard) Window() time.Duration { return g.window }

// CheckAndRegister atomically registers the fingerprint and reports
// whether this submission is the first occurrence inside the window.
func (g *Guard) CheckAndRegister(ctx context.Context, fp Fingerprint) (Outcome, error) {
	inserted, err := g.store.InsertIfAbsent(ctx, string(fp), g.window)
	if err != nil {
		return Unique, fmt.Errorf("dedup check for %s: %w", shortFP(fp), err)
	}
	if !inserted {
		log.Info().Str("fingerprint", shortFP(fp)).Dur("window", g.window).Msg("Duplicate submission skipped")
		return Duplicate, nil
	}
	return Unique, nil
}

// shortFP keeps logs readable; the full hash is only needed as a key.
func shortFP(fp Fingerprint) string {
	if len(fp) > 12 {
		return string(fp[:12])
	}
	return string(fp)
}
