// Package route maps a store identifier to the publish targets configured
// for it. The routing table is loaded once at process start and injected;
// an unknown store is a hard configuration error, never a silent no-op.
package route

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/config"
	"github.com/storeberg/crosspost/internal/identity"
	"github.com/storeberg/crosspost/internal/publish"
)

// Router resolves store_id fan-out, attaching the access token authorized
// for each destination account.
type Router struct {
	routes *config.Routes
	tokens identity.Provider
}

// NewRouter creates a Router over the injected routing table.
func NewRouter(routes *config.Routes, tokens identity.Provider) *Router {
	return &Router{routes: routes, tokens: tokens}
}

// Route returns the publish targets for storeID. Fan-out is deterministic:
// targets come back in configuration order.
func (r *Router) Route(ctx context.Context, storeID string) ([]publish.Target, error) {
	entries, ok := r.routes.Stores[storeID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown store %q", publish.ErrConfiguration, storeID)
	}

	targets := make([]publish.Target, 0, len(entries))
	for _, e := range entries {
		token, err := r.tokens.Token(ctx, e.AccountID)
		if err != nil {
			return nil, fmt.Errorf("resolve token for %s account %s: %w", e.Platform, e.AccountID, err)
		}
		targets = append(targets, publish.Target{
			Platform:    publish.Platform(e.Platform),
			AccountID:   e.AccountID,
			AccessToken: token,
			Hints:       e.Hints,
		})
	}

	log.Debug().Str("storeId", storeID).Int("targets", len(targets)).Msg("Store routed")
	return targets, nil
}
