// Package locator guarantees converted media is reachable at a stable
// public HTTPS URL before any platform publisher sees it. Platforms fetch
// media server-side and fail opaquely on unreachable URLs, so the locator
// verifies reachability with a HEAD request and fails fast locally.
package locator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/media"
	"github.com/storeberg/crosspost/internal/publish"
)

// Backend identifies which strategy produced a durable URL.
type Backend string

const (
	BackendPassthrough Backend = "passthrough"
	BackendLocal       Backend = "local"
	BackendMirror      Backend = "mirror"
)

// Ref is a durable, publicly reachable reference to a media asset.
// PublicURL has answered a 2xx HEAD before the Ref leaves this package.
type Ref struct {
	PublicURL   string
	Backend     Backend
	ContentType string

	// LocalPath is the on-disk copy still available for direct binary
	// upload, when one exists. Empty after a mirror upload (the temp
	// source is deleted once the mirrored URL verifies).
	LocalPath string
}

// headTimeout bounds the reachability check.
const headTimeout = 10 * time.Second

// strategy is one way of obtaining a durable URL. ok=false means the
// strategy does not apply to this asset and the chain moves on.
type strategy interface {
	name() string
	locate(ctx context.Context, asset media.Asset) (Ref, bool, error)
}

// Locator tries its strategies in order and stops at the first verified
// success.
type Locator struct {
	strategies []strategy
	headClient *http.Client
}

// New builds a Locator. local and mirror are optional; passing nil skips
// that strategy. At least one of them should be configured or only
// by-reference submissions will ever succeed.
func New(local *LocalStore, mirror *MirrorStore) *Locator {
	l := &Locator{
		headClient: &http.Client{Timeout: headTimeout},
	}
	l.strategies = append(l.strategies, passthrough{})
	if local != nil {
		l.strategies = append(l.strategies, local)
	}
	if mirror != nil {
		l.strategies = append(l.strategies, mirror)
	}
	return l
}

// Locate returns a verified durable reference for the asset, trying
// strategies in order. All-strategies-failed is a LocatorError.
//
// Locate never deletes the source file: several publish targets may
// share one asset, so cleanup belongs to whoever owns the whole run.
func (l *Locator) Locate(ctx context.Context, asset media.Asset) (Ref, error) {
	var lastErr error

	for _, s := range l.strategies {
		ref, ok, err := s.locate(ctx, asset)
		if err != nil {
			log.Warn().Err(err).Str("strategy", s.name()).Msg("Locator strategy failed, trying next")
			lastErr = err
			continue
		}
		if !ok {
			continue
		}

		if err := l.verify(ctx, ref.PublicURL); err != nil {
			log.Warn().Err(err).Str("strategy", s.name()).Str("url", ref.PublicURL).
				Msg("Durable URL failed reachability check, trying next strategy")
			lastErr = err
			continue
		}

		log.Info().
			Str("strategy", s.name()).
			Str("url", ref.PublicURL).
			Str("contentType", ref.ContentType).
			Msg("Durable media URL obtained")
		return ref, nil
	}

	if lastErr != nil {
		return Ref{}, fmt.Errorf("%w: all strategies exhausted: %v", publish.ErrLocator, lastErr)
	}
	return Ref{}, fmt.Errorf("%w: no strategy applicable to this asset", publish.ErrLocator)
}

// verify issues a HEAD request and requires a 2xx answer.
func (l *Locator) verify(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("build HEAD request: %w", err)
	}

	resp, err := l.headClient.Do(req)
	if err != nil {
		return fmt.Errorf("HEAD %s: %w", url, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HEAD %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// passthrough applies when the media was supplied by HTTPS reference and
// was not converted (SourceURL survives conversion only for no-ops).
type passthrough struct{}

func (passthrough) name() string { return "passthrough" }

func (passthrough) locate(_ context.Context, asset media.Asset) (Ref, bool, error) {
	if asset.SourceURL == "" || !strings.HasPrefix(asset.SourceURL, "https://") {
		return Ref{}, false, nil
	}
	return Ref{
		PublicURL:   asset.SourceURL,
		Backend:     BackendPassthrough,
		ContentType: asset.MIME,
		LocalPath:   asset.Path,
	}, true, nil
}
