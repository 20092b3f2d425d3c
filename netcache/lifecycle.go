package netcache

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"
)

// ControlKind discriminates control messages.
type ControlKind int

const (
	// ControlSkipWaiting activates the current generation immediately,
	// purging every superseded one.
	ControlSkipWaiting ControlKind = iota
	// ControlCacheURLs precaches the listed URLs into the current
	// generation.
	ControlCacheURLs
)

// Control is an out-of-band instruction to the cache layer.
type Control struct {
	Kind ControlKind
	URLs []string
}

// Send delivers a control message. It never blocks; a full channel drops
// the message with a warning.
func (t *Transport) Send(msg Control) {
	select {
	case t.control <- msg:
	default:
		slog.Warn("cache control channel full, dropping message", "kind", msg.Kind)
	}
}

func (t *Transport) controlLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.control:
			switch msg.Kind {
			case ControlSkipWaiting:
				if err := t.Activate(ctx); err != nil {
					slog.Error("activation failed", "error", err)
				}
			case ControlCacheURLs:
				t.precache(ctx, msg.URLs)
			}
		}
	}
}

// Install precaches the shell manifest plus the offline fallback document
// into the current generation. A single unfetchable URL fails the install,
// matching the all-or-nothing contract of a version rollout.
func (t *Transport) Install(ctx context.Context, manifest []string) error {
	urls := make([]string, 0, len(manifest)+1)
	urls = append(urls, manifest...)
	urls = append(urls, t.fallbackURL)

	for _, url := range urls {
		if err := t.fetchInto(ctx, url); err != nil {
			return errors.Wrapf(err, "precache %s", url)
		}
	}
	slog.Info("cache generation installed", "generation", t.generation, "urls", len(urls))
	return nil
}

// Activate deletes every generation other than the current one, wholesale.
func (t *Transport) Activate(ctx context.Context) error {
	generations, err := t.store.ListCacheGenerations(ctx)
	if err != nil {
		return errors.Wrap(err, "list cache generations")
	}
	for _, generation := range generations {
		if generation == t.generation {
			continue
		}
		if err := t.store.DeleteCacheGeneration(ctx, generation); err != nil {
			return errors.Wrapf(err, "delete cache generation %s", generation)
		}
		slog.Info("purged superseded cache generation", "generation", generation)
	}
	return nil
}

// precache is the forgiving variant used by CacheURLs: individual failures
// are logged and skipped.
func (t *Transport) precache(ctx context.Context, urls []string) {
	for _, url := range urls {
		if err := t.fetchInto(ctx, url); err != nil {
			slog.Warn("precache failed", "url", url, "error", err)
		}
	}
}

func (t *Transport) fetchInto(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.resolve(url), nil)
	if err != nil {
		return err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	t.persist(ctx, cacheKey(req), resp.StatusCode, resp.Header, body)
	return nil
}
