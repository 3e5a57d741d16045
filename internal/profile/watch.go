package profile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"reqmon/internal/logger"
)

// Watch refreshes cache whenever the profile file at path changes, until ctx
// is cancelled. The parent directory is watched so atomic saves (rename over
// the file) and deletions are seen too. Bursts of events are coalesced and
// reloads are limited to a few per second.
func Watch(ctx context.Context, path string, cache *Cache) error {
	log := logger.WithComponent("profile_watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)
	log.Info().Str("path", target).Msg("watching profile for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, target) {
				continue
			}

			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			drain(watcher.Events)

			p := cache.Refresh(ctx)
			log.Info().
				Str("path", target).
				Str("op", event.Op.String()).
				Int("domains", len(p.Domains)).
				Int("rules", len(p.Rules)).
				Msg("profile reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("profile watcher error")
		}
	}
}

func relevant(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}

// drain discards events already queued; the reload that follows covers them.
func drain(events <-chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
