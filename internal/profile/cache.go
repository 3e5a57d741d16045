package profile

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"reqmon/internal/logger"
	"reqmon/internal/metrics"
)

// ErrNoProfile is returned by Current before any profile has been published.
var ErrNoProfile = errors.New("profile not loaded")

// Source is what readers of the profile depend on.
type Source interface {
	Current() (*Profile, error)
}

// Cache publishes provider snapshots with an atomic pointer swap. Readers
// never block on a refresh and never observe a partially loaded profile.
type Cache struct {
	provider Provider
	interval time.Duration

	current  atomic.Pointer[Profile]
	loadedAt atomic.Int64
}

// NewCache creates a cache that refreshes from provider every interval once
// Run is started.
func NewCache(provider Provider, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Cache{
		provider: provider,
		interval: interval,
	}
}

// Current returns the most recently published profile.
func (c *Cache) Current() (*Profile, error) {
	p := c.current.Load()
	if p == nil {
		return nil, ErrNoProfile
	}
	return p, nil
}

// LoadedAt returns when the current snapshot was published.
func (c *Cache) LoadedAt() time.Time {
	ns := c.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Refresh loads a new snapshot and publishes it.
func (c *Cache) Refresh(ctx context.Context) *Profile {
	p := c.provider.Load(ctx)
	if p == nil {
		p = Empty()
	}
	c.current.Store(p)
	c.loadedAt.Store(time.Now().UnixNano())
	metrics.ProfileRules.Set(float64(len(p.Rules)))
	return p
}

// Run refreshes the snapshot every interval until ctx is cancelled. A
// snapshot is published immediately if none exists yet.
func (c *Cache) Run(ctx context.Context) error {
	log := logger.WithComponent("profile_cache")
	if c.current.Load() == nil {
		c.Refresh(ctx)
	}

	log.Info().Dur("interval", c.interval).Msg("profile refresh started")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("profile refresh stopped")
			return nil
		case <-ticker.C:
			p := c.Refresh(ctx)
			log.Debug().
				Int("domains", len(p.Domains)).
				Int("rules", len(p.Rules)).
				Msg("profile refreshed")
		}
	}
}
