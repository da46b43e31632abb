package region

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/presencectl/internal/clock"
	"github.com/rs/zerolog/log"
)

// Endpoint is where a chat session for one affinity is served.
type Endpoint struct {
	Affinity string
	Host     string
	Domain   string
}

// ConfigFetcher loads the player config.
type ConfigFetcher interface {
	FetchConfig(ctx context.Context, token, entitlement string) (Config, error)
}

// Resolver maps affinities to endpoints through a cached player config.
//
// The first Resolve populates the cache with the caller's credentials.
// Entries live for TTL (zero keeps them for the Resolver's lifetime). A
// lookup miss invalidates the cache and refetches once.
type Resolver struct {
	fetcher ConfigFetcher
	ttl     time.Duration
	clock   clock.Clock

	mu        sync.Mutex
	cached    *Config
	fetchedAt time.Time
}

func NewResolver(fetcher ConfigFetcher, ttl time.Duration, clk clock.Clock) *Resolver {
	if clk == nil {
		clk = clock.Real()
	}
	return &Resolver{fetcher: fetcher, ttl: ttl, clock: clk}
}

// Resolve returns the endpoint for affinity.
func (r *Resolver) Resolve(ctx context.Context, affinity, token, entitlement string) (Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, fresh, err := r.configLocked(ctx, token, entitlement)
	if err != nil {
		return Endpoint{}, err
	}
	if ep, ok := lookup(cfg, affinity); ok {
		return ep, nil
	}
	if fresh {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrRegionNotFound, affinity)
	}

	log.Info().Str("affinity", affinity).Msg("region.Resolver.Resolve cache miss, refetching player config")
	r.cached = nil
	cfg, _, err = r.configLocked(ctx, token, entitlement)
	if err != nil {
		return Endpoint{}, err
	}
	if ep, ok := lookup(cfg, affinity); ok {
		return ep, nil
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrRegionNotFound, affinity)
}

// Invalidate drops the cached config.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// configLocked returns the cached config, fetching when absent or stale.
// fresh reports whether this call performed the fetch.
func (r *Resolver) configLocked(ctx context.Context, token, entitlement string) (Config, bool, error) {
	now := r.clock.Now()
	if r.cached != nil && (r.ttl <= 0 || now.Sub(r.fetchedAt) < r.ttl) {
		return *r.cached, false, nil
	}
	cfg, err := r.fetcher.FetchConfig(ctx, token, entitlement)
	if err != nil {
		return Config{}, false, err
	}
	r.cached = &cfg
	r.fetchedAt = now
	log.Debug().
		Int("affinities", len(cfg.Affinities)).
		Int("domains", len(cfg.AffinityDomains)).
		Msg("region.Resolver player config cached")
	return cfg, true, nil
}

func lookup(cfg Config, affinity string) (Endpoint, bool) {
	host, ok := cfg.Affinities[affinity]
	if !ok {
		return Endpoint{}, false
	}
	domain, ok := cfg.AffinityDomains[affinity]
	if !ok {
		return Endpoint{}, false
	}
	return Endpoint{Affinity: affinity, Host: host, Domain: domain}, true
}
