// Package cache provides in-process caching for quick ledger reads.
// The SQLite ledger stays the source of truth; entries are invalidated on write.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MRamiBalles/TankArenaBridge/internal/infra/storage"
)

const (
	DefaultSize       = 256
	DefaultExpiration = 15 * time.Minute

	standingsKey = "standings"
)

// EpisodeCache is a read-through cache in front of the episode ledger.
type EpisodeCache struct {
	repo      storage.EpisodeRepository
	recon     *storage.Reconstructor
	episodes  *expirable.LRU[string, storage.EpisodeRecord]
	standings *expirable.LRU[string, *storage.Standings]
}

// NewEpisodeCache creates a cache holding up to size episodes.
func NewEpisodeCache(repo storage.EpisodeRepository, recon *storage.Reconstructor, size int, expiration time.Duration) *EpisodeCache {
	if size <= 0 {
		size = DefaultSize
	}
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	return &EpisodeCache{
		repo:      repo,
		recon:     recon,
		episodes:  expirable.NewLRU[string, storage.EpisodeRecord](size, nil, expiration),
		standings: expirable.NewLRU[string, *storage.Standings](1, nil, expiration),
	}
}

// Get returns one episode, or nil when the ledger has no such episode.
// Misses are not cached.
func (c *EpisodeCache) Get(ctx context.Context, id string) (*storage.EpisodeRecord, error) {
	if rec, ok := c.episodes.Get(id); ok {
		return &rec, nil
	}

	rec, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load episode %s: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}
	c.episodes.Add(id, *rec)
	return rec, nil
}

// Standings returns the reconstructed league table, rebuilding it on a miss.
func (c *EpisodeCache) Standings(ctx context.Context) (*storage.Standings, error) {
	if s, ok := c.standings.Get(standingsKey); ok {
		return s, nil
	}
	s, err := c.recon.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	c.standings.Add(standingsKey, s)
	return s, nil
}

// Invalidate drops one episode and the derived standings.
func (c *EpisodeCache) Invalidate(id string) {
	c.episodes.Remove(id)
	c.standings.Purge()
}

// Len reports the number of cached episodes.
func (c *EpisodeCache) Len() int {
	return c.episodes.Len()
}
