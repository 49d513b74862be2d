package cache

import (
	"context"
	"fmt"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/singleflight"
	"strings"
	"sync/atomic"
)

const (
	ElectionsKey  = "elections"
	CandidatesKey = "candidates"

	electionPrefix  = "election:"
	candidatePrefix = "candidate:"
	votedPrefix     = "voted:"
)

func ElectionKey(id string) string  { return electionPrefix + id }
func CandidateKey(id string) string { return candidatePrefix + id }

func HasVotedKey(electionID, positionID, voter string) string {
	return votedPrefix + electionID + ":" + positionID + ":" + strings.ToLower(voter)
}

// Invalidator is the part of the cache writers and the synchronizer use.
type Invalidator interface {
	Invalidate(keys ...string)
	InvalidateAll()
}

type Loader func(ctx context.Context) (interface{}, error)

// QueryCache memoizes ledger reads by key. Concurrent fetches of one key share
// a single load, and a load that overlaps an invalidation is returned to its
// callers but not stored.
type QueryCache struct {
	entries    *lru.Cache[string, interface{}]
	flights    singleflight.Group
	generation uint64
	logger     log.Logger
}

func New(size int, logger log.Logger) (*QueryCache, error) {
	entries, err := lru.New[string, interface{}](size)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}
	return &QueryCache{entries: entries, logger: logger.With("module", "cache")}, nil
}

func (c *QueryCache) Fetch(ctx context.Context, key string, load Loader) (interface{}, error) {
	if value, ok := c.entries.Get(key); ok {
		return value, nil
	}
	value, err, _ := c.flights.Do(key, func() (interface{}, error) {
		generation := atomic.LoadUint64(&c.generation)
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if atomic.LoadUint64(&c.generation) == generation {
			c.entries.Add(key, value)
		}
		return value, nil
	})
	return value, err
}

func (c *QueryCache) Contains(key string) bool {
	return c.entries.Contains(key)
}

func (c *QueryCache) Len() int {
	return c.entries.Len()
}

func (c *QueryCache) Invalidate(keys ...string) {
	atomic.AddUint64(&c.generation, 1)
	for _, key := range keys {
		c.entries.Remove(key)
		c.flights.Forget(key)
	}
	c.logger.Debug("Invalidated cache keys", "keys", keys)
}

func (c *QueryCache) InvalidateAll() {
	atomic.AddUint64(&c.generation, 1)
	for _, key := range c.entries.Keys() {
		c.flights.Forget(key)
	}
	c.entries.Purge()
	c.logger.Debug("Invalidated whole cache")
}
