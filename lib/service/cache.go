package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
)

// ListingCache keeps per-cell listing query results, backed by the embedded
// store so a restart does not start cold. An entry is served until its cache
// TTL passes or the vertical's generation counter moves (a local publish or
// take-down bumps it, forcing the next read to hit the relays).
type ListingCache struct {
	svc *Service

	mu      sync.Mutex
	entries map[string]*cacheEntry
	gen     map[string]uint64 // per-vertical refresh generation
}

type cacheEntry struct {
	Listings  []*Listing `json:"listings"`
	FetchedAt time.Time  `json:"fetched_at"`
	gen       uint64
}

func NewListingCache(svc *Service) *ListingCache {
	return &ListingCache{
		svc:     svc,
		entries: map[string]*cacheEntry{},
		gen:     map[string]uint64{},
	}
}

// ForceRefresh invalidates every cached cell of the vertical. The persisted
// copies go too, so a warm-up after a restart cannot resurrect them.
func (c *ListingCache) ForceRefresh(vertical string) {
	c.mu.Lock()
	c.gen[vertical]++
	c.mu.Unlock()
	if err := c.svc.Store.DeletePrefix(c.svc.Store.ListingsPrefix(vertical)); err != nil {
		c.svc.Logger.Errorf("dropping persisted listing cache for %s: %v", vertical, err)
	}
}

// Listings returns the listings visible in the cell: geo-tagged ones for
// that cell plus the vertical's online-only ones. Served from cache when
// fresh, otherwise fetched from the relays and re-persisted.
func (c *ListingCache) Listings(ctx context.Context, vertical, cell string) ([]*Listing, error) {
	key := vertical + "/" + cell
	now := c.svc.clock.Now()

	c.mu.Lock()
	gen := c.gen[vertical]
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && entry.gen == gen && now.Sub(entry.FetchedAt) < c.svc.Config.CacheTTL() {
		return entry.Listings, nil
	}

	// warm memory from the store once per process
	if !ok {
		var persisted cacheEntry
		found, err := c.svc.Store.Get(c.svc.Store.ListingsKey(vertical, cell), &persisted)
		if err != nil {
			c.svc.Logger.Errorf("reading listing cache for %s: %v", key, err)
		}
		if found && now.Sub(persisted.FetchedAt) < c.svc.Config.CacheTTL() {
			c.mu.Lock()
			persisted.gen = gen
			c.entries[key] = &persisted
			c.mu.Unlock()
			return persisted.Listings, nil
		}
	}

	listings, err := c.fetch(ctx, vertical, cell, now)
	if err != nil {
		// stale beats empty when the relays are unreachable
		if ok {
			return entry.Listings, nil
		}
		return nil, err
	}

	fresh := &cacheEntry{Listings: listings, FetchedAt: now, gen: gen}
	c.mu.Lock()
	c.entries[key] = fresh
	c.mu.Unlock()
	if err := c.svc.Store.SetWithTTL(c.svc.Store.ListingsKey(vertical, cell), fresh, c.svc.Config.CacheTTL()); err != nil {
		c.svc.Logger.Errorf("persisting listing cache for %s: %v", key, err)
	}
	return listings, nil
}

func (c *ListingCache) fetch(ctx context.Context, vertical, cell string, now time.Time) ([]*Listing, error) {
	if connected, _ := c.svc.Pool.Status(); connected == 0 {
		return nil, fmt.Errorf("no relay connection")
	}
	events := c.svc.Pool.QuerySync(ctx, nostr.Filter{
		Kinds: []int{common.KindListing},
		Tags: nostr.TagMap{
			common.TagTopic:   []string{listingTopic(vertical)},
			common.TagGeohash: []string{cell},
		},
	})
	online := c.svc.Pool.QuerySync(ctx, nostr.Filter{
		Kinds: []int{common.KindListing},
		Tags:  nostr.TagMap{common.TagTopic: []string{listingTopic(vertical)}},
	})

	seen := map[string]bool{}
	var listings []*Listing
	for _, ev := range append(events, online...) {
		if eventExpired(ev, now) {
			continue
		}
		l, err := parseListingEvent(ev)
		if err != nil {
			c.svc.Logger.Debugf("ignoring listing event: %v", err)
			continue
		}
		// the second query is vertical-wide; keep only online listings from it
		if l.Geohash != "" && l.Geohash != cell {
			continue
		}
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		listings = append(listings, l)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Timestamp.After(listings[j].Timestamp)
	})
	return listings, nil
}
