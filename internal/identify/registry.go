package identify

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/herdwatch/herdwatch-go/internal/datastore"
)

const (
	tagsCacheKey   = "tag_ids"
	printsCacheKey = "muzzle_prints"
)

// Registry caches the known tag IDs and muzzle print hashes so the resolver
// does not hit the database on every frame. Entries expire on a TTL and are
// refreshed lazily on the next lookup. Read-only during a frame.
type Registry struct {
	ds    datastore.Interface
	cache *gocache.Cache
}

// NewRegistry builds a registry over the datastore with the given TTL.
func NewRegistry(ds datastore.Interface, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		ds:    ds,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Tags returns the tag_id to animal ID mapping, refreshing from the
// datastore when the cached copy has expired.
func (r *Registry) Tags() (map[string]uint, error) {
	if cached, found := r.cache.Get(tagsCacheKey); found {
		return cached.(map[string]uint), nil
	}
	tags, err := r.ds.GetAllTagIDs()
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(tagsCacheKey, tags)
	return tags, nil
}

// MuzzlePrints returns the muzzle hash to animal ID mapping.
func (r *Registry) MuzzlePrints() (map[string]uint, error) {
	if cached, found := r.cache.Get(printsCacheKey); found {
		return cached.(map[string]uint), nil
	}
	prints, err := r.ds.GetAllMuzzleHashes()
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(printsCacheKey, prints)
	return prints, nil
}

// Invalidate drops the cached mappings. Called after animal registration
// changes so new tags resolve without waiting out the TTL.
func (r *Registry) Invalidate() {
	r.cache.Delete(tagsCacheKey)
	r.cache.Delete(printsCacheKey)
}
