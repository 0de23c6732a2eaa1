package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryBackend keeps session values in process memory. Entries do not
// survive a restart and are not shared between processes.
type MemoryBackend struct {
	cache *cache.Cache
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns a MemoryBackend whose entries expire after
// defaultTTL unless Save is given a ttl, swept every cleanupInterval.
func NewMemoryBackend(defaultTTL, cleanupInterval time.Duration) *MemoryBackend {
	return &MemoryBackend{cache: cache.New(defaultTTL, cleanupInterval)}
}

func (b *MemoryBackend) Load(_ context.Context, id string) (Values, error) {
	v, found := b.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	return copyValues(v.(Values)), nil
}

// Save stores a copy of values. A ttl of zero uses the backend default.
func (b *MemoryBackend) Save(_ context.Context, id string, values Values, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	b.cache.Set(id, copyValues(values), ttl)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.cache.Delete(id)
	return nil
}

// Len returns the number of stored sessions, expired ones included until the
// next sweep.
func (b *MemoryBackend) Len() int {
	return b.cache.ItemCount()
}

// Requests for the same session may run concurrently; each gets its own map.
func copyValues(v Values) Values {
	res := make(Values, len(v))
	for k, val := range v {
		res[k] = val
	}
	return res
}
