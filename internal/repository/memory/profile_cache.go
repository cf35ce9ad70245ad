// Package memory keeps the profile cache in process memory. It is the
// default backend and the one used by tests.
package memory

import (
	"context"
	"sync"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// ProfileCache stores display fields per producer address.
type ProfileCache struct {
	mu       sync.RWMutex
	profiles map[string]models.CachedProfile
}

// NewProfileCache returns an empty cache.
func NewProfileCache() *ProfileCache {
	return &ProfileCache{profiles: make(map[string]models.CachedProfile)}
}

// GetCachedProfile returns a copy of the fields cached for address.
func (c *ProfileCache) GetCachedProfile(_ context.Context, address string) (models.CachedProfile, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[address]
	if !ok {
		return nil, false, nil
	}
	return p.Merge(nil), true, nil
}

// SetCachedProfile merges fields into the entry for address.
func (c *ProfileCache) SetCachedProfile(_ context.Context, address string, fields models.CachedProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[address] = c.profiles[address].Merge(fields.Cacheable())
	return nil
}
