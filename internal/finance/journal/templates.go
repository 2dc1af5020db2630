package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// TemplateCache fronts template lookups with a per-tenant TTL cache.
// Lookups for the same key are collapsed through singleflight so a cold
// cache does not stampede the store. Invalidation is explicit: configuration
// CRUD (outside this engine) calls Invalidate after changing a template.
type TemplateCache struct {
	store TemplateSource
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[templateKey]templateCacheEntry
	group   singleflight.Group
	now     func() time.Time
}

type templateKey struct {
	tenantID   uuid.UUID
	sourceType SourceType
}

type templateCacheEntry struct {
	template VoucherTemplate
	expires  time.Time
}

// NewTemplateCache wraps a template source with a TTL cache.
func NewTemplateCache(store TemplateSource, ttl time.Duration) *TemplateCache {
	return &TemplateCache{
		store:   store,
		ttl:     ttl,
		entries: make(map[templateKey]templateCacheEntry),
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (c *TemplateCache) WithNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// ActiveTemplate returns the cached template or loads it from the store.
// Failures are not cached; the next call retries the store.
func (c *TemplateCache) ActiveTemplate(ctx context.Context, tenantID uuid.UUID, sourceType SourceType) (VoucherTemplate, error) {
	key := templateKey{tenantID: tenantID, sourceType: sourceType}

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(cached.expires) {
		return cached.template, nil
	}

	result, err, _ := c.group.Do(tenantID.String()+":"+string(sourceType), func() (any, error) {
		template, err := c.store.ActiveTemplate(ctx, tenantID, sourceType)
		if err != nil {
			return VoucherTemplate{}, err
		}
		c.mu.Lock()
		c.entries[key] = templateCacheEntry{template: template, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return template, nil
	})
	if err != nil {
		return VoucherTemplate{}, err
	}
	return result.(VoucherTemplate), nil
}

// Invalidate drops the cached template for one tenant and source type.
func (c *TemplateCache) Invalidate(tenantID uuid.UUID, sourceType SourceType) {
	c.mu.Lock()
	delete(c.entries, templateKey{tenantID: tenantID, sourceType: sourceType})
	c.mu.Unlock()
}

// InvalidateTenant drops every cached template for a tenant.
func (c *TemplateCache) InvalidateTenant(tenantID uuid.UUID) {
	c.mu.Lock()
	for key := range c.entries {
		if key.tenantID == tenantID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// repoTemplateSource adapts a Repository to the TemplateSource port.
type repoTemplateSource struct {
	repo Repository
}

// NewRepositoryTemplateSource exposes repo-backed template lookups.
func NewRepositoryTemplateSource(repo Repository) TemplateSource {
	return repoTemplateSource{repo: repo}
}

func (s repoTemplateSource) ActiveTemplate(ctx context.Context, tenantID uuid.UUID, sourceType SourceType) (VoucherTemplate, error) {
	return s.repo.FindActiveTemplate(ctx, tenantID, sourceType)
}
