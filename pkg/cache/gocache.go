package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCache wraps patrickmn/go-cache
type goCache struct {
	c *gocache.Cache
}

// NewGoCache creates a go-cache backed instance
func NewGoCache(config LocalConfig) Cache {
	defExp := config.DefaultExpiration
	if defExp <= 0 {
		defExp = 5 * time.Minute
	}
	cleanup := config.CleanupInterval
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &goCache{c: gocache.New(defExp, cleanup)}
}

func (g *goCache) Get(ctx context.Context, key string) (string, bool) {
	v, ok := g.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (g *goCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	g.c.Set(key, value, expiration)
	return nil
}

func (g *goCache) Delete(ctx context.Context, key string) error {
	g.c.Delete(key)
	return nil
}

func (g *goCache) Exists(ctx context.Context, key string) bool {
	_, ok := g.c.Get(key)
	return ok
}

func (g *goCache) GetWithTTL(ctx context.Context, key string) (string, time.Duration, bool) {
	v, exp, ok := g.c.GetWithExpiration(key)
	if !ok {
		return "", 0, false
	}
	s, _ := v.(string)
	if exp.IsZero() {
		return s, 0, true
	}
	return s, time.Until(exp), true
}

func (g *goCache) Close() error {
	g.c.Flush()
	return nil
}
