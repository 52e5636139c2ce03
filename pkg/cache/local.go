package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

// localCache is a size bounded LRU. The LRU ttl is the default expiration;
// shorter per-key expirations are checked on read.
type localCache struct {
	config LocalConfig
	lru    *expirable.LRU[string, localEntry]
}

// NewLocalCache creates a new local cache instance
func NewLocalCache(config LocalConfig) Cache {
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	if config.DefaultExpiration <= 0 {
		config.DefaultExpiration = 5 * time.Minute
	}
	return &localCache{
		config: config,
		lru:    expirable.NewLRU[string, localEntry](config.MaxSize, nil, config.DefaultExpiration),
	}
}

func (lc *localCache) lookup(key string) (localEntry, bool) {
	entry, ok := lc.lru.Get(key)
	if !ok {
		return localEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		lc.lru.Remove(key)
		return localEntry{}, false
	}
	return entry, true
}

func (lc *localCache) Get(ctx context.Context, key string) (string, bool) {
	entry, ok := lc.lookup(key)
	return entry.value, ok
}

func (lc *localCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if expiration <= 0 || expiration > lc.config.DefaultExpiration {
		expiration = lc.config.DefaultExpiration
	}
	lc.lru.Add(key, localEntry{value: value, expiresAt: time.Now().Add(expiration)})
	return nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.lru.Remove(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.lookup(key)
	return ok
}

func (lc *localCache) GetWithTTL(ctx context.Context, key string) (string, time.Duration, bool) {
	entry, ok := lc.lookup(key)
	if !ok {
		return "", 0, false
	}
	return entry.value, time.Until(entry.expiresAt), true
}

func (lc *localCache) Close() error {
	lc.lru.Purge()
	return nil
}
