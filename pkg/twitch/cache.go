package twitch

import (
	"sync"
	"time"
)

// clipCacheTTL and loginCacheTTL bound how long a lookup is trusted
// before a fresh Helix call is made. Cliparino is a single process with
// no shared cache tier, so an in-memory map serves the cache instead of
// a networked one.
const (
	clipCacheTTL  = 5 * time.Minute
	loginCacheTTL = time.Hour
)

type clipCacheEntry struct {
	clip      Clip
	expiresAt time.Time
}

type loginCacheEntry struct {
	broadcasterID string
	expiresAt     time.Time
}

// memoryCache is a small TTL cache for clip-by-id and
// broadcaster-id-by-login lookups, guarded by a single mutex since hit
// rates are low enough that lock contention never matters here.
type memoryCache struct {
	mu     sync.Mutex
	clips  map[string]clipCacheEntry
	logins map[string]loginCacheEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		clips:  make(map[string]clipCacheEntry),
		logins: make(map[string]loginCacheEntry),
	}
}

func (c *memoryCache) getClip(id string) (Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.clips[id]
	if !ok || time.Now().After(e.expiresAt) {
		return Clip{}, false
	}
	return e.clip, true
}

func (c *memoryCache) putClip(clip Clip) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clips[clip.ID] = clipCacheEntry{clip: clip, expiresAt: time.Now().Add(clipCacheTTL)}
}

func (c *memoryCache) getBroadcasterID(login string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.logins[login]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.broadcasterID, true
}

func (c *memoryCache) putBroadcasterID(login, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins[login] = loginCacheEntry{broadcasterID: id, expiresAt: time.Now().Add(loginCacheTTL)}
}
