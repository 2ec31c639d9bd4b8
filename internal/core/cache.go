package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CacheScope selects which requests may share an analysis result.
type CacheScope string

const (
	// ScopeNone disables caching.
	ScopeNone CacheScope = "none"
	// ScopeShared lets any request reuse a result for the same image and model.
	ScopeShared CacheScope = "shared"
	// ScopeSession limits reuse to one browser session.
	ScopeSession CacheScope = "session"
	// ScopeCredential limits reuse to callers presenting the same model key.
	ScopeCredential CacheScope = "credential"
)

// ParseCacheScope accepts the scope names case-insensitively.
func ParseCacheScope(s string) (CacheScope, error) {
	switch scope := CacheScope(strings.ToLower(strings.TrimSpace(s))); scope {
	case ScopeNone, ScopeShared, ScopeSession, ScopeCredential:
		return scope, nil
	case "":
		return ScopeCredential, nil
	default:
		return "", fmt.Errorf("unknown cache scope %q (want none, shared, session or credential)", s)
	}
}

// CacheKeyInput identifies an analysis request.
type CacheKeyInput struct {
	Image      []byte
	Provider   string
	Model      string
	SessionID  string
	Credential string
}

type cacheEntry struct {
	cells   []Cell
	created time.Time
}

// AnalysisCache holds analyzer output keyed by image, provider, model and
// scope seed.
// Raw credentials never appear in keys: the credential scope seeds with an
// HMAC of the credential under a process secret.
type AnalysisCache struct {
	scope      CacheScope
	ttl        time.Duration
	maxEntries int
	secret     []byte
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

// NewAnalysisCache builds a cache. An empty secret is replaced by 32 random
// bytes, so keys do not survive a restart.
func NewAnalysisCache(scope CacheScope, ttl time.Duration, maxEntries int, secret string) (*AnalysisCache, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}

	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate cache secret: %w", err)
		}
	}

	return &AnalysisCache{
		scope:      scope,
		ttl:        ttl,
		maxEntries: maxEntries,
		secret:     key,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}, nil
}

// Scope returns the configured scope.
func (c *AnalysisCache) Scope() CacheScope {
	return c.scope
}

// CredentialSeed is the hex HMAC-SHA256 of credential under the cache secret.
func (c *AnalysisCache) CredentialSeed(credential string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(credential))
	return hex.EncodeToString(mac.Sum(nil))
}

// Key derives the cache key for in. ok is false when the request must not
// be cached: scope none, or a scoped request missing its seed.
func (c *AnalysisCache) Key(in CacheKeyInput) (key string, ok bool) {
	var seed string
	switch c.scope {
	case ScopeShared:
	case ScopeSession:
		if in.SessionID == "" {
			return "", false
		}
		seed = "session:" + in.SessionID
	case ScopeCredential:
		if in.Credential == "" {
			return "", false
		}
		seed = "credential:" + c.CredentialSeed(in.Credential)
	default:
		return "", false
	}

	h := sha256.New()
	h.Write([]byte(seed))
	h.Write([]byte{0})
	h.Write([]byte(in.Provider))
	h.Write([]byte{0})
	h.Write([]byte(in.Model))
	h.Write([]byte{0})
	h.Write(in.Image)
	return hex.EncodeToString(h.Sum(nil)), true
}

// Get returns a copy of the cached cells for key.
func (c *AnalysisCache) Get(key string) ([]Cell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.created) > c.ttl {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return append([]Cell(nil), e.cells...), true
}

// Put stores a copy of cells, evicting the oldest entry when full.
func (c *AnalysisCache) Put(key string, cells []Cell) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{cells: append([]Cell(nil), cells...), created: c.now()}
}

func (c *AnalysisCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.created.Before(oldest) {
			oldestKey, oldest = k, e.created
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Prune drops expired entries and returns how many were removed.
func (c *AnalysisCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.created) > c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// CacheStats is reported on the health endpoint.
type CacheStats struct {
	Scope   CacheScope `json:"scope"`
	Entries int        `json:"entries"`
	Hits    int64      `json:"hits"`
	Misses  int64      `json:"misses"`
}

// Stats returns counters.
func (c *AnalysisCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Scope: c.scope, Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
