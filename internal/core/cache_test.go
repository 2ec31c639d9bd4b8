package core

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, scope CacheScope) *AnalysisCache {
	t.Helper()
	c, err := NewAnalysisCache(scope, time.Hour, 3, "test-secret")
	require.NoError(t, err)
	return c
}

// ============================================================================
// Scope Tests
// ============================================================================

func TestParseCacheScope(t *testing.T) {
	tests := []struct {
		in      string
		want    CacheScope
		wantErr bool
	}{
		{"none", ScopeNone, false},
		{"SHARED", ScopeShared, false},
		{" session ", ScopeSession, false},
		{"credential", ScopeCredential, false},
		{"", ScopeCredential, false},
		{"global", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCacheScope(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalysisCache_KeyByScope(t *testing.T) {
	base := CacheKeyInput{Image: []byte("img"), Model: "m", SessionID: "s1", Credential: "k1"}

	tests := []struct {
		name   string
		scope  CacheScope
		other  CacheKeyInput
		wantOK bool
		same   bool
	}{
		{"none never caches", ScopeNone, base, false, false},
		{"shared ignores session", ScopeShared, CacheKeyInput{Image: []byte("img"), Model: "m", SessionID: "s2"}, true, true},
		{"shared separates providers", ScopeShared, CacheKeyInput{Image: []byte("img"), Provider: "openai", Model: "m"}, true, false},
		{"shared separates models", ScopeShared, CacheKeyInput{Image: []byte("img"), Model: "m2"}, true, false},
		{"shared separates images", ScopeShared, CacheKeyInput{Image: []byte("img2"), Model: "m"}, true, false},
		{"session separates sessions", ScopeSession, CacheKeyInput{Image: []byte("img"), Model: "m", SessionID: "s2"}, true, false},
		{"session shares within session", ScopeSession, CacheKeyInput{Image: []byte("img"), Model: "m", SessionID: "s1", Credential: "other"}, true, true},
		{"credential separates keys", ScopeCredential, CacheKeyInput{Image: []byte("img"), Model: "m", Credential: "k2"}, true, false},
		{"credential shares across sessions", ScopeCredential, CacheKeyInput{Image: []byte("img"), Model: "m", SessionID: "s9", Credential: "k1"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, tt.scope)
			k1, ok1 := c.Key(base)
			k2, ok2 := c.Key(tt.other)
			assert.Equal(t, tt.wantOK, ok1)
			assert.Equal(t, tt.wantOK, ok2)
			if !tt.wantOK {
				return
			}
			if tt.same {
				assert.Equal(t, k1, k2)
			} else {
				assert.NotEqual(t, k1, k2)
			}
		})
	}
}

func TestAnalysisCache_MissingSeedNotCached(t *testing.T) {
	c := newTestCache(t, ScopeSession)
	_, ok := c.Key(CacheKeyInput{Image: []byte("x"), Credential: "k"})
	assert.False(t, ok)

	c = newTestCache(t, ScopeCredential)
	_, ok = c.Key(CacheKeyInput{Image: []byte("x"), SessionID: "s"})
	assert.False(t, ok)
}

func TestAnalysisCache_KeyHidesCredential(t *testing.T) {
	c := newTestCache(t, ScopeCredential)
	secret := "sk-very-secret-value"

	key, ok := c.Key(CacheKeyInput{Image: []byte("x"), Credential: secret})
	require.True(t, ok)
	assert.NotContains(t, key, secret)

	seed := c.CredentialSeed(secret)
	assert.Len(t, seed, 64)
	assert.NotContains(t, seed, secret)

	// a different process secret gives a different seed
	other, err := NewAnalysisCache(ScopeCredential, time.Hour, 3, "another-secret")
	require.NoError(t, err)
	assert.NotEqual(t, seed, other.CredentialSeed(secret))
}

func TestAnalysisCache_RandomSecret(t *testing.T) {
	a, err := NewAnalysisCache(ScopeCredential, 0, 0, "")
	require.NoError(t, err)
	b, err := NewAnalysisCache(ScopeCredential, 0, 0, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.CredentialSeed("k"), b.CredentialSeed("k"))
}

// ============================================================================
// Storage Tests
// ============================================================================

func TestAnalysisCache_GetPutCopies(t *testing.T) {
	c := newTestCache(t, ScopeShared)
	cells := []Cell{{Text: "a", RowSpan: 1, ColSpan: 1}}

	c.Put("k", cells)
	cells[0].Text = "mutated"

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "a", got[0].Text)

	got[0].Text = "mutated again"
	again, _ := c.Get("k")
	assert.Equal(t, "a", again[0].Text)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, ScopeShared, stats.Scope)
}

func TestAnalysisCache_EvictsOldest(t *testing.T) {
	c := newTestCache(t, ScopeShared)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), nil)
		now = now.Add(time.Second)
	}
	c.Put("k3", nil)

	_, ok := c.Get("k0")
	assert.False(t, ok, "oldest entry should be evicted")
	for _, k := range []string{"k1", "k2", "k3"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}

	// overwriting an existing key does not evict
	c.Put("k3", []Cell{{Text: "new"}})
	assert.Equal(t, 3, c.Stats().Entries)
}

func TestAnalysisCache_Expiry(t *testing.T) {
	c := newTestCache(t, ScopeShared)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("old", nil)
	now = now.Add(30 * time.Minute)
	c.Put("new", nil)
	now = now.Add(31 * time.Minute)

	_, ok := c.Get("old")
	assert.False(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestAnalysisCache_KeyIsHex(t *testing.T) {
	c := newTestCache(t, ScopeShared)
	key, ok := c.Key(CacheKeyInput{Image: []byte{0, 1, 2}, Model: "m"})
	require.True(t, ok)
	assert.Len(t, key, 64)
	assert.Equal(t, strings.ToLower(key), key)
}
