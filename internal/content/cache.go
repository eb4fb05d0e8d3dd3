package content

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// HTMLCache is a bounded LRU of rendered page HTML keyed by sub_url.
// Evictions invoke the eviction hook so any state keyed on the same URL
// (the persisted-marker set) is released with the entry.
type HTMLCache struct {
	cache *lru.Cache[string, string]
}

// NewHTMLCache creates a cache holding at most capacity entries. onEvict may
// be nil.
func NewHTMLCache(capacity int, onEvict func(url string)) (*HTMLCache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	cache, err := lru.NewWithEvict(capacity, func(key string, _ string) {
		if onEvict != nil {
			onEvict(key)
		}
	})
	if err != nil {
		return nil, err
	}
	return &HTMLCache{cache: cache}, nil
}

// Put stores html for url, possibly evicting the oldest-untouched entry.
func (c *HTMLCache) Put(url, html string) {
	c.cache.Add(url, html)
}

// Get returns the cached HTML for url.
func (c *HTMLCache) Get(url string) (string, bool) {
	return c.cache.Get(url)
}

// Remove drops url from the cache. The eviction hook fires for the removed
// entry.
func (c *HTMLCache) Remove(url string) {
	c.cache.Remove(url)
}

// Len returns the current entry count.
func (c *HTMLCache) Len() int {
	return c.cache.Len()
}
