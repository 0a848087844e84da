package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 256

// CachedVerifier memoizes successful results by image content. Errors are
// never cached.
type CachedVerifier struct {
	next  Verifier
	cache *lru.Cache[string, *Result]
}

// NewCachedVerifier wraps next with an LRU of the given size.
func NewCachedVerifier(next Verifier, size int) (*CachedVerifier, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, err
	}
	return &CachedVerifier{next: next, cache: cache}, nil
}

func (c *CachedVerifier) Verify(ctx context.Context, req Request) (*Result, error) {
	key := cacheKey(req)
	if hit, ok := c.cache.Get(key); ok {
		return hit.Clone(), nil
	}
	res, err := c.next.Verify(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, res.Clone())
	return res, nil
}

// Len returns the number of cached results.
func (c *CachedVerifier) Len() int {
	return c.cache.Len()
}

func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Role))
	for _, img := range [][]byte{req.Original.Data, req.Candidate.Data} {
		sum := sha256.Sum256(img)
		h.Write(sum[:])
	}
	if req.HasReference() {
		sum := sha256.Sum256(req.Reference.Data)
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
