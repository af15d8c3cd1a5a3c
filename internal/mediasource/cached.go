package mediasource

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tunefetch/internal/cache"
	"tunefetch/internal/domain"
)

// CachedSearcher memoizes a Searcher's results in a cache.Store. Empty results
// are not cached so a later search can still find something.
type CachedSearcher struct {
	next   Searcher
	store  cache.Store
	ttl    time.Duration
	name   string
	logger *logrus.Logger
}

func NewCachedSearcher(name string, next Searcher, store cache.Store, ttl time.Duration, logger *logrus.Logger) *CachedSearcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedSearcher{next: next, store: store, ttl: ttl, name: name, logger: logger}
}

func (c *CachedSearcher) Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	key := c.key(query, limit)
	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warnf("candidate cache read failed: %v", err)
	} else if ok {
		var cands []domain.Candidate
		if err := json.Unmarshal(raw, &cands); err == nil {
			return cands, nil
		}
	}

	cands, err := c.next.Search(ctx, query, limit)
	if err != nil || len(cands) == 0 {
		return cands, err
	}
	if raw, err := json.Marshal(cands); err == nil {
		if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warnf("candidate cache write failed: %v", err)
		}
	}
	return cands, nil
}

func (c *CachedSearcher) key(query string, limit int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s", c.name, limit, query)))
	return "candidates:" + hex.EncodeToString(sum[:])
}
