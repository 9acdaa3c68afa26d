package auth

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedUserStore is a read-through cache over a UserStore. Every
// authenticated request performs a user lookup, so hot principals are served
// from an expirable LRU and concurrent misses for the same key are collapsed
// into one backend query.
//
// Negative results are cached too: a deleted user keeps failing fast until
// the entry expires.
type CachedUserStore struct {
	inner UserStore
	byID  *lru.LRU[string, *UserRecord]
	group singleflight.Group
}

// NewCachedUserStore wraps inner with an LRU of maxEntries records expiring
// after ttl.
func NewCachedUserStore(inner UserStore, maxEntries int, ttl time.Duration) *CachedUserStore {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedUserStore{
		inner: inner,
		byID:  lru.NewLRU[string, *UserRecord](maxEntries, nil, ttl),
	}
}

// FindByID returns the cached record or falls through to the inner store.
func (s *CachedUserStore) FindByID(ctx context.Context, id string) (*UserRecord, error) {
	if rec, ok := s.byID.Get(id); ok {
		return rec, nil
	}

	v, err, _ := s.group.Do("id:"+id, func() (interface{}, error) {
		rec, err := s.inner.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.byID.Add(id, rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserRecord), nil
}

// FindByEmail is uncached: it serves only the development bypass and admin
// tooling, neither of which is hot.
func (s *CachedUserStore) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return s.inner.FindByEmail(ctx, email)
}

// Invalidate drops the cached record for a user, e.g. after a role change.
func (s *CachedUserStore) Invalidate(id string) {
	s.byID.Remove(id)
}
