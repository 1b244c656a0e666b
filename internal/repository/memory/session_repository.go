package memory

import (
	"time"

	"docassist-be/pkg/chat/session"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps live session controllers in memory. Idle sessions
// expire after ttl; every Get pushes the expiry back.
type SessionRepository struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewSessionRepository(ttl, cleanupInterval time.Duration) *SessionRepository {
	return &SessionRepository{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// OnEvicted registers fn for sessions leaving the cache, by expiry or Delete
func (r *SessionRepository) OnEvicted(fn func(id string, c *session.Controller)) {
	r.cache.OnEvicted(func(key string, v interface{}) {
		fn(key, v.(*session.Controller))
	})
}

func (r *SessionRepository) Save(c *session.Controller) {
	r.cache.Set(c.ID(), c, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*session.Controller, bool) {
	x, found := r.cache.Get(sessionID)
	if !found {
		return nil, false
	}
	c := x.(*session.Controller)
	r.cache.Set(sessionID, c, cache.DefaultExpiration)
	return c, true
}

func (r *SessionRepository) Delete(sessionID string) bool {
	if _, found := r.cache.Get(sessionID); !found {
		return false
	}
	r.cache.Delete(sessionID)
	return true
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
