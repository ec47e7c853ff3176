package geocode

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores resolved names under the verbatim coordinate key.
// *expirable.LRU[string, string] satisfies it.
type Cache interface {
	Get(key string) (string, bool)
	Add(key, value string) bool
	Len() int
	Purge()
}

// NewCache returns an LRU bounded to size entries whose entries expire
// after ttl. size 0 means unbounded and ttl 0 means entries never expire.
func NewCache(size int, ttl time.Duration) Cache {
	return expirable.NewLRU[string, string](size, nil, ttl)
}
