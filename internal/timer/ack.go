package timer

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// AckSet remembers which expired timers have already been announced, so expiry fires
// once per timer per observer. Entries age out after the retention period.
type AckSet struct {
	c *cache.Cache
}

// NewAckSet creates an empty set.
func NewAckSet(retention time.Duration) *AckSet {
	return &AckSet{c: cache.New(retention, retention)}
}

// MarkOnce records id and reports whether it was not yet present.
func (a *AckSet) MarkOnce(id string) bool {
	return a.c.Add(id, struct{}{}, cache.DefaultExpiration) == nil
}

// Seen reports whether id is present.
func (a *AckSet) Seen(id string) bool {
	_, ok := a.c.Get(id)
	return ok
}

// Forget removes id so it can fire again.
func (a *AckSet) Forget(id string) {
	a.c.Delete(id)
}

// Reset empties the set.
func (a *AckSet) Reset() {
	a.c.Flush()
}

// Len returns the number of remembered ids.
func (a *AckSet) Len() int {
	return a.c.ItemCount()
}
