package cache

// KeyStats counts operations on one key.
type KeyStats struct {
	Gets          uint64 `json:"gets"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
	Evictions     uint64 `json:"evictions"`
}

func (s KeyStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Gets)
}

// statsFor must be called with c.mu held.
func (c *Cache) statsFor(key string) *KeyStats {
	st := c.stats[key]
	if st == nil {
		st = &KeyStats{}
		c.stats[key] = st
	}
	return st
}

// Stats returns a copy of the per-key counters.
func (c *Cache) Stats() map[string]KeyStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]KeyStats, len(c.stats))
	for k, st := range c.stats {
		out[k] = *st
	}
	return out
}

// Totals sums the counters of every key.
func (c *Cache) Totals() KeyStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var t KeyStats
	for _, st := range c.stats {
		t.Gets += st.Gets
		t.Hits += st.Hits
		t.Misses += st.Misses
		t.Invalidations += st.Invalidations
		t.Evictions += st.Evictions
	}
	return t
}

func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.stats)
}
