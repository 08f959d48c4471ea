package livefeed

import "sync"

// HeaderCache holds the most recent stream initialization header of the live
// feed. Each Set overwrites the previous header, an empty one included; once
// set, the cache never reverts to having no header.
type HeaderCache struct {
	mu  sync.RWMutex
	b   []byte
	set bool
}

func (h *HeaderCache) Set(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.b = append(make([]byte, 0, len(b)), b...)
	h.set = true
}

// Get returns the cached header and whether one has been set.
func (h *HeaderCache) Get() ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.b, h.set
}
