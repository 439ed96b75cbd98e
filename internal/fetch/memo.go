package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo caches fetched bytes by location so each image is downloaded once.
// Concurrent requests for the same location share one download. Failures are
// not cached. A Memo is meant to live for a single pipeline run.
type Memo struct {
	next  Fetcher
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewMemo wraps next with a per-location cache.
func NewMemo(next Fetcher) *Memo {
	return &Memo{next: next, cache: make(map[string][]byte)}
}

// Fetch returns cached bytes or downloads them through the wrapped fetcher.
func (m *Memo) Fetch(ctx context.Context, location string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.cache[location]
	m.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, _ := m.group.Do(location, func() (any, error) {
		data, err := m.next.Fetch(ctx, location)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cache[location] = data
		m.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Len returns the number of cached images.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}
