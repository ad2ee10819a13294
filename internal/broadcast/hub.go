package broadcast

import (
	"context"
	"sync"
)

// Hub is an in-process broadcaster. Slow subscribers lose snapshots rather
// than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Snapshot
	nextID int
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Snapshot)}
}

// Subscribe registers for an asset's snapshots. The returned cancel func
// unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(assetID string, buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Snapshot, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[assetID] == nil {
		h.subs[assetID] = make(map[int]chan Snapshot)
	}
	h.subs[assetID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[assetID], id)
			if len(h.subs[assetID]) == 0 {
				delete(h.subs, assetID)
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions for an asset.
func (h *Hub) Subscribers(assetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[assetID])
}

// Publish delivers without blocking.
func (h *Hub) Publish(_ context.Context, snapshot Snapshot) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[snapshot.AssetID] {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return nil
}
