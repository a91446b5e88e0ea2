package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/haulbid/haulbid-backend/internal/leaderboard"
)

const subscriberBuffer = 8

// Hub fans leaderboard snapshots out to in-process subscribers, keyed by
// load. Publishing never blocks: a subscriber that cannot keep up has the
// frame dropped, since each snapshot supersedes the previous one anyway.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan leaderboard.Snapshot
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[*subscriber]struct{})}
}

// Subscribe registers interest in one load's snapshots. The returned cancel
// function must be called when the subscriber goes away; it closes the
// channel.
func (h *Hub) Subscribe(loadID uuid.UUID) (<-chan leaderboard.Snapshot, func()) {
	sub := &subscriber{ch: make(chan leaderboard.Snapshot, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[loadID] == nil {
		h.subs[loadID] = make(map[*subscriber]struct{})
	}
	h.subs[loadID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[loadID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, loadID)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers a snapshot to every current subscriber of the load.
// Returns how many subscribers received the frame.
func (h *Hub) Publish(loadID uuid.UUID, snapshot leaderboard.Snapshot) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[loadID] {
		select {
		case sub.ch <- snapshot:
			delivered++
		default:
			// slow subscriber, drop the frame
		}
	}
	return delivered
}

// Subscribers reports the current audience size for a load.
func (h *Hub) Subscribers(loadID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[loadID])
}
