package service

import (
	"sync"

	"github.com/google/uuid"
)

// Pubsub fans notifications out to SSE subscribers. Publishing never
// blocks: a subscriber that stops draining its channel loses notifications
// instead of stalling the session loop.
type Pubsub struct {
	mu   sync.RWMutex
	subs map[string]chan Notification
}

func NewPubsub() *Pubsub {
	return &Pubsub{subs: make(map[string]chan Notification)}
}

func (ps *Pubsub) Subscribe(ch chan Notification) (subId string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subId = uuid.NewString()
	ps.subs[subId] = ch
	return subId
}

func (ps *Pubsub) Unsubscribe(id string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.subs[id] == nil {
		return
	}
	close(ps.subs[id])
	delete(ps.subs, id)
}

func (ps *Pubsub) Publish(n Notification) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, ch := range ps.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
