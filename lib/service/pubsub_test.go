package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
)

func TestPubsubDeliversToSubscribers(t *testing.T) {
	ps := NewPubsub()
	ch := make(chan Notification, 1)
	id := ps.Subscribe(ch)

	ps.Publish(Notification{Type: common.NotificationProviderCount, Count: 3})
	n := <-ch
	assert.Equal(t, common.NotificationProviderCount, n.Type)
	assert.Equal(t, 3, n.Count)

	ps.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}

func TestPubsubDropsWhenSubscriberIsFull(t *testing.T) {
	ps := NewPubsub()
	ch := make(chan Notification, 1)
	ps.Subscribe(ch)

	ps.Publish(Notification{Type: common.NotificationRequest})
	// the buffer is full now; this must not block
	ps.Publish(Notification{Type: common.NotificationRequestGone})

	n := <-ch
	assert.Equal(t, common.NotificationRequest, n.Type)
	select {
	case <-ch:
		t.Fatal("expected the second notification to be dropped")
	default:
	}
}

func TestPubsubUnsubscribeUnknownIdIsNoop(t *testing.T) {
	ps := NewPubsub()
	assert.NotPanics(t, func() { ps.Unsubscribe("nope") })
}
