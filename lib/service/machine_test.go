package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testRequest(id, pubkey string, createdAt time.Time) *GigRequest {
	return &GigRequest{
		ID:            id,
		Pubkey:        pubkey,
		StartLocation: geohash.Point{Lat: 10, Lon: 20},
		Status:        common.RequestStatusOpen,
		Geohash:       "s3y0zh",
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(time.Minute),
		EventID:       "ev-" + id,
	}
}

func testOffer(pubkey string) *Offer {
	return &Offer{
		Pubkey:    pubkey,
		Location:  geohash.Point{Lat: 10.001, Lon: 20.001},
		Geohash:   "s3y0zh",
		CreatedAt: t0,
		ExpiresAt: t0.Add(time.Minute),
	}
}

func notifications(effects []effect) []Notification {
	var out []Notification
	for _, eff := range effects {
		if n, ok := eff.(effNotify); ok {
			out = append(out, n.n)
		}
	}
	return out
}

func TestRequesterFirstAcceptWins(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	m, _ := startRequester(req, "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})
	assert.Equal(t, StatePending, m.state)

	m, effects := step(m, inAcceptSignal{providerPubkey: "provider-a", requestID: "req-1"})
	assert.Equal(t, StateMatched, m.state)
	assert.Equal(t, "provider-a", m.request.MatchedProviderPubkey)
	assert.Equal(t, common.RequestStatusTaken, m.request.Status)

	// the taken record is republished so every provider sees the winner
	var published *effPublishRequest
	for _, eff := range effects {
		if p, ok := eff.(effPublishRequest); ok {
			published = &p
		}
	}
	assert.NotNil(t, published)
	assert.Equal(t, "provider-a", published.req.MatchedProviderPubkey)

	// a later accept signal changes nothing
	m2, effects2 := step(m, inAcceptSignal{providerPubkey: "provider-b", requestID: "req-1"})
	assert.Equal(t, "provider-a", m2.request.MatchedProviderPubkey)
	assert.Empty(t, effects2)
}

func TestRequesterIgnoresAcceptForOtherRequest(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	m, _ := startRequester(req, "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	m, effects := step(m, inAcceptSignal{providerPubkey: "provider-a", requestID: "req-other"})
	assert.Equal(t, StatePending, m.state)
	assert.Empty(t, effects)
}

func TestRequesterExpiresAtDeadline(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	m, _ := startRequester(req, "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	m, effects := step(m, inTick{now: t0.Add(time.Minute)})
	assert.Equal(t, StateExpired, m.state)
	ns := notifications(effects)
	assert.Len(t, ns, 1)
	assert.Equal(t, common.NotificationRequestExpired, ns[0].Type)

	// terminal states absorb further input
	m2, effects2 := step(m, inAcceptSignal{providerPubkey: "provider-a", requestID: "req-1"})
	assert.Equal(t, StateExpired, m2.state)
	assert.Empty(t, effects2)
}

func TestRequesterTickRefreshesRecord(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	m, _ := startRequester(req, "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	now := t0.Add(15 * time.Second)
	_, effects := step(m, inTick{now: now})
	var published *effPublishRequest
	for _, eff := range effects {
		if p, ok := eff.(effPublishRequest); ok {
			published = &p
		}
	}
	assert.NotNil(t, published)
	assert.Equal(t, now.Add(time.Minute), published.expiresAt)
}

func TestRequesterCountsProviders(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	m, _ := startRequester(req, "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	m, effects := step(m, inOfferUpdate{offer: testOffer("provider-a")})
	ns := notifications(effects)
	assert.Len(t, ns, 1)
	assert.Equal(t, common.NotificationProviderCount, ns[0].Type)
	assert.Equal(t, 1, ns[0].Count)

	// a refreshed offer from the same provider does not renotify
	m, effects = step(m, inOfferUpdate{offer: testOffer("provider-a")})
	assert.Empty(t, notifications(effects))

	short := testOffer("provider-b")
	short.ExpiresAt = t0.Add(10 * time.Second)
	m, effects = step(m, inOfferUpdate{offer: short})
	ns = notifications(effects)
	assert.Equal(t, 2, ns[0].Count)

	// expired offers drop out on the next tick
	m, effects = step(m, inTick{now: t0.Add(20 * time.Second)})
	ns = notifications(effects)
	assert.Len(t, ns, 1)
	assert.Equal(t, common.NotificationProviderCount, ns[0].Type)
	assert.Equal(t, 1, ns[0].Count)
}

func TestRequesterCancelPublishesTakedown(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	m, _ := startRequester(req, "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	now := t0.Add(10 * time.Second)
	m, effects := step(m, inCmdCancel{now: now})
	assert.Equal(t, StateCancelled, m.state)

	var published *effPublishRequest
	for _, eff := range effects {
		if p, ok := eff.(effPublishRequest); ok {
			published = &p
		}
	}
	assert.NotNil(t, published)
	assert.Equal(t, common.RequestStatusCancelled, published.req.Status)
	assert.Equal(t, now.Add(time.Second), published.expiresAt)
}

func TestProviderQueueOrderedOldestFirst(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})
	assert.Equal(t, StateOffering, m.state)

	newer := testRequest("req-newer", "pk-b", t0.Add(10*time.Second))
	older := testRequest("req-older", "pk-a", t0)

	m, effects := step(m, inRequestUpdate{req: newer})
	ns := notifications(effects)
	assert.Len(t, ns, 1)
	assert.Equal(t, common.NotificationRequest, ns[0].Type)
	assert.Equal(t, "req-newer", ns[0].Request.ID)

	// the older request jumps the queue and becomes the new candidate
	m, effects = step(m, inRequestUpdate{req: older})
	ns = notifications(effects)
	assert.Len(t, ns, 1)
	assert.Equal(t, "req-older", ns[0].Request.ID)
	assert.Equal(t, "req-older", m.queue[0].ID)
	assert.Equal(t, "req-newer", m.queue[1].ID)
}

func TestProviderQueueTieBrokenByEventID(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	a := testRequest("req-a", "pk-a", t0)
	b := testRequest("req-b", "pk-b", t0)

	m, _ = step(m, inRequestUpdate{req: b})
	m, _ = step(m, inRequestUpdate{req: a})
	assert.Equal(t, "ev-req-a", m.queue[0].EventID)
	assert.Equal(t, "ev-req-b", m.queue[1].EventID)
}

func TestProviderAcceptThenConfirm(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	req := testRequest("req-1", "requester-pk", t0)
	m, _ = step(m, inRequestUpdate{req: req})

	m, effects := step(m, inCmdAccept{requestID: "req-1", now: t0.Add(time.Second)})
	assert.Equal(t, StateConfirming, m.state)
	var accept *effPublishAccept
	for _, eff := range effects {
		if a, ok := eff.(effPublishAccept); ok {
			accept = &a
		}
	}
	assert.NotNil(t, accept)
	assert.Equal(t, "requester-pk", accept.requesterPubkey)
	assert.Equal(t, "req-1", accept.requestID)

	taken := testRequest("req-1", "requester-pk", t0)
	taken.Status = common.RequestStatusTaken
	taken.MatchedProviderPubkey = "provider-pk"
	m, effects = step(m, inRequestUpdate{req: taken})
	assert.Equal(t, StateMatched, m.state)
	ns := notifications(effects)
	assert.Len(t, ns, 1)
	assert.Equal(t, common.NotificationMatched, ns[0].Type)
}

func TestProviderLosesRaceFallsBackToOffering(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	req := testRequest("req-1", "requester-pk", t0)
	m, _ = step(m, inRequestUpdate{req: req})
	m, _ = step(m, inCmdAccept{requestID: "req-1", now: t0.Add(time.Second)})

	taken := testRequest("req-1", "requester-pk", t0)
	taken.Status = common.RequestStatusTaken
	taken.MatchedProviderPubkey = "other-provider"
	m, effects := step(m, inRequestUpdate{req: taken})
	assert.Equal(t, StateOffering, m.state)
	assert.Nil(t, m.accepted)
	assert.Empty(t, m.queue)

	ns := notifications(effects)
	assert.Equal(t, common.NotificationRequestGone, ns[0].Type)
	assert.Equal(t, "req-1", ns[0].RequestID)
}

func TestProviderTakenRequestLeavesQueue(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	first := testRequest("req-1", "pk-a", t0)
	second := testRequest("req-2", "pk-b", t0.Add(time.Second))
	m, _ = step(m, inRequestUpdate{req: first})
	m, _ = step(m, inRequestUpdate{req: second})

	taken := testRequest("req-1", "pk-a", t0)
	taken.Status = common.RequestStatusTaken
	taken.MatchedProviderPubkey = "someone-else"
	m, effects := step(m, inRequestUpdate{req: taken})

	assert.Len(t, m.queue, 1)
	assert.Equal(t, "req-2", m.queue[0].ID)
	ns := notifications(effects)
	// gone for req-1, then req-2 surfaces as the new candidate
	assert.Equal(t, common.NotificationRequestGone, ns[0].Type)
	assert.Equal(t, common.NotificationRequest, ns[1].Type)
	assert.Equal(t, "req-2", ns[1].Request.ID)
}

func TestProviderDeclineSurfacesNext(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	first := testRequest("req-1", "pk-a", t0)
	second := testRequest("req-2", "pk-b", t0.Add(time.Second))
	m, _ = step(m, inRequestUpdate{req: first})
	m, _ = step(m, inRequestUpdate{req: second})

	m, effects := step(m, inCmdDecline{now: t0.Add(2 * time.Second)})
	assert.Len(t, m.queue, 1)
	ns := notifications(effects)
	assert.Equal(t, common.NotificationRequestGone, ns[0].Type)
	assert.Equal(t, "req-1", ns[0].RequestID)
	assert.Equal(t, common.NotificationRequest, ns[1].Type)
	assert.Equal(t, "req-2", ns[1].Request.ID)
}

func TestProviderIgnoresAcceptOutsideOffering(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	req := testRequest("req-1", "pk-a", t0)
	m, _ = step(m, inRequestUpdate{req: req})
	m, _ = step(m, inCmdAccept{requestID: "req-1", now: t0})
	assert.Equal(t, StateConfirming, m.state)

	// a second accept while confirming is a no-op
	m2, effects := step(m, inCmdAccept{requestID: "req-1", now: t0})
	assert.Equal(t, m.state, m2.state)
	assert.Empty(t, effects)
}

func TestProviderOfferExpiresAtDeadline(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	m, effects := step(m, inTick{now: t0.Add(time.Minute)})
	assert.Equal(t, StateExpired, m.state)
	ns := notifications(effects)
	assert.Equal(t, common.NotificationOfferExpired, ns[0].Type)
}

func TestProviderCancelPublishesOfferTakedown(t *testing.T) {
	m, _ := startProvider(testOffer("provider-pk"), "helpouts", t0, time.Minute)
	m, _ = step(m, inPublished{})

	now := t0.Add(5 * time.Second)
	m, effects := step(m, inCmdCancel{now: now})
	assert.Equal(t, StateCancelled, m.state)
	var published *effPublishOffer
	for _, eff := range effects {
		if p, ok := eff.(effPublishOffer); ok {
			published = &p
		}
	}
	assert.NotNil(t, published)
	assert.Equal(t, now.Add(time.Second), published.expiresAt)
}

func TestResumeRequesterTakenRecordIsMatched(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	req.Status = common.RequestStatusTaken
	req.MatchedProviderPubkey = "provider-a"

	m, effects := resumeRequester(req, "helpouts", time.Minute)
	assert.Equal(t, StateMatched, m.state)
	ns := notifications(effects)
	assert.Equal(t, common.NotificationProviderAccepted, ns[0].Type)
	assert.Equal(t, "provider-a", ns[0].ProviderPubkey)
}

func TestResumeRequesterOpenRecordKeepsWaiting(t *testing.T) {
	req := testRequest("req-1", "requester-pk", t0)
	m, effects := resumeRequester(req, "helpouts", time.Minute)
	assert.Equal(t, StatePending, m.state)
	assert.Empty(t, effects)
	assert.Equal(t, t0.Add(time.Minute), m.deadline)
}
