package service

import (
	"sort"
	"time"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
)

// startProvider builds the initial machine and effects for a provider
// session: the offer goes out with the same TTL semantics as a request.
func startProvider(offer *Offer, vertical string, now time.Time, ttl time.Duration) (machine, []effect) {
	m := machine{
		role:     RoleProvider,
		state:    StatePublishing,
		vertical: vertical,
		cell:     offer.Geohash,
		deadline: now.Add(ttl),
		offer:    offer,
	}
	return m, []effect{
		effPublishOffer{offer: *offer, expiresAt: now.Add(ttl)},
	}
}

// resumeProvider rebuilds a provider session from a recovered offer event.
func resumeProvider(offer *Offer, vertical string, ttl time.Duration) (machine, []effect) {
	return machine{
		role:     RoleProvider,
		state:    StateOffering,
		vertical: vertical,
		cell:     offer.Geohash,
		deadline: offer.CreatedAt.Add(ttl),
		offer:    offer,
	}, nil
}

func stepProvider(m machine, in input) (machine, []effect) {
	switch in := in.(type) {
	case inPublished:
		if m.state == StatePublishing {
			m.state = StateOffering
		}
		return m, nil

	case inTick:
		return providerTick(m, in.now)

	case inRequestUpdate:
		return providerRequestSeen(m, in.req)

	case inCmdAccept:
		return providerAccept(m, in.requestID)

	case inCmdDecline:
		return providerDecline(m)

	case inCmdCancel:
		m.state = StateCancelled
		return m, []effect{
			effPublishOffer{offer: *m.offer, expiresAt: in.now.Add(time.Second)},
		}
	}
	return m, nil
}

func providerTick(m machine, now time.Time) (machine, []effect) {
	var effects []effect

	if !now.Before(m.deadline) && m.state != StateConfirming {
		m.state = StateExpired
		return m, []effect{
			effNotify{Notification{Type: common.NotificationOfferExpired}},
		}
	}

	ttl := m.deadline.Sub(m.offer.CreatedAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	effects = append(effects, effPublishOffer{offer: *m.offer, expiresAt: now.Add(ttl)})

	// drop expired requests from the queue
	oldHead := queueHead(m.queue)
	kept := m.queue[:0:0]
	var gone []string
	for _, req := range m.queue {
		if !req.ExpiresAt.IsZero() && !now.Before(req.ExpiresAt) {
			gone = append(gone, req.ID)
			continue
		}
		kept = append(kept, req)
	}
	if len(gone) > 0 {
		m.queue = kept
		for _, id := range gone {
			effects = append(effects, effNotify{Notification{
				Type:      common.NotificationRequestGone,
				RequestID: id,
			}})
		}
		effects = append(effects, headChangeEffects(oldHead, m.queue)...)
		// the request we were confirming may be among the dead
		if m.state == StateConfirming && m.accepted != nil && contains(gone, m.accepted.ID) {
			m.accepted = nil
			m.state = StateOffering
		}
	}
	return m, effects
}

func providerRequestSeen(m machine, req *GigRequest) (machine, []effect) {
	switch req.Status {
	case common.RequestStatusOpen:
		return providerUpsertRequest(m, req)
	case common.RequestStatusTaken:
		return providerRequestTaken(m, req)
	default: // cancelled or unknown status: treat as gone
		return providerRemoveRequest(m, req.ID)
	}
}

func providerUpsertRequest(m machine, req *GigRequest) (machine, []effect) {
	oldHead := queueHead(m.queue)

	queue := make([]*GigRequest, 0, len(m.queue)+1)
	replaced := false
	for _, existing := range m.queue {
		if existing.ID == req.ID {
			queue = append(queue, req)
			replaced = true
			continue
		}
		queue = append(queue, existing)
	}
	if !replaced {
		queue = append(queue, req)
	}
	// oldest first; event id breaks ties so every provider sees the same order
	sort.SliceStable(queue, func(i, j int) bool {
		if !queue[i].CreatedAt.Equal(queue[j].CreatedAt) {
			return queue[i].CreatedAt.Before(queue[j].CreatedAt)
		}
		return queue[i].EventID < queue[j].EventID
	})
	m.queue = queue

	return m, headChangeEffects(oldHead, m.queue)
}

// providerRequestTaken handles the requester's authoritative confirm. If the
// taken record names us while we are confirming that request, the session is
// matched; if it names someone else, we lost the race and quietly go back to
// listening (there is no explicit rejection message in the protocol).
func providerRequestTaken(m machine, req *GigRequest) (machine, []effect) {
	if m.state == StateConfirming && m.accepted != nil && m.accepted.ID == req.ID {
		if req.MatchedProviderPubkey == m.offer.Pubkey {
			m.state = StateMatched
			m.accepted = req
			return m, []effect{effNotify{Notification{
				Type:    common.NotificationMatched,
				Request: req,
			}}}
		}
		// another provider won
		m.accepted = nil
		m.state = StateOffering
		next, effects := providerRemoveRequest(m, req.ID)
		return next, effects
	}
	return providerRemoveRequest(m, req.ID)
}

func providerRemoveRequest(m machine, id string) (machine, []effect) {
	oldHead := queueHead(m.queue)
	queue := make([]*GigRequest, 0, len(m.queue))
	removed := false
	for _, existing := range m.queue {
		if existing.ID == id {
			removed = true
			continue
		}
		queue = append(queue, existing)
	}
	if !removed {
		return m, nil
	}
	m.queue = queue
	if m.state == StateConfirming && m.accepted != nil && m.accepted.ID == id {
		m.accepted = nil
		m.state = StateOffering
	}

	effects := []effect{effNotify{Notification{
		Type:      common.NotificationRequestGone,
		RequestID: id,
	}}}
	effects = append(effects, headChangeEffects(oldHead, m.queue)...)
	return m, effects
}

func providerAccept(m machine, requestID string) (machine, []effect) {
	if m.state != StateOffering {
		return m, nil
	}
	var target *GigRequest
	for _, req := range m.queue {
		if req.ID == requestID {
			target = req
			break
		}
	}
	if target == nil {
		return m, nil
	}
	m.accepted = target
	m.state = StateConfirming
	// the accept signal is non-authoritative: we now wait for the
	// requester's taken record to name us
	return m, []effect{effPublishAccept{
		requesterPubkey: target.Pubkey,
		requestID:       target.ID,
	}}
}

func providerDecline(m machine) (machine, []effect) {
	if m.state != StateOffering || len(m.queue) == 0 {
		return m, nil
	}
	declined := m.queue[0]
	m.queue = m.queue[1:]

	effects := []effect{effNotify{Notification{
		Type:      common.NotificationRequestGone,
		RequestID: declined.ID,
	}}}
	effects = append(effects, headChangeEffects(declined, m.queue)...)
	return m, effects
}

func queueHead(queue []*GigRequest) *GigRequest {
	if len(queue) == 0 {
		return nil
	}
	return queue[0]
}

// headChangeEffects emits the "show this candidate" notification whenever
// the visible head of the queue changes identity.
func headChangeEffects(oldHead *GigRequest, queue []*GigRequest) []effect {
	newHead := queueHead(queue)
	if newHead == nil {
		return nil
	}
	if oldHead != nil && oldHead.ID == newHead.ID && oldHead.EventID == newHead.EventID {
		return nil
	}
	return []effect{effNotify{Notification{
		Type:    common.NotificationRequest,
		Request: newHead,
	}}}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
