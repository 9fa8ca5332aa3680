package service

import (
	"time"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
)

// startRequester builds the initial machine and effects for a requester
// session: the request goes out as a replaceable need event with a TTL
// expiration, and the session itself lives for one TTL.
func startRequester(req *GigRequest, vertical string, now time.Time, ttl time.Duration) (machine, []effect) {
	m := machine{
		role:      RoleRequester,
		state:     StatePublishing,
		vertical:  vertical,
		cell:      req.Geohash,
		deadline:  now.Add(ttl),
		request:   req,
		providers: map[string]time.Time{},
	}
	return m, []effect{
		effPublishRequest{req: *req, expiresAt: now.Add(ttl)},
	}
}

// resumeRequester rebuilds a requester session from a recovered relay event
// without publishing anything: the live record is simply adopted and will be
// refreshed on the next tick.
func resumeRequester(req *GigRequest, vertical string, ttl time.Duration) (machine, []effect) {
	m := machine{
		role:      RoleRequester,
		state:     StatePending,
		vertical:  vertical,
		cell:      req.Geohash,
		deadline:  req.CreatedAt.Add(ttl),
		request:   req,
		providers: map[string]time.Time{},
	}
	if req.Status == common.RequestStatusTaken {
		m.state = StateMatched
		return m, []effect{
			effNotify{Notification{
				Type:           common.NotificationProviderAccepted,
				Request:        req,
				ProviderPubkey: req.MatchedProviderPubkey,
			}},
		}
	}
	return m, nil
}

func stepRequester(m machine, in input) (machine, []effect) {
	switch in := in.(type) {
	case inPublished:
		if m.state == StatePublishing {
			m.state = StatePending
		}
		return m, nil

	case inTick:
		return requesterTick(m, in.now)

	case inOfferUpdate:
		return requesterOfferSeen(m, in.offer)

	case inAcceptSignal:
		return requesterAcceptSeen(m, in.providerPubkey, in.requestID)

	case inCmdCancel:
		cancelled := *m.request
		cancelled.Status = common.RequestStatusCancelled
		m.request = &cancelled
		m.state = StateCancelled
		return m, []effect{
			// near-immediate expiration: the relay drops the record almost
			// at once, which doubles as the take-down primitive
			effPublishRequest{req: cancelled, expiresAt: in.now.Add(time.Second)},
		}
	}
	return m, nil
}

func requesterTick(m machine, now time.Time) (machine, []effect) {
	var effects []effect

	if !now.Before(m.deadline) {
		m.state = StateExpired
		return m, []effect{
			effNotify{Notification{Type: common.NotificationRequestExpired}},
		}
	}

	// heartbeat: push the record's expiration out to now+TTL while the
	// session is alive and unmatched
	ttl := m.deadline.Sub(m.request.CreatedAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	effects = append(effects, effPublishRequest{req: *m.request, expiresAt: now.Add(ttl)})

	// prune expired offers from the provider count
	pruned := make(map[string]time.Time, len(m.providers))
	for pk, expiry := range m.providers {
		if now.Before(expiry) {
			pruned[pk] = expiry
		}
	}
	if len(pruned) != len(m.providers) {
		m.providers = pruned
		effects = append(effects, effNotify{Notification{
			Type:  common.NotificationProviderCount,
			Count: len(pruned),
		}})
	}
	return m, effects
}

func requesterOfferSeen(m machine, offer *Offer) (machine, []effect) {
	if _, known := m.providers[offer.Pubkey]; known {
		// refresh the expiry without renotifying
		providers := copyProviders(m.providers)
		providers[offer.Pubkey] = offer.ExpiresAt
		m.providers = providers
		return m, nil
	}
	providers := copyProviders(m.providers)
	providers[offer.Pubkey] = offer.ExpiresAt
	m.providers = providers
	return m, []effect{effNotify{Notification{
		Type:  common.NotificationProviderCount,
		Count: len(providers),
	}}}
}

// requesterAcceptSeen is the sole arbitration point of the protocol: the
// first accept signal wins, and only the requester's own replaceable publish
// of the taken record decides the winner. A second accept for the same
// request is ignored, so at most one provider pubkey is ever named.
func requesterAcceptSeen(m machine, providerPubkey, requestID string) (machine, []effect) {
	if m.state != StatePending && m.state != StatePublishing {
		return m, nil
	}
	if requestID != m.request.ID || m.request.MatchedProviderPubkey != "" {
		return m, nil
	}

	taken := *m.request
	taken.Status = common.RequestStatusTaken
	taken.MatchedProviderPubkey = providerPubkey
	m.request = &taken
	m.state = StateMatched

	ttl := m.deadline.Sub(taken.CreatedAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return m, []effect{
		effPublishRequest{req: taken, expiresAt: m.deadline.Add(ttl)},
		effNotify{Notification{
			Type:           common.NotificationProviderAccepted,
			Request:        &taken,
			ProviderPubkey: providerPubkey,
		}},
	}
}

func copyProviders(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
