package service

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
)

// gigSession owns one matching session. A single goroutine drains the inbox,
// applies the pure step function, and performs the resulting effects against
// the relay pool. Relay callbacks and HTTP handlers never touch the machine;
// they only send inputs.
type gigSession struct {
	svc    *Service
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	inbox  chan input
	subIDs []string

	stopOnce sync.Once

	mu       sync.RWMutex
	snapshot SessionSnapshot
}

func newGigSession(svc *Service) *gigSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &gigSession{
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		inbox:  make(chan input, 64),
	}
}

// send delivers an input to the session loop. It gives up silently once the
// session is shutting down, so relay callbacks can never block teardown.
func (s *gigSession) send(in input) {
	select {
	case s.inbox <- in:
	case <-s.ctx.Done():
	}
}

func (s *gigSession) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// run is the session loop. The caller has already published the initial
// snapshot; initialEffects are the effects produced by the start (or resume)
// transition, and once the initial publish lands the machine gets an
// inPublished input before anything from the relays is processed.
func (s *gigSession) run(m machine, initialEffects []effect) {
	defer close(s.done)

	s.perform(m, initialEffects)
	m = s.apply(m, inPublished{})

	ticker := s.svc.clock.Ticker(s.svc.Config.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.Chan():
			m = s.apply(m, inTick{now: now})
		case in := <-s.inbox:
			m = s.apply(m, in)
		}
		if m.state.terminal() {
			// stop listening now; a blocked send here would stall relay
			// dispatch until the session is reaped
			s.svc.Logger.Debugf("session reached terminal state %s", m.state)
			s.cancel()
			for _, id := range s.subIDs {
				s.svc.Pool.Unsubscribe(id)
			}
			return
		}
	}
}

func (s *gigSession) apply(m machine, in input) machine {
	next, effects := step(m, in)
	if next.state == StateMatched && m.state != StateMatched {
		matchesTotal.Inc()
	}
	s.publishSnapshot(next)
	s.perform(next, effects)
	return next
}

func (s *gigSession) perform(m machine, effects []effect) {
	for _, eff := range effects {
		switch eff := eff.(type) {
		case effPublishRequest:
			tags, content, err := requestEventBody(&eff.req, m.vertical, eff.expiresAt)
			if err != nil {
				s.svc.Logger.Errorf("building request event: %v", err)
				continue
			}
			if _, err := s.svc.Pool.PublishReplaceable(s.ctx, common.KindGigRequest, eff.req.ID, tags, content); err != nil {
				s.svc.Logger.Errorf("publishing request %s: %v", eff.req.ID, err)
			}

		case effPublishOffer:
			tags, content, err := offerEventBody(&eff.offer, m.vertical, eff.expiresAt)
			if err != nil {
				s.svc.Logger.Errorf("building offer event: %v", err)
				continue
			}
			if _, err := s.svc.Pool.PublishReplaceable(s.ctx, common.KindGigOffer, offerDTag(m.vertical), tags, content); err != nil {
				s.svc.Logger.Errorf("publishing offer: %v", err)
			}

		case effPublishAccept:
			tags := acceptEventBody(eff.requesterPubkey, eff.requestID)
			if err := s.svc.Pool.PublishEphemeral(s.ctx, common.KindGigAccept, tags, ""); err != nil {
				s.svc.Logger.Errorf("publishing accept signal for %s: %v", eff.requestID, err)
			}

		case effNotify:
			s.svc.emit(eff.n)
		}
	}
}

func (s *gigSession) publishSnapshot(m machine) {
	snap := SessionSnapshot{
		Role:          string(m.role),
		State:         string(m.state),
		Vertical:      m.vertical,
		Geohash:       m.cell,
		Request:       m.request,
		Queue:         m.queue,
		ProviderCount: len(m.providers),
		Deadline:      m.deadline,
	}
	if m.request != nil {
		snap.MatchedProviderPubkey = m.request.MatchedProviderPubkey
	}
	if m.role == RoleProvider {
		snap.Candidate = queueHead(m.queue)
		if m.state == StateConfirming || m.state == StateMatched {
			snap.Candidate = m.accepted
		}
		if m.state == StateMatched && m.offer != nil {
			snap.MatchedProviderPubkey = m.offer.Pubkey
		}
	}
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// stop tears the session down: cancel first so pending sends unblock, then
// drop the relay subscriptions, then wait for the loop to exit. Safe to call
// more than once.
func (s *gigSession) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		for _, id := range s.subIDs {
			s.svc.Pool.Unsubscribe(id)
		}
		<-s.done
		s.svc.Pool.Release()
	})
}

// relay event handlers; each turns a raw nostr event into a machine input.

func (s *gigSession) handleOfferEvent(ev *nostr.Event) {
	if ev.PubKey == s.svc.Pool.PublicKey() {
		return
	}
	if eventExpired(ev, s.svc.clock.Now()) {
		return
	}
	offer, err := parseOfferEvent(ev)
	if err != nil {
		s.svc.Logger.Debugf("ignoring offer event: %v", err)
		return
	}
	s.send(inOfferUpdate{offer: offer})
}

func (s *gigSession) handleAcceptEvent(ev *nostr.Event) {
	if ev.PubKey == s.svc.Pool.PublicKey() {
		return
	}
	requestID := tagValue(ev, common.TagEvent)
	if requestID == "" {
		return
	}
	s.send(inAcceptSignal{providerPubkey: ev.PubKey, requestID: requestID})
}

func (s *gigSession) handleRequestEvent(ev *nostr.Event) {
	if ev.PubKey == s.svc.Pool.PublicKey() {
		return
	}
	req, err := parseRequestEvent(ev)
	if err != nil {
		s.svc.Logger.Debugf("ignoring request event: %v", err)
		return
	}
	if eventExpired(ev, s.svc.clock.Now()) {
		// an expired record reaching us is a take-down
		req.Status = common.RequestStatusCancelled
	}
	s.send(inRequestUpdate{req: req})
}
