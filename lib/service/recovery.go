package service

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
)

// RecoverSession looks for a live request or offer of our own on the relays
// and, when one exists, resumes the session it belonged to instead of
// leaving a ghost record behind. Run once at startup, before the HTTP
// surface accepts new sessions.
//
// The scan window is twice the request TTL: the record's expiration is
// refreshed to now+TTL on every tick, so anything older cannot still be
// live. Recovery never republishes; the resumed loop refreshes the record
// on its next tick.
func (svc *Service) RecoverSession(ctx context.Context) error {
	if err := svc.waitForRelay(ctx); err != nil {
		// fail open: no relay within the timeout means nothing to recover
		svc.Logger.Infof("session recovery skipped: %v", err)
		return nil
	}

	now := svc.clock.Now()
	since := nostr.Timestamp(now.Add(-2 * svc.Config.RequestTTL()).Unix())
	events := svc.Pool.QuerySync(ctx, nostr.Filter{
		Authors: []string{svc.Pool.PublicKey()},
		Kinds:   []int{common.KindGigRequest, common.KindGigOffer},
		Since:   &since,
	})

	// QuerySync returns newest first; the first non-expired record is the
	// session to resume.
	for _, ev := range events {
		if eventExpired(ev, now) {
			continue
		}
		switch ev.Kind {
		case common.KindGigRequest:
			return svc.recoverRequester(ctx, ev)
		case common.KindGigOffer:
			return svc.recoverProvider(ctx, ev)
		}
	}
	svc.Logger.Debugf("no live session record found on relays")
	return nil
}

func (svc *Service) recoverRequester(ctx context.Context, ev *nostr.Event) error {
	req, err := parseRequestEvent(ev)
	if err != nil {
		svc.Logger.Infof("ignoring unreadable own request record: %v", err)
		return nil
	}
	if req.Status == common.RequestStatusCancelled {
		return nil
	}
	m, effects := resumeRequester(req, svc.Config.Vertical, svc.Config.RequestTTL())
	if err := svc.installSession(ctx, m, effects, svc.requesterFilters(req)); err != nil {
		return err
	}
	svc.Logger.Infof("recovered requester session %s (status %s)", req.ID, req.Status)
	return nil
}

func (svc *Service) recoverProvider(ctx context.Context, ev *nostr.Event) error {
	offer, err := parseOfferEvent(ev)
	if err != nil {
		svc.Logger.Infof("ignoring unreadable own offer record: %v", err)
		return nil
	}
	m, effects := resumeProvider(offer, svc.Config.Vertical, svc.Config.RequestTTL())
	if err := svc.installSession(ctx, m, effects, svc.providerFilters(offer)); err != nil {
		return err
	}
	svc.Logger.Infof("recovered provider session in cell %s", offer.Geohash)
	return nil
}

// waitForRelay blocks until at least one relay connection is up, or the
// recovery timeout passes.
func (svc *Service) waitForRelay(ctx context.Context) error {
	deadline := svc.clock.Now().Add(svc.Config.RecoveryTimeout())
	for {
		if connected, _ := svc.Pool.Status(); connected > 0 {
			return nil
		}
		if svc.clock.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
