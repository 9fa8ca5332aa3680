package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/ziflex/lecho/v3"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
	"github.com/worldpeaceenginelabs/cloudatlas.go/db"
	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
	"github.com/worldpeaceenginelabs/cloudatlas.go/relaypool"
)

// Service is the application core: it owns the relay pool, the embedded
// store, the listing cache and at most one live matching session, and it is
// what both the HTTP controllers and embedding Go code talk to.
type Service struct {
	Config    *Config
	Logger    *lecho.Logger
	Pool      relaypool.Pool
	Store     *db.Store
	Cache     *ListingCache
	Notifier  *Pubsub
	Callbacks Callbacks

	clock clock

	mu      sync.Mutex
	session *gigSession
}

func NewService(cfg *Config, logger *lecho.Logger, pool relaypool.Pool, store *db.Store) *Service {
	svc := &Service{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Store:    store,
		Notifier: NewPubsub(),
		clock:    realClock{},
	}
	svc.Cache = NewListingCache(svc)
	pool.SetStatusHandler(func(connected, total int) {
		svc.emit(Notification{
			Type:      common.NotificationRelayStatus,
			Connected: connected,
			Total:     total,
		})
	})
	return svc
}

var (
	ErrSessionActive = fmt.Errorf("a matching session is already active")
	ErrNoSession     = fmt.Errorf("no matching session is active")
)

// StartAsRequester publishes a need at the start location and begins
// listening for offers and accept signals in the same geohash cell. One
// session per daemon: a second start fails until the first ends.
func (svc *Service) StartAsRequester(ctx context.Context, start geohash.Point, dest *geohash.Point, details map[string]string) (*GigRequest, error) {
	if !start.Valid() {
		return nil, fmt.Errorf("invalid start location %+v", start)
	}
	if dest != nil && !dest.Valid() {
		return nil, fmt.Errorf("invalid destination %+v", dest)
	}

	now := svc.clock.Now()
	req := &GigRequest{
		ID:            uuid.NewString(),
		Pubkey:        svc.Pool.PublicKey(),
		StartLocation: start,
		Destination:   dest,
		Status:        common.RequestStatusOpen,
		Geohash:       geohash.Encode(start.Lat, start.Lon, common.GigGeohashPrecision),
		Details:       details,
		CreatedAt:     now,
		ExpiresAt:     now.Add(svc.Config.RequestTTL()),
	}

	m, effects := startRequester(req, svc.Config.Vertical, now, svc.Config.RequestTTL())
	if err := svc.installSession(ctx, m, effects, svc.requesterFilters(req)); err != nil {
		return nil, err
	}
	svc.Logger.Infof("requester session %s started in cell %s", req.ID, req.Geohash)
	return req, nil
}

// StartAsProvider publishes an availability offer at the given location and
// begins listening for open needs in the cell.
func (svc *Service) StartAsProvider(ctx context.Context, location geohash.Point, details map[string]string) (*Offer, error) {
	if !location.Valid() {
		return nil, fmt.Errorf("invalid location %+v", location)
	}

	now := svc.clock.Now()
	offer := &Offer{
		Pubkey:    svc.Pool.PublicKey(),
		Location:  location,
		Details:   details,
		Geohash:   geohash.Encode(location.Lat, location.Lon, common.GigGeohashPrecision),
		CreatedAt: now,
		ExpiresAt: now.Add(svc.Config.RequestTTL()),
	}

	m, effects := startProvider(offer, svc.Config.Vertical, now, svc.Config.RequestTTL())
	if err := svc.installSession(ctx, m, effects, svc.providerFilters(offer)); err != nil {
		return nil, err
	}
	svc.Logger.Infof("provider session started in cell %s", offer.Geohash)
	return offer, nil
}

type sessionSub struct {
	filters nostr.Filters
	handler relaypool.EventHandler
}

// installSession wires subscriptions and spawns the session loop, holding a
// pool reference for the session's lifetime.
func (svc *Service) installSession(ctx context.Context, m machine, effects []effect, subs func(*gigSession) []sessionSub) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.session != nil {
		snap := svc.session.Snapshot()
		if !State(snap.State).terminal() {
			return ErrSessionActive
		}
		// previous session already ended, just reap it
		svc.session.stop()
		svc.session = nil
	}

	sess := newGigSession(svc)
	svc.Pool.Acquire()
	for _, sub := range subs(sess) {
		id := uuid.NewString()
		if err := svc.Pool.Subscribe(ctx, id, sub.filters, sub.handler, nil); err != nil {
			for _, opened := range sess.subIDs {
				svc.Pool.Unsubscribe(opened)
			}
			svc.Pool.Release()
			return fmt.Errorf("subscribing to relays: %w", err)
		}
		sess.subIDs = append(sess.subIDs, id)
	}

	// snapshot must be readable the moment Start returns, before the loop runs
	sess.publishSnapshot(m)
	svc.session = sess
	sessionsStartedTotal.WithLabelValues(string(m.role)).Inc()
	go sess.run(m, effects)
	return nil
}

func (svc *Service) requesterFilters(req *GigRequest) func(*gigSession) []sessionSub {
	return func(sess *gigSession) []sessionSub {
		return []sessionSub{
			{
				filters: nostr.Filters{{
					Kinds: []int{common.KindGigOffer},
					Tags: nostr.TagMap{
						common.TagTopic:   []string{offerTopic(svc.Config.Vertical)},
						common.TagGeohash: []string{req.Geohash},
					},
				}},
				handler: sess.handleOfferEvent,
			},
			{
				filters: nostr.Filters{{
					Kinds: []int{common.KindGigAccept},
					Tags: nostr.TagMap{
						common.TagPubkey: []string{svc.Pool.PublicKey()},
						common.TagEvent:  []string{req.ID},
					},
				}},
				handler: sess.handleAcceptEvent,
			},
		}
	}
}

func (svc *Service) providerFilters(offer *Offer) func(*gigSession) []sessionSub {
	return func(sess *gigSession) []sessionSub {
		return []sessionSub{
			{
				filters: nostr.Filters{{
					Kinds: []int{common.KindGigRequest},
					Tags: nostr.TagMap{
						common.TagTopic:   []string{needTopic(svc.Config.Vertical)},
						common.TagGeohash: []string{offer.Geohash},
					},
				}},
				handler: sess.handleRequestEvent,
			},
		}
	}
}

// AcceptRequest signals the candidate request's owner that this provider
// takes the job. The match is only final once the requester's taken record
// names this provider.
func (svc *Service) AcceptRequest(requestID string) error {
	return svc.sendToSession(inCmdAccept{requestID: requestID, now: svc.clock.Now()})
}

// DeclineRequest drops the current candidate and surfaces the next one.
func (svc *Service) DeclineRequest() error {
	return svc.sendToSession(inCmdDecline{now: svc.clock.Now()})
}

// CancelSession takes down the session's own relay record (request or offer)
// and tears the session down. It blocks until the loop has exited.
func (svc *Service) CancelSession() error {
	svc.mu.Lock()
	sess := svc.session
	svc.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	sess.send(inCmdCancel{now: svc.clock.Now()})
	<-sess.done
	sess.stop()

	svc.mu.Lock()
	if svc.session == sess {
		svc.session = nil
	}
	svc.mu.Unlock()
	return nil
}

func (svc *Service) sendToSession(in input) error {
	svc.mu.Lock()
	sess := svc.session
	svc.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	sess.send(in)
	return nil
}

// CurrentSession returns a snapshot of the live session, if any.
func (svc *Service) CurrentSession() (SessionSnapshot, bool) {
	svc.mu.Lock()
	sess := svc.session
	svc.mu.Unlock()
	if sess == nil {
		return SessionSnapshot{}, false
	}
	return sess.Snapshot(), true
}

// Shutdown reaps the live session, if any, without publishing a take-down.
// The relay record keeps its last expiration and recovery picks it back up
// on the next start.
func (svc *Service) Shutdown() {
	svc.mu.Lock()
	sess := svc.session
	svc.session = nil
	svc.mu.Unlock()
	if sess != nil {
		sess.stop()
	}
}
