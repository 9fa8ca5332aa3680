package relaypool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/gommon/log"
	"github.com/nbd-wtf/go-nostr"
	"github.com/ziflex/lecho/v3"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
)

const (
	defaultPublishTimeout = 7 * time.Second
	defaultQueryTimeout   = 7 * time.Second
	maxReconnectInterval  = 30 * time.Second
)

type (
	// EventHandler receives events for a subscription. Invocations for the
	// same subscription are serialized and preserve relay-delivery order.
	EventHandler = func(ev *nostr.Event)
	// EOSEHandler fires once, when the first relay signals end of stored events.
	EOSEHandler = func()
	// StatusHandler reports (connected, total) whenever connectivity changes.
	StatusHandler = func(connected, total int)
)

// Pool is the client-side view of the relay network: N independent websocket
// endpoints spoken to as one broadcast medium.
type Pool interface {
	Subscribe(ctx context.Context, id string, filters nostr.Filters, onEvent EventHandler, onEOSE EOSEHandler) error
	Unsubscribe(id string)
	Publish(ctx context.Context, ev nostr.Event)
	PublishReplaceable(ctx context.Context, kind int, dTag string, tags nostr.Tags, content string) (string, error)
	PublishEphemeral(ctx context.Context, kind int, tags nostr.Tags, content string) error
	QuerySync(ctx context.Context, filter nostr.Filter) []*nostr.Event
	Status() (connected, total int)
	SetStatusHandler(h StatusHandler)
	PublicKey() string
	Acquire()
	Release()
}

// DefaultPool dials every configured relay, keeps each connection alive with
// exponential backoff, and re-fires active subscriptions after a reconnect.
// Matching and listing sessions share one pool; the connections close only
// when the reference count drops to zero.
type DefaultPool struct {
	secretKey string
	publicKey string
	logger    *lecho.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	endpoints []*endpoint
	subs      map[string]*subscription
	onStatus  StatusHandler
	refs      int
	closed    bool
}

type endpoint struct {
	url       string
	relay     *nostr.Relay
	connected bool
}

type subscription struct {
	id      string
	filters nostr.Filters
	onEvent EventHandler
	onEOSE  EOSEHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	eoseFired bool
	seen      map[string]struct{}
	relaySubs map[string]*nostr.Subscription
}

var _ Pool = (*DefaultPool)(nil)

// Dial constructs a pool over the given relay URLs and starts one connection
// maintenance goroutine per endpoint. The caller owns one reference; Release
// (or Close) gives it back.
func Dial(ctx context.Context, urls []string, secretKey string, options ...PoolOption) (*DefaultPool, error) {
	if len(urls) == 0 {
		return nil, errors.New("relaypool: at least one relay URL is required")
	}
	publicKey, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("relaypool: invalid secret key: %w", err)
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &DefaultPool{
		secretKey: secretKey,
		publicKey: publicKey,
		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.INFO),
			lecho.WithTimestamp(),
		),
		ctx:    poolCtx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
		refs:   1,
	}
	for _, opt := range options {
		opt(p)
	}

	for _, url := range urls {
		ep := &endpoint{url: url}
		p.endpoints = append(p.endpoints, ep)
		p.wg.Add(1)
		go p.maintain(ep)
	}
	return p, nil
}

// PublicKey returns the hex public key the pool signs with.
func (p *DefaultPool) PublicKey() string { return p.publicKey }

// Acquire takes a reference on the pool for use by a session.
func (p *DefaultPool) Acquire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs++
}

// Release gives back a reference. At zero, all connections are torn down and
// Release blocks until the maintenance goroutines have exited.
func (p *DefaultPool) Release() {
	p.mu.Lock()
	p.refs--
	done := p.refs <= 0 && !p.closed
	if done {
		p.closed = true
	}
	p.mu.Unlock()

	if !done {
		return
	}
	p.cancel()
	p.mu.Lock()
	for _, ep := range p.endpoints {
		if ep.relay != nil {
			ep.relay.Close()
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Close releases the caller-owned reference taken by Dial.
func (p *DefaultPool) Close() { p.Release() }

// Status reports how many endpoints currently hold a live connection.
func (p *DefaultPool) Status() (connected, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		if ep.connected {
			connected++
		}
	}
	return connected, len(p.endpoints)
}

// SetStatusHandler installs the connectivity callback and reports the
// current state immediately.
func (p *DefaultPool) SetStatusHandler(h StatusHandler) {
	p.mu.Lock()
	p.onStatus = h
	p.mu.Unlock()
	p.notifyStatus()
}

// maintain owns the lifecycle of a single relay connection: dial, resubscribe,
// wait for the connection to die, back off, repeat.
func (p *DefaultPool) maintain(ep *endpoint) {
	defer p.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxReconnectInterval
	bo.MaxElapsedTime = 0 // retry for as long as the pool lives

	for {
		if p.ctx.Err() != nil {
			return
		}
		relay, err := nostr.RelayConnect(p.ctx, ep.url)
		if err != nil {
			reconnectAttempts.WithLabelValues(ep.url).Inc()
			wait := bo.NextBackOff()
			p.logger.Warnf("relaypool: connect to %s failed (retry in %v): %v", ep.url, wait, err)
			select {
			case <-time.After(wait):
				continue
			case <-p.ctx.Done():
				return
			}
		}
		bo.Reset()

		p.mu.Lock()
		ep.relay = relay
		ep.connected = true
		subs := make([]*subscription, 0, len(p.subs))
		for _, sub := range p.subs {
			subs = append(subs, sub)
		}
		p.mu.Unlock()
		p.logger.Infof("relaypool: connected to %s", ep.url)
		p.notifyStatus()

		// re-fire every live REQ on the fresh connection
		for _, sub := range subs {
			p.openOn(ep.url, relay, sub)
		}

		select {
		case <-relay.Context().Done():
		case <-p.ctx.Done():
			relay.Close()
			return
		}

		p.mu.Lock()
		ep.relay = nil
		ep.connected = false
		p.mu.Unlock()
		p.logger.Warnf("relaypool: lost connection to %s: %v", ep.url, relay.ConnectionError)
		p.notifyStatus()
	}
}

func (p *DefaultPool) notifyStatus() {
	p.mu.Lock()
	h := p.onStatus
	connected := 0
	for _, ep := range p.endpoints {
		if ep.connected {
			connected++
		}
	}
	total := len(p.endpoints)
	p.mu.Unlock()

	connectedRelays.Set(float64(connected))
	if h != nil {
		h(connected, total)
	}
}

// Subscribe registers a filter set under id and fires it at every connected
// relay. Events are deduplicated across relays by event id.
func (p *DefaultPool) Subscribe(ctx context.Context, id string, filters nostr.Filters, onEvent EventHandler, onEOSE EOSEHandler) error {
	subCtx, subCancel := context.WithCancel(p.ctx)
	sub := &subscription{
		id:        id,
		filters:   filters,
		onEvent:   onEvent,
		onEOSE:    onEOSE,
		ctx:       subCtx,
		cancel:    subCancel,
		seen:      make(map[string]struct{}),
		relaySubs: make(map[string]*nostr.Subscription),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		subCancel()
		return errors.New("relaypool: pool is closed")
	}
	if _, exists := p.subs[id]; exists {
		p.mu.Unlock()
		subCancel()
		return fmt.Errorf("relaypool: subscription %q already active", id)
	}
	p.subs[id] = sub
	type live struct {
		url   string
		relay *nostr.Relay
	}
	var relays []live
	for _, ep := range p.endpoints {
		if ep.connected && ep.relay != nil {
			relays = append(relays, live{ep.url, ep.relay})
		}
	}
	p.mu.Unlock()

	for _, r := range relays {
		p.openOn(r.url, r.relay, sub)
	}
	return nil
}

// Unsubscribe closes the subscription. It is synchronous in the sense that
// once it returns, no further handler invocation can begin.
func (p *DefaultPool) Unsubscribe(id string) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	sub.cancel()
	sub.mu.Lock()
	sub.closed = true
	relaySubs := make([]*nostr.Subscription, 0, len(sub.relaySubs))
	for _, rs := range sub.relaySubs {
		relaySubs = append(relaySubs, rs)
	}
	sub.relaySubs = map[string]*nostr.Subscription{}
	sub.mu.Unlock()

	for _, rs := range relaySubs {
		rs.Unsub()
	}
}

func (p *DefaultPool) openOn(url string, relay *nostr.Relay, sub *subscription) {
	rs, err := relay.Subscribe(sub.ctx, sub.filters, nostr.WithLabel(sub.id))
	if err != nil {
		p.logger.Warnf("relaypool: REQ %s at %s failed: %v", sub.id, url, err)
		return
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		rs.Unsub()
		return
	}
	sub.relaySubs[url] = rs
	sub.mu.Unlock()

	go func() {
		eose := rs.EndOfStoredEvents
		for {
			select {
			case ev, ok := <-rs.Events:
				if !ok {
					return
				}
				sub.dispatch(ev)
			case <-eose:
				sub.dispatchEOSE()
				eose = nil
			case <-sub.ctx.Done():
				return
			}
		}
	}()
}

// dispatch serializes handler invocations under the subscription lock: this
// both preserves delivery order for the callback and guarantees that nothing
// fires after Unsubscribe has returned.
func (s *subscription) dispatch(ev *nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, dup := s.seen[ev.ID]; dup {
		return
	}
	s.seen[ev.ID] = struct{}{}
	eventsReceived.Inc()
	s.onEvent(ev)
}

func (s *subscription) dispatchEOSE() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.eoseFired {
		return
	}
	s.eoseFired = true
	if s.onEOSE != nil {
		s.onEOSE()
	}
}

// Publish broadcasts a pre-built (already signed) event to every connected
// relay. Fire-and-forget: failures are logged, never returned, because the
// protocol only needs one relay to take the write.
func (p *DefaultPool) Publish(ctx context.Context, ev nostr.Event) {
	p.mu.Lock()
	var relays []*nostr.Relay
	for _, ep := range p.endpoints {
		if ep.connected && ep.relay != nil {
			relays = append(relays, ep.relay)
		}
	}
	p.mu.Unlock()

	if len(relays) == 0 {
		p.logger.Warnf("relaypool: no connected relay to publish event %s", ev.ID)
		return
	}

	for _, relay := range relays {
		relay := relay
		go func() {
			pubCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
			defer cancel()
			if err := relay.Publish(pubCtx, ev); err != nil {
				p.logger.Debugf("relaypool: publish of %s to %s failed: %v", ev.ID, relay.URL, err)
				return
			}
			eventsPublished.Inc()
		}()
	}
}

// PublishReplaceable builds, signs and broadcasts a d-tag replaceable event.
// Relays keep only the newest event per (pubkey, kind, d), which is the
// protocol's last-write-wins primitive.
func (p *DefaultPool) PublishReplaceable(ctx context.Context, kind int, dTag string, tags nostr.Tags, content string) (string, error) {
	ev := nostr.Event{
		PubKey:    p.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      append(nostr.Tags{nostr.Tag{common.TagIdentifier, dTag}}, tags...),
		Content:   content,
	}
	if err := ev.Sign(p.secretKey); err != nil {
		return "", fmt.Errorf("relaypool: signing replaceable event: %w", err)
	}
	p.Publish(ctx, ev)
	return ev.ID, nil
}

// PublishEphemeral builds, signs and broadcasts a transient event.
func (p *DefaultPool) PublishEphemeral(ctx context.Context, kind int, tags nostr.Tags, content string) error {
	ev := nostr.Event{
		PubKey:    p.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(p.secretKey); err != nil {
		return fmt.Errorf("relaypool: signing ephemeral event: %w", err)
	}
	p.Publish(ctx, ev)
	return nil
}

// QuerySync asks every connected relay for stored events matching the filter
// and merges the answers, newest first, deduplicated by event id. Used by
// session recovery and the listing cache refresh.
func (p *DefaultPool) QuerySync(ctx context.Context, filter nostr.Filter) []*nostr.Event {
	p.mu.Lock()
	var relays []*nostr.Relay
	for _, ep := range p.endpoints {
		if ep.connected && ep.relay != nil {
			relays = append(relays, ep.relay)
		}
	}
	p.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	results := make(chan []*nostr.Event, len(relays))
	for _, relay := range relays {
		relay := relay
		wg.Add(1)
		go func() {
			defer wg.Done()
			evs, err := relay.QuerySync(ctx, filter)
			if err != nil {
				p.logger.Debugf("relaypool: query at %s failed: %v", relay.URL, err)
				return
			}
			results <- evs
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]struct{})
	var merged []*nostr.Event
	for evs := range results {
		for _, ev := range evs {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			merged = append(merged, ev)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt != merged[j].CreatedAt {
			return merged[i].CreatedAt > merged[j].CreatedAt
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
