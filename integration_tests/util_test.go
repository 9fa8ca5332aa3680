package integration_tests

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"

	"github.com/worldpeaceenginelabs/cloudatlas.go/db"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/logging"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
	"github.com/worldpeaceenginelabs/cloudatlas.go/relaypool"
)

// mockRelayNetwork stands in for the real relay set: it stores replaceable
// events, forwards ephemerals, and replays stored events to new
// subscriptions, so several daemons wired to the same instance behave like
// peers on a shared relay.
type mockRelayNetwork struct {
	mu     sync.Mutex
	events map[string]*nostr.Event // pubkey/kind/dtag -> latest replaceable event
	subs   map[string]*mockSub
}

type mockSub struct {
	filters nostr.Filters
	handler relaypool.EventHandler
}

func newMockRelayNetwork() *mockRelayNetwork {
	return &mockRelayNetwork{
		events: map[string]*nostr.Event{},
		subs:   map[string]*mockSub{},
	}
}

func replaceableKey(ev *nostr.Event) string {
	dTag := ""
	if tag := ev.Tags.GetFirst([]string{"d"}); tag != nil {
		dTag = tag.Value()
	}
	return fmt.Sprintf("%s/%d/%s", ev.PubKey, ev.Kind, dTag)
}

func (n *mockRelayNetwork) accept(ev *nostr.Event) {
	n.mu.Lock()
	// ephemeral kinds are forwarded, never stored
	if ev.Kind < 20000 || ev.Kind >= 30000 {
		n.events[replaceableKey(ev)] = ev
	}
	var handlers []relaypool.EventHandler
	for _, sub := range n.subs {
		if sub.filters.Match(ev) {
			handlers = append(handlers, sub.handler)
		}
	}
	n.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (n *mockRelayNetwork) subscribe(id string, filters nostr.Filters, handler relaypool.EventHandler) {
	n.mu.Lock()
	n.subs[id] = &mockSub{filters: filters, handler: handler}
	var replay []*nostr.Event
	for _, ev := range n.events {
		if filters.Match(ev) {
			replay = append(replay, ev)
		}
	}
	n.mu.Unlock()

	for _, ev := range replay {
		handler(ev)
	}
}

func (n *mockRelayNetwork) unsubscribe(id string) {
	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
}

func (n *mockRelayNetwork) subCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *mockRelayNetwork) query(filter nostr.Filter) []*nostr.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*nostr.Event
	for _, ev := range n.events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// mockPool is one daemon's view of the mock network. It satisfies
// relaypool.Pool and always reports a single connected relay.
type mockPool struct {
	network   *mockRelayNetwork
	secretKey string
	publicKey string
}

func newMockPool(network *mockRelayNetwork) *mockPool {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	return &mockPool{network: network, secretKey: sk, publicKey: pk}
}

func (p *mockPool) Subscribe(ctx context.Context, id string, filters nostr.Filters, onEvent relaypool.EventHandler, onEOSE relaypool.EOSEHandler) error {
	p.network.subscribe(id, filters, onEvent)
	if onEOSE != nil {
		onEOSE()
	}
	return nil
}

func (p *mockPool) Unsubscribe(id string) {
	p.network.unsubscribe(id)
}

func (p *mockPool) Publish(ctx context.Context, ev nostr.Event) {
	p.network.accept(&ev)
}

func (p *mockPool) PublishReplaceable(ctx context.Context, kind int, dTag string, tags nostr.Tags, content string) (string, error) {
	ev := nostr.Event{
		PubKey:    p.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      append(nostr.Tags{{"d", dTag}}, tags...),
		Content:   content,
	}
	if err := ev.Sign(p.secretKey); err != nil {
		return "", err
	}
	p.network.accept(&ev)
	return ev.ID, nil
}

func (p *mockPool) PublishEphemeral(ctx context.Context, kind int, tags nostr.Tags, content string) error {
	ev := nostr.Event{
		PubKey:    p.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(p.secretKey); err != nil {
		return err
	}
	p.network.accept(&ev)
	return nil
}

func (p *mockPool) QuerySync(ctx context.Context, filter nostr.Filter) []*nostr.Event {
	return p.network.query(filter)
}

func (p *mockPool) Status() (connected, total int) { return 1, 1 }
func (p *mockPool) SetStatusHandler(h relaypool.StatusHandler) {}
func (p *mockPool) PublicKey() string { return p.publicKey }
func (p *mockPool) Acquire()          {}
func (p *mockPool) Release()          {}

// newTestService spins up a daemon against the shared mock network with its
// own identity and temp store.
func newTestService(t *testing.T, network *mockRelayNetwork) *service.Service {
	dir, err := os.MkdirTemp("", "cloudatlas-test")
	assert.NoError(t, err)
	logger := logging.Logger("")
	store, err := db.Open(dir, logger)
	assert.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(dir)
	})

	c := &service.Config{
		Vertical:            "helpouts",
		RequestTTLSecs:      60,
		RefreshIntervalSecs: 1,
		ListingTTLDays:      7,
		CacheTTLMinutes:     30,
		RecoveryTimeoutSecs: 2,
	}
	svc := service.NewService(c, logger, newMockPool(network), store)
	t.Cleanup(svc.Shutdown)
	return svc
}

// newTestServiceWithPool reuses an existing pool identity, as a restarted
// daemon would.
func newTestServiceWithPool(t *testing.T, pool relaypool.Pool, cfg *service.Config) *service.Service {
	return newTestServiceOverStore(t, pool, newTestStore(t), cfg)
}

// newTestStore opens a temp badger store cleaned up with the test.
func newTestStore(t *testing.T) *db.Store {
	dir, err := os.MkdirTemp("", "cloudatlas-test")
	assert.NoError(t, err)
	store, err := db.Open(dir, logging.Logger(""))
	assert.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(dir)
	})
	return store
}

// newTestServiceOverStore builds a daemon over an existing store, so restart
// scenarios can keep persisted state across service instances.
func newTestServiceOverStore(t *testing.T, pool relaypool.Pool, store *db.Store, cfg *service.Config) *service.Service {
	svc := service.NewService(cfg, logging.Logger(""), pool, store)
	t.Cleanup(svc.Shutdown)
	return svc
}
