package service

import (
	"os"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"

	"github.com/worldpeaceenginelabs/cloudatlas.go/db"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/logging"
)

func testIdentityStore(t *testing.T) *db.Store {
	dir, err := os.MkdirTemp("", "cloudatlas-identity")
	assert.NoError(t, err)
	store, err := db.Open(dir, logging.Logger(""))
	assert.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(dir)
	})
	return store
}

func TestResolveSecretKeyGeneratesAndPersists(t *testing.T) {
	store := testIdentityStore(t)
	cfg := &Config{}

	first, err := ResolveSecretKey(cfg, store)
	assert.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := ResolveSecretKey(cfg, store)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveSecretKeyPrefersConfiguredHex(t *testing.T) {
	store := testIdentityStore(t)
	sk := nostr.GeneratePrivateKey()

	resolved, err := ResolveSecretKey(&Config{SecretKey: sk}, store)
	assert.NoError(t, err)
	assert.Equal(t, sk, resolved)
}

func TestResolveSecretKeyDecodesNsec(t *testing.T) {
	store := testIdentityStore(t)
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	assert.NoError(t, err)

	resolved, err := ResolveSecretKey(&Config{SecretKey: nsec}, store)
	assert.NoError(t, err)
	assert.Equal(t, sk, resolved)
}

func TestResolveSecretKeyRejectsGarbage(t *testing.T) {
	store := testIdentityStore(t)
	_, err := ResolveSecretKey(&Config{SecretKey: "not-a-key"}, store)
	assert.Error(t, err)
}
