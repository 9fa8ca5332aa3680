package service

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/worldpeaceenginelabs/cloudatlas.go/db"
)

// ResolveSecretKey produces the daemon's signing key. An explicitly
// configured key (hex or nsec) wins; otherwise the key persisted in the
// store is reused, and a fresh one is generated and persisted on first run.
func ResolveSecretKey(cfg *Config, store *db.Store) (string, error) {
	if cfg.SecretKey != "" {
		return decodeSecretKey(cfg.SecretKey)
	}

	var stored string
	found, err := store.Get(store.SettingKey("secret_key"), &stored)
	if err != nil {
		return "", fmt.Errorf("reading stored identity: %w", err)
	}
	if found && stored != "" {
		return stored, nil
	}

	sk := nostr.GeneratePrivateKey()
	if err := store.Set(store.SettingKey("secret_key"), sk); err != nil {
		return "", fmt.Errorf("persisting generated identity: %w", err)
	}
	return sk, nil
}

func decodeSecretKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "nsec") {
		prefix, value, err := nip19.Decode(raw)
		if err != nil {
			return "", fmt.Errorf("decoding secret key: %w", err)
		}
		if prefix != "nsec" {
			return "", fmt.Errorf("expected an nsec key, got %s", prefix)
		}
		return value.(string), nil
	}
	if _, err := nostr.GetPublicKey(raw); err != nil {
		return "", fmt.Errorf("invalid secret key: %w", err)
	}
	return raw, nil
}
