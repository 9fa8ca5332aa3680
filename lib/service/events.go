package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
)

// The wire content of a request event. Identity (id, pubkey) and spatial
// scope (geohash) live in tags so relays can filter on them; everything else
// is opaque JSON content.
type requestContent struct {
	StartLocation         geohash.Point     `json:"start_location"`
	Destination           *geohash.Point    `json:"destination,omitempty"`
	Status                string            `json:"status"`
	MatchedProviderPubkey string            `json:"matched_provider_pubkey,omitempty"`
	Details               map[string]string `json:"details,omitempty"`
}

type offerContent struct {
	Location geohash.Point     `json:"location"`
	Details  map[string]string `json:"details,omitempty"`
}

func needTopic(vertical string) string    { return common.NeedTopicPrefix + vertical }
func offerTopic(vertical string) string   { return common.OfferTopicPrefix + vertical }
func listingTopic(vertical string) string { return common.ListingTopicPrefix + vertical }

// offerDTag identifies a provider's single live offer per vertical; together
// with (pubkey, kind) it makes the offer replaceable.
func offerDTag(vertical string) string { return "offer-" + vertical }

func expirationTag(at time.Time) nostr.Tag {
	return nostr.Tag{common.TagExpiration, strconv.FormatInt(at.Unix(), 10)}
}

func requestEventBody(req *GigRequest, vertical string, expiresAt time.Time) (tags nostr.Tags, content string, err error) {
	raw, err := json.Marshal(requestContent{
		StartLocation:         req.StartLocation,
		Destination:           req.Destination,
		Status:                req.Status,
		MatchedProviderPubkey: req.MatchedProviderPubkey,
		Details:               req.Details,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encoding request %s: %w", req.ID, err)
	}
	tags = nostr.Tags{
		{common.TagTopic, needTopic(vertical)},
		{common.TagGeohash, req.Geohash},
		expirationTag(expiresAt),
	}
	if req.MatchedProviderPubkey != "" {
		tags = append(tags, nostr.Tag{common.TagPubkey, req.MatchedProviderPubkey})
	}
	return tags, string(raw), nil
}

func offerEventBody(offer *Offer, vertical string, expiresAt time.Time) (tags nostr.Tags, content string, err error) {
	raw, err := json.Marshal(offerContent{
		Location: offer.Location,
		Details:  offer.Details,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encoding offer: %w", err)
	}
	tags = nostr.Tags{
		{common.TagTopic, offerTopic(vertical)},
		{common.TagGeohash, offer.Geohash},
		expirationTag(expiresAt),
	}
	return tags, string(raw), nil
}

func listingEventBody(l *Listing, vertical string, expiresAt time.Time) (tags nostr.Tags, content string, err error) {
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, "", fmt.Errorf("encoding listing %s: %w", l.ID, err)
	}
	tags = nostr.Tags{
		{common.TagTopic, listingTopic(vertical)},
		expirationTag(expiresAt),
	}
	if l.Geohash != "" {
		tags = append(tags, nostr.Tag{common.TagGeohash, l.Geohash})
	}
	return tags, string(raw), nil
}

func acceptEventBody(requesterPubkey, requestID string) nostr.Tags {
	return nostr.Tags{
		{common.TagPubkey, requesterPubkey},
		{common.TagEvent, requestID},
	}
}

func tagValue(ev *nostr.Event, key string) string {
	if tag := ev.Tags.GetFirst([]string{key}); tag != nil {
		return tag.Value()
	}
	return ""
}

// eventExpiration parses the NIP-40 expiration tag. ok is false when the
// event carries none (it then never expires).
func eventExpiration(ev *nostr.Event) (time.Time, bool) {
	raw := tagValue(ev, common.TagExpiration)
	if raw == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func eventExpired(ev *nostr.Event, now time.Time) bool {
	at, ok := eventExpiration(ev)
	return ok && !now.Before(at)
}

func parseRequestEvent(ev *nostr.Event) (*GigRequest, error) {
	var content requestContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		return nil, fmt.Errorf("malformed request content in event %s: %w", ev.ID, err)
	}
	id := tagValue(ev, common.TagIdentifier)
	if id == "" {
		return nil, fmt.Errorf("request event %s has no d tag", ev.ID)
	}
	if !content.StartLocation.Valid() {
		return nil, fmt.Errorf("request event %s has an invalid start location", ev.ID)
	}
	req := &GigRequest{
		ID:                    id,
		Pubkey:                ev.PubKey,
		StartLocation:         content.StartLocation,
		Destination:           content.Destination,
		Status:                content.Status,
		MatchedProviderPubkey: content.MatchedProviderPubkey,
		Geohash:               tagValue(ev, common.TagGeohash),
		Details:               content.Details,
		CreatedAt:             ev.CreatedAt.Time(),
		EventID:               ev.ID,
	}
	if at, ok := eventExpiration(ev); ok {
		req.ExpiresAt = at
	}
	return req, nil
}

func parseOfferEvent(ev *nostr.Event) (*Offer, error) {
	var content offerContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		return nil, fmt.Errorf("malformed offer content in event %s: %w", ev.ID, err)
	}
	if !content.Location.Valid() {
		return nil, fmt.Errorf("offer event %s has an invalid location", ev.ID)
	}
	offer := &Offer{
		Pubkey:    ev.PubKey,
		Location:  content.Location,
		Details:   content.Details,
		Geohash:   tagValue(ev, common.TagGeohash),
		CreatedAt: ev.CreatedAt.Time(),
	}
	if at, ok := eventExpiration(ev); ok {
		offer.ExpiresAt = at
	}
	return offer, nil
}

func parseListingEvent(ev *nostr.Event) (*Listing, error) {
	var l Listing
	if err := json.Unmarshal([]byte(ev.Content), &l); err != nil {
		return nil, fmt.Errorf("malformed listing content in event %s: %w", ev.ID, err)
	}
	if l.ID == "" {
		l.ID = tagValue(ev, common.TagIdentifier)
	}
	if l.ID == "" {
		return nil, fmt.Errorf("listing event %s has no id", ev.ID)
	}
	l.Pubkey = ev.PubKey
	return &l, nil
}
