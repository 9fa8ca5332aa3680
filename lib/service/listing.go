package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/worldpeaceenginelabs/cloudatlas.go/common"
	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
)

func nostrListingFilter(author, id string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{common.KindListing},
		Authors: []string{author},
		Tags:    nostr.TagMap{common.TagIdentifier: []string{id}},
	}
}

// PublishListing posts a classified listing as a replaceable event with a
// week-scale expiration. In-person and hybrid listings must carry a
// location; online-only listings go out without a geohash and are
// discoverable vertical-wide.
func (svc *Service) PublishListing(ctx context.Context, l *Listing) (*Listing, error) {
	switch l.Mode {
	case common.ListingModeInPerson, common.ListingModeBoth:
		if l.Location == nil || !l.Location.Valid() {
			return nil, fmt.Errorf("listing mode %q requires a valid location", l.Mode)
		}
		l.Geohash = geohash.Encode(l.Location.Lat, l.Location.Lon, common.ListingGeohashPrecision)
	case common.ListingModeOnline:
		l.Location = nil
		l.Geohash = ""
	default:
		return nil, fmt.Errorf("unknown listing mode %q", l.Mode)
	}
	if l.Description == "" {
		return nil, fmt.Errorf("listing needs a description")
	}

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Pubkey = svc.Pool.PublicKey()
	l.Timestamp = svc.clock.Now()

	expiresAt := l.Timestamp.Add(svc.Config.ListingTTL())
	tags, content, err := listingEventBody(l, svc.Config.Vertical, expiresAt)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Pool.PublishReplaceable(ctx, common.KindListing, l.ID, tags, content); err != nil {
		return nil, fmt.Errorf("publishing listing %s: %w", l.ID, err)
	}

	svc.Cache.ForceRefresh(svc.Config.Vertical)
	listingsPublishedTotal.Inc()
	svc.Logger.Infof("published listing %s (%s)", l.ID, l.Mode)
	return l, nil
}

// TakedownListing replaces the listing's relay record with one that expires
// in a second. Relays drop it almost immediately; readers treat the expired
// record as gone.
func (svc *Service) TakedownListing(ctx context.Context, l *Listing) error {
	if l.ID == "" {
		return fmt.Errorf("listing has no id")
	}
	tags, content, err := listingEventBody(l, svc.Config.Vertical, svc.clock.Now().Add(time.Second))
	if err != nil {
		return err
	}
	if _, err := svc.Pool.PublishReplaceable(ctx, common.KindListing, l.ID, tags, content); err != nil {
		return fmt.Errorf("taking down listing %s: %w", l.ID, err)
	}
	svc.Cache.ForceRefresh(svc.Config.Vertical)
	svc.Logger.Infof("took down listing %s", l.ID)
	return nil
}

var ErrListingNotFound = fmt.Errorf("listing not found")

// OwnListing fetches one of this identity's listings from the relays.
func (svc *Service) OwnListing(ctx context.Context, id string) (*Listing, error) {
	events := svc.Pool.QuerySync(ctx, nostrListingFilter(svc.Pool.PublicKey(), id))
	for _, ev := range events {
		if eventExpired(ev, svc.clock.Now()) {
			continue
		}
		l, err := parseListingEvent(ev)
		if err != nil {
			continue
		}
		if l.ID == id {
			return l, nil
		}
	}
	return nil, ErrListingNotFound
}

// TakedownListingByID resolves the listing on the relays first, so the
// replacement event carries the same content and tags as the live record.
func (svc *Service) TakedownListingByID(ctx context.Context, id string) error {
	l, err := svc.OwnListing(ctx, id)
	if err != nil {
		return err
	}
	return svc.TakedownListing(ctx, l)
}

// FetchListings returns the listings for the cell containing the given
// point, plus the vertical's online-only listings, through the cache.
func (svc *Service) FetchListings(ctx context.Context, p geohash.Point) ([]*Listing, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid location %+v", p)
	}
	cell := geohash.Encode(p.Lat, p.Lon, common.ListingGeohashPrecision)
	return svc.Cache.Listings(ctx, svc.Config.Vertical, cell)
}
