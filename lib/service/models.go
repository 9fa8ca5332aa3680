package service

import (
	"time"

	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
)

// GigRequest is the requester-side record of a need, published into a
// geohash cell as a replaceable event. Details is an open map for
// vertical-specific fields (e.g. {"item": "bread"}).
type GigRequest struct {
	ID                    string            `json:"id"`
	Pubkey                string            `json:"pubkey"`
	StartLocation         geohash.Point     `json:"start_location"`
	Destination           *geohash.Point    `json:"destination,omitempty"`
	Status                string            `json:"status"`
	MatchedProviderPubkey string            `json:"matched_provider_pubkey,omitempty"`
	Geohash               string            `json:"geohash"`
	Details               map[string]string `json:"details,omitempty"`

	// Relay metadata, not part of the serialized content.
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	EventID   string    `json:"-"`
}

// Offer is a provider's availability announcement. There is no status field:
// a live (non-expired) offer event is the "I am available" signal.
type Offer struct {
	Pubkey   string            `json:"pubkey"`
	Location geohash.Point     `json:"location"`
	Details  map[string]string `json:"details,omitempty"`
	Geohash  string            `json:"geohash"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Listing is a classified-ad style post: longer lived, no real-time
// matching.
type Listing struct {
	ID          string         `json:"id"`
	Pubkey      string         `json:"pubkey"`
	Mode        string         `json:"mode"`
	Category    string         `json:"category"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	Contact     string         `json:"contact"`
	Location    *geohash.Point `json:"location,omitempty"`
	EventDate   string         `json:"event_date,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Geohash     string         `json:"geohash,omitempty"`
}

// SessionSnapshot is the read-only view of the current matching session that
// the HTTP surface serves to the UI.
type SessionSnapshot struct {
	Role                  string        `json:"role"`
	State                 string        `json:"state"`
	Vertical              string        `json:"vertical"`
	Geohash               string        `json:"geohash"`
	Request               *GigRequest   `json:"request,omitempty"`
	Candidate             *GigRequest   `json:"candidate,omitempty"`
	Queue                 []*GigRequest `json:"queue,omitempty"`
	MatchedProviderPubkey string        `json:"matched_provider_pubkey,omitempty"`
	ProviderCount         int           `json:"provider_count"`
	Deadline              time.Time     `json:"deadline"`
}

// Notification is one logical UI event, fanned out both to the Go callback
// surface and to SSE subscribers.
type Notification struct {
	Type           string      `json:"type"`
	Request        *GigRequest `json:"request,omitempty"`
	RequestID      string      `json:"request_id,omitempty"`
	ProviderPubkey string      `json:"provider_pubkey,omitempty"`
	Count          int         `json:"count,omitempty"`
	Connected      int         `json:"connected,omitempty"`
	Total          int         `json:"total,omitempty"`
}
