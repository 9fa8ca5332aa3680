package common

const (
	// Parameterized replaceable kinds for the matching protocol. The d tag
	// carries the request/offer id, so a newer publish supersedes the older
	// one on the relay (NIP-01/NIP-33 semantics).
	KindGigRequest = 30420
	KindGigOffer   = 30421
	// Accept signals are ephemeral (2xxxx range): relays forward but never
	// store them. A stale accept signal has no value after the fact.
	KindGigAccept = 20420
	// Classified listings reuse the NIP-99 classified kind.
	KindListing = 30402

	RequestStatusOpen      = "open"
	RequestStatusTaken     = "taken"
	RequestStatusCancelled = "cancelled"

	ListingModeInPerson = "in-person"
	ListingModeOnline   = "online"
	ListingModeBoth     = "both"

	// Geohash precision 6 is ~1.2km x 0.6km: small enough that "nearby"
	// means something, large enough to hold a handful of candidates.
	// Listings use precision 4 (~20km) for broader discovery.
	GigGeohashPrecision     = 6
	ListingGeohashPrecision = 4

	TagIdentifier = "d"
	TagTopic      = "t"
	TagGeohash    = "g"
	TagExpiration = "expiration"
	TagPubkey     = "p"
	TagEvent      = "e"

	NeedTopicPrefix    = "need-"
	OfferTopicPrefix   = "offer-"
	ListingTopicPrefix = "listing-"

	NotificationRequest          = "request"
	NotificationRequestGone      = "request_gone"
	NotificationProviderAccepted = "provider_accepted"
	NotificationProviderCount    = "provider_count"
	NotificationMatched          = "matched"
	NotificationRequestExpired   = "own_request_expired"
	NotificationOfferExpired     = "own_offer_expired"
	NotificationRelayStatus      = "relay_status"
)
