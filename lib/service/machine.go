package service

import (
	"time"
)

// Session roles and states. The matching protocol is an explicit state
// machine: a single pure step function maps (state, input) to (state,
// effects), and the session loop is the only goroutine that applies it.
// Publishes and notifications come back as effect values, never happen
// inside a transition.

type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

type State string

const (
	StateIdle       State = "idle"
	StatePublishing State = "publishing"
	StatePending    State = "pending"
	StateOffering   State = "offering"
	StateConfirming State = "confirming"
	StateMatched    State = "matched"
	StateExpired    State = "expired"
	StateCancelled  State = "cancelled"
)

func (s State) terminal() bool {
	return s == StateMatched || s == StateExpired || s == StateCancelled
}

// machine is the full protocol state of one session. Values inside are
// treated as immutable: transitions replace rather than mutate, so a step
// can be tested by comparing inputs and outputs.
type machine struct {
	role     Role
	state    State
	vertical string
	cell     string

	// deadline is the session's own TTL. The relay record is refreshed to
	// now+TTL on every tick, so it outlives the session by at most one TTL;
	// recovery therefore scans twice the TTL back.
	deadline time.Time

	// requester side
	request   *GigRequest
	providers map[string]time.Time // provider pubkey -> offer expiry

	// provider side
	offer    *Offer
	queue    []*GigRequest // open requests, oldest first
	accepted *GigRequest
}

// inputs

type input interface{ isInput() }

type inPublished struct{}                    // initial publish effect was applied
type inTick struct{ now time.Time }          // refresh / expiry evaluation cycle
type inOfferUpdate struct{ offer *Offer }    // live offer in the cell (requester)
type inRequestUpdate struct{ req *GigRequest } // need event in the cell (provider)
type inAcceptSignal struct {                 // provider accept addressed to us (requester)
	providerPubkey string
	requestID      string
}
type inCmdAccept struct { // user accepts the current candidate (provider)
	requestID string
	now       time.Time
}
type inCmdDecline struct{ now time.Time } // user declines the current candidate
type inCmdCancel struct{ now time.Time }  // user tears the session down

func (inPublished) isInput()     {}
func (inTick) isInput()          {}
func (inOfferUpdate) isInput()   {}
func (inRequestUpdate) isInput() {}
func (inAcceptSignal) isInput()  {}
func (inCmdAccept) isInput()     {}
func (inCmdDecline) isInput()    {}
func (inCmdCancel) isInput()     {}

// effects

type effect interface{ isEffect() }

type effPublishRequest struct {
	req       GigRequest
	expiresAt time.Time
}
type effPublishOffer struct {
	offer     Offer
	expiresAt time.Time
}
type effPublishAccept struct {
	requesterPubkey string
	requestID       string
}
type effNotify struct{ n Notification }

func (effPublishRequest) isEffect() {}
func (effPublishOffer) isEffect()   {}
func (effPublishAccept) isEffect()  {}
func (effNotify) isEffect()         {}

// step applies one input to the machine. It is pure: no I/O, no clock reads
// (time arrives inside the input), no callback invocations.
func step(m machine, in input) (machine, []effect) {
	if m.state.terminal() {
		return m, nil
	}
	switch m.role {
	case RoleRequester:
		return stepRequester(m, in)
	case RoleProvider:
		return stepProvider(m, in)
	}
	return m, nil
}
