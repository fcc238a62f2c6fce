// Package peer tracks one negotiated connection per remote node.
package peer

import "fmt"

type State int

const (
	StateIdle State = iota
	StateCreatingOffer
	StateOfferSent
	StateAwaitingAnswer
	StateAnswering
	StateChannelOpening
	StateChannelOpen
	StateRequesting
	StateTransferring
	StateCompleted
	StateFailed
	StateFallbackTriggered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreatingOffer:
		return "creating-offer"
	case StateOfferSent:
		return "offer-sent"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnswering:
		return "answering"
	case StateChannelOpening:
		return "channel-opening"
	case StateChannelOpen:
		return "channel-open"
	case StateRequesting:
		return "requesting"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateFallbackTriggered:
		return "fallback-triggered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal states end the entry's life. The registry removes them on its
// next sweep.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateFallbackTriggered
}

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

var transitions = map[State][]State{
	StateIdle:           {StateCreatingOffer, StateAnswering},
	StateCreatingOffer:  {StateOfferSent},
	StateOfferSent:      {StateAwaitingAnswer, StateChannelOpening, StateChannelOpen},
	StateAwaitingAnswer: {StateChannelOpening, StateChannelOpen},
	StateAnswering:      {StateChannelOpen},
	StateChannelOpening: {StateChannelOpen},
	StateChannelOpen:    {StateRequesting, StateTransferring},
	StateRequesting:     {StateTransferring, StateCompleted},
	StateTransferring:   {StateCompleted},
}

// CanTransition reports whether from may move to to. Every non-terminal
// state may fail or hand over to the fallback path.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateFallbackTriggered {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
