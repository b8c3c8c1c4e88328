// Package checkout sequences a buyer from delivery choice through order
// snapshot, payment, address, and fulfillment. It owns no inventory logic:
// the reservation engine is consulted for the claim summary and the order
// snapshot, nothing else.
package checkout

import "fmt"

// State is a checkout session stage. Stages are an explicit enumeration with
// a transition table; events arriving out of order are rejected, not ignored.
type State string

const (
	StateIdle                 State = "idle"
	StateChoosingDelivery     State = "choosing_delivery"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingPayment      State = "awaiting_payment"
	StatePaymentSubmitted     State = "payment_submitted"
	StateAwaitingAddress      State = "awaiting_address"
	StateAwaitingFulfillment  State = "awaiting_fulfillment"
	StateDone                 State = "done"
)

// Event is an external trigger driving the session forward.
type Event string

const (
	EventStart          Event = "start"
	EventChooseDelivery Event = "choose_delivery"
	EventConfirm        Event = "confirm"
	EventSubmitPayment  Event = "submit_payment"
	EventApproveTracked Event = "approve_tracked"
	EventApproveSelf    Event = "approve_self"
	EventReject         Event = "reject"
	EventAddressSaved   Event = "address_saved"
	EventShipped        Event = "shipped"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateChoosingDelivery,
	},
	StateChoosingDelivery: {
		EventChooseDelivery: StateAwaitingConfirmation,
	},
	StateAwaitingConfirmation: {
		// The buyer may change their mind about delivery before confirming.
		EventChooseDelivery: StateAwaitingConfirmation,
		EventConfirm:        StateAwaitingPayment,
	},
	StateAwaitingPayment: {
		EventSubmitPayment: StatePaymentSubmitted,
	},
	StatePaymentSubmitted: {
		EventApproveTracked: StateAwaitingAddress,
		EventApproveSelf:    StateAwaitingFulfillment,
		EventReject:         StateAwaitingPayment,
	},
	StateAwaitingAddress: {
		EventAddressSaved: StateAwaitingFulfillment,
	},
	StateAwaitingFulfillment: {
		EventShipped: StateDone,
	},
}

// InvalidEventError means an event arrived in a stage that does not accept it.
type InvalidEventError struct {
	State State
	Event Event
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("event %s not valid in checkout stage %s", e.Event, e.State)
}

// Next returns the stage after applying an event, or InvalidEventError.
func Next(s State, e Event) (State, error) {
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, &InvalidEventError{State: s, Event: e}
}
