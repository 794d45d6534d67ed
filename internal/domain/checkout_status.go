package domain

type CheckoutStatus string

const (
	CheckoutStatusOpen      CheckoutStatus = "OPEN"
	CheckoutStatusCompleted CheckoutStatus = "COMPLETED"
	CheckoutStatusCanceled  CheckoutStatus = "CANCELED"
)

// SubStatus qualifies an OPEN checkout. It never survives into a
// terminal state.
type SubStatus string

const (
	SubStatusReady            SubStatus = "READY"
	SubStatusNeedsFulfillment SubStatus = "NEEDS_FULFILLMENT"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusCanceled
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

var allowedTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusOpen: {CheckoutStatusCompleted, CheckoutStatusCanceled},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
