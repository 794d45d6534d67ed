package domain

import "time"

// Order is the terminal artifact created exactly once when a checkout
// completes. The snapshot is the final session state at completion.
type Order struct {
	ID            string           `json:"id"`
	CheckoutID    string           `json:"checkout_id"`
	Snapshot      *CheckoutSession `json:"snapshot"`
	MandateDigest string           `json:"mandate_digest"`
	PermalinkURL  string           `json:"permalink_url,omitempty"`
	CompletedAt   time.Time        `json:"completed_at"`
}

func (o *Order) clone() *Order {
	out := *o
	if o.Snapshot != nil {
		// Order snapshots never embed another order, so this cannot recurse.
		out.Snapshot = o.Snapshot.Clone()
	}
	return &out
}
