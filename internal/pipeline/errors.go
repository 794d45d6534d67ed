package pipeline

import "errors"

var (
	ErrInvalidConsentScope       = errors.New("invalid consent scope")
	ErrInvalidFulfillmentOption  = errors.New("fulfillment option not available")
	ErrFulfillmentNeedsAddress   = errors.New("fulfillment option requires a destination address")
	ErrMandateSigningUnavailable = errors.New("mandate signing unavailable")
)
