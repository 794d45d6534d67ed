package pipeline

import (
	"context"
	"fmt"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

// OptionsFunc returns the fulfillment options available for the
// session's current line items and destination.
type OptionsFunc func(s *domain.CheckoutSession) []domain.FulfillmentOption

// DefaultOptions offers pickup for free and two shipping speeds once a
// destination address is known.
func DefaultOptions(s *domain.CheckoutSession) []domain.FulfillmentOption {
	options := []domain.FulfillmentOption{
		{ID: "pickup", Title: "Store Pickup", Cost: 0},
	}
	if s.Fulfillment != nil && s.Fulfillment.Destination != nil {
		options = append(options,
			domain.FulfillmentOption{ID: "standard", Title: "Standard Shipping", Cost: 500, RequiresAddress: true},
			domain.FulfillmentOption{ID: "express", Title: "Express Shipping", Cost: 1500, RequiresAddress: true},
		)
	}
	return options
}

// FulfillmentStage validates the selected option against what is
// currently available and recomputes the fulfillment cost. A session
// with no resolved selection keeps a zero cost and the
// needs-fulfillment sub-status.
type FulfillmentStage struct {
	options OptionsFunc
}

func NewFulfillmentStage(options OptionsFunc) *FulfillmentStage {
	if options == nil {
		options = DefaultOptions
	}
	return &FulfillmentStage{options: options}
}

func (f *FulfillmentStage) Name() string { return "fulfillment" }

func (f *FulfillmentStage) Apply(_ context.Context, s *domain.CheckoutSession, pc *Context) error {
	if pc.Patch != nil && pc.Patch.Fulfillment != nil {
		if s.Fulfillment == nil {
			s.Fulfillment = &domain.Fulfillment{}
		}
		if dest := pc.Patch.Fulfillment.Destination; dest != nil {
			d := *dest
			s.Fulfillment.Destination = &d
		}
		if sel := pc.Patch.Fulfillment.SelectedOptionID; sel != nil {
			s.Fulfillment.SelectedOptionID = *sel
		}
	}

	if s.Fulfillment == nil || s.Fulfillment.SelectedOptionID == "" {
		if s.Fulfillment != nil {
			s.Fulfillment.Cost = 0
		}
		s.SubStatus = domain.SubStatusNeedsFulfillment
		s.RecomputeTotals()
		return nil
	}

	available := f.options(s)
	for _, opt := range available {
		if opt.ID != s.Fulfillment.SelectedOptionID {
			continue
		}
		if opt.RequiresAddress && s.Fulfillment.Destination == nil {
			return fmt.Errorf("%w: %s", ErrFulfillmentNeedsAddress, opt.ID)
		}
		s.Fulfillment.Cost = opt.Cost
		s.SubStatus = domain.SubStatusReady
		s.RecomputeTotals()
		return nil
	}

	return fmt.Errorf("%w: %s", ErrInvalidFulfillmentOption, s.Fulfillment.SelectedOptionID)
}
