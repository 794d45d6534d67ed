package domain

import "time"

// LineItem snapshots the unit price at add time so later catalog
// changes do not retroactively alter open checkouts.
type LineItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

func (li LineItem) Subtotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

type Buyer struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type PostalAddress struct {
	StreetAddress   string `json:"street_address,omitempty"`
	AddressLocality string `json:"address_locality,omitempty"`
	AddressRegion   string `json:"address_region,omitempty"`
	AddressCountry  string `json:"address_country,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
}

// ConsentScope enumerates the privacy scopes a buyer can grant.
type ConsentScope string

const (
	ConsentScopeDataSharing ConsentScope = "data-sharing"
	ConsentScopeMarketing   ConsentScope = "marketing"
	ConsentScopeTransaction ConsentScope = "required-transaction"
)

type ConsentRecord struct {
	Scope     ConsentScope `json:"scope"`
	Granted   bool         `json:"granted"`
	GrantedAt time.Time    `json:"granted_at"`
}

// FulfillmentOption is a shipping or pickup choice offered for the
// current line items and destination.
type FulfillmentOption struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Cost            int64  `json:"cost"`
	RequiresAddress bool   `json:"requires_address"`
}

type Fulfillment struct {
	SelectedOptionID string         `json:"selected_option_id,omitempty"`
	Destination      *PostalAddress `json:"destination,omitempty"`
	Cost             int64          `json:"cost"`
}

// AppliedDiscount is a discount the pipeline accepted, with its
// computed amount. Automatic discounts carry no code.
type AppliedDiscount struct {
	Code      string `json:"code,omitempty"`
	Title     string `json:"title"`
	Amount    int64  `json:"amount"`
	Automatic bool   `json:"automatic,omitempty"`
	Priority  int    `json:"priority"`
}

type Totals struct {
	Subtotal        int64 `json:"subtotal"`
	DiscountTotal   int64 `json:"discount_total"`
	FulfillmentCost int64 `json:"fulfillment_cost"`
	GrandTotal      int64 `json:"grand_total"`
}

// CheckoutSession is the mutable cart-in-progress record between
// creation and completion/cancellation.
type CheckoutSession struct {
	ID            string            `json:"id"`
	Status        CheckoutStatus    `json:"status"`
	SubStatus     SubStatus         `json:"sub_status,omitempty"`
	Currency      string            `json:"currency"`
	LineItems     []LineItem        `json:"line_items"`
	Buyer         *Buyer            `json:"buyer,omitempty"`
	Fulfillment   *Fulfillment      `json:"fulfillment,omitempty"`
	DiscountCodes []string          `json:"discount_codes,omitempty"`
	Discounts     []AppliedDiscount `json:"discounts,omitempty"`
	Consent       []ConsentRecord   `json:"consent,omitempty"`
	Mandate       *Mandate          `json:"mandate,omitempty"`
	Order         *Order            `json:"order,omitempty"`
	Totals        Totals            `json:"totals"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RecomputeTotals derives totals in fixed order: subtotal, then
// discounts (never exceeding subtotal), then fulfillment cost.
func (s *CheckoutSession) RecomputeTotals() {
	var subtotal int64
	for _, li := range s.LineItems {
		subtotal += li.Subtotal()
	}

	var discount int64
	for _, d := range s.Discounts {
		discount += d.Amount
	}
	if discount > subtotal {
		discount = subtotal
	}

	var fulfillment int64
	if s.Fulfillment != nil {
		fulfillment = s.Fulfillment.Cost
	}

	s.Totals = Totals{
		Subtotal:        subtotal,
		DiscountTotal:   discount,
		FulfillmentCost: fulfillment,
		GrandTotal:      subtotal - discount + fulfillment,
	}
}

// ConsentSatisfied reports whether a granted required-transaction
// consent is on record.
func (s *CheckoutSession) ConsentSatisfied() bool {
	for _, c := range s.Consent {
		if c.Scope == ConsentScopeTransaction && c.Granted {
			return true
		}
	}
	return false
}

// FulfillmentResolved reports whether a fulfillment option has been
// selected for this session.
func (s *CheckoutSession) FulfillmentResolved() bool {
	return s.Fulfillment != nil && s.Fulfillment.SelectedOptionID != ""
}

// Clone returns a deep copy. Pipeline stages mutate clones; the stored
// session only ever changes on a successful commit.
func (s *CheckoutSession) Clone() *CheckoutSession {
	out := *s

	out.LineItems = append([]LineItem(nil), s.LineItems...)
	out.DiscountCodes = append([]string(nil), s.DiscountCodes...)
	out.Discounts = append([]AppliedDiscount(nil), s.Discounts...)
	out.Consent = append([]ConsentRecord(nil), s.Consent...)

	if s.Buyer != nil {
		b := *s.Buyer
		out.Buyer = &b
	}
	if s.Fulfillment != nil {
		f := *s.Fulfillment
		if s.Fulfillment.Destination != nil {
			d := *s.Fulfillment.Destination
			f.Destination = &d
		}
		out.Fulfillment = &f
	}
	if s.Mandate != nil {
		m := *s.Mandate
		out.Mandate = &m
	}
	if s.Order != nil {
		o := s.Order.clone()
		out.Order = o
	}
	return &out
}
