package domain

// ItemInput names a product and quantity for checkout creation.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

// ItemPatch sets the absolute quantity for a product in an update.
// A quantity of zero (or less) removes the line item.
type ItemPatch struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type ConsentGrant struct {
	Scope   ConsentScope `json:"scope"`
	Granted bool         `json:"granted"`
}

type FulfillmentPatch struct {
	SelectedOptionID *string        `json:"selected_option_id,omitempty"`
	Destination      *PostalAddress `json:"destination,omitempty"`
}

// UpdatePatch is a partial mutation of an open checkout. Nil fields
// leave the corresponding session state untouched; DiscountCodes
// replaces the full code list when present.
type UpdatePatch struct {
	Items         []ItemPatch       `json:"items,omitempty"`
	Buyer         *Buyer            `json:"buyer,omitempty"`
	Fulfillment   *FulfillmentPatch `json:"fulfillment,omitempty"`
	DiscountCodes *[]string         `json:"discount_codes,omitempty"`
	Consent       []ConsentGrant    `json:"consent,omitempty"`
}
