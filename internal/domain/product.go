package domain

// Product is a catalog entry. Products are loaded once at startup and
// never mutated at runtime. Price is in minor units (cents).
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	// Available is the purchasable quantity. Nil means unlimited.
	Available *int32 `json:"available,omitempty"`
}
