package domain

import "time"

// CartLine is one position in a cart. UnitPrice is the price the customer
// pays; ListPrice, when set above UnitPrice, is the crossed-out price the
// markdown is computed from.
type CartLine struct {
	ID        string  `bson:"id" json:"id"`
	ProductID int64   `bson:"product_id" json:"product_id"`
	VendorID  string  `bson:"vendor_id" json:"vendor_id"`
	Name      string  `bson:"name" json:"name"`
	UnitPrice float64 `bson:"unit_price" json:"unit_price"`
	ListPrice float64 `bson:"list_price,omitempty" json:"list_price,omitempty"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	Available bool    `bson:"available" json:"available"`
}

// EffectiveListPrice returns the price markdowns are measured against.
func (l CartLine) EffectiveListPrice() float64 {
	if l.ListPrice > l.UnitPrice {
		return l.ListPrice
	}
	return l.UnitPrice
}

type Cart struct {
	UserID    string     `bson:"user_id" json:"user_id"`
	Lines     []CartLine `bson:"lines" json:"lines"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// VendorGroup is derived from cart lines on every read, never stored.
type VendorGroup struct {
	VendorID string     `json:"vendor_id"`
	Lines    []CartLine `json:"lines"`
	Subtotal float64    `json:"subtotal"` // payable subtotal of available lines
}

// CartSnapshot is the cart state frozen at coupon-validation or checkout
// time. Subtotal is what the customer pays for available items, before
// delivery fee and coupon.
type CartSnapshot struct {
	Lines      []CartLine `json:"lines"`
	Subtotal   float64    `json:"subtotal"`
	Currency   string     `json:"currency"`
	CapturedAt time.Time  `json:"captured_at"`
}

// VendorIDs returns the distinct vendors present in the snapshot, in
// first-appearance order.
func (s CartSnapshot) VendorIDs() []string {
	seen := make(map[string]bool, len(s.Lines))
	var ids []string
	for _, l := range s.Lines {
		if !seen[l.VendorID] {
			seen[l.VendorID] = true
			ids = append(ids, l.VendorID)
		}
	}
	return ids
}
