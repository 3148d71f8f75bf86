package domain

// AddressExtras carries the structured entrance details couriers ask for.
type AddressExtras struct {
	Entrance  string `bson:"entrance,omitempty" json:"entrance,omitempty"`
	Floor     string `bson:"floor,omitempty" json:"floor,omitempty"`
	Apartment string `bson:"apartment,omitempty" json:"apartment,omitempty"`
	Intercom  string `bson:"intercom,omitempty" json:"intercom,omitempty"`
}

// DeliveryAddress belongs to a user; at most one address per user carries
// IsDefault=true, enforced by the address book, not here.
type DeliveryAddress struct {
	ID            string        `bson:"id" json:"id"`
	RecipientName string        `bson:"recipient_name" json:"recipient_name"`
	Phone         string        `bson:"phone" json:"phone"`
	Line1         string        `bson:"line1" json:"line1"`
	Extras        AddressExtras `bson:"extras,omitempty" json:"extras,omitempty"`
	City          string        `bson:"city" json:"city"`
	Region        string        `bson:"region" json:"region"`
	PostalCode    string        `bson:"postal_code" json:"postal_code"`
	Instructions  string        `bson:"instructions,omitempty" json:"instructions,omitempty"`
	IsDefault     bool          `bson:"is_default" json:"is_default"`
}
