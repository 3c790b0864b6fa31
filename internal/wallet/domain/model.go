// Package domain contains the wallet checkout boundary types: the
// payment-request description sent to the wallet client and the
// authorization payload it returns.
package domain

import (
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CartItem is one line of the cart being checked out. Unit amounts are
// advisory; the server recomputes them from the product catalog.
type CartItem struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int64        `json:"quantity"`
}

// Cart is the checkout context a payment request is built from.
type Cart struct {
	CustomerID snowflake.ID `json:"customer_id"`
	Currency   string       `json:"currency"`
	Items      []CartItem   `json:"items"`
}

// RequestItem is a display line in the wallet sheet, amount in minor
// units.
type RequestItem struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// PaymentRequest is the JSON-shaped description handed to the wallet
// client.
type PaymentRequest struct {
	CountryCode          string        `json:"country_code"`
	CurrencyCode         string        `json:"currency_code"`
	LineItems            []RequestItem `json:"line_items"`
	Total                RequestItem   `json:"total"`
	SupportedNetworks    []string      `json:"supported_networks"`
	MerchantCapabilities []string      `json:"merchant_capabilities"`
	RequiredBilling      []string      `json:"required_billing_contact_fields"`
	RequiredShipping     []string      `json:"required_shipping_contact_fields"`
}

// Contact is a billing or shipping contact decoded from the wallet
// authorization.
type Contact struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

func (c Contact) Complete() bool {
	return c.GivenName != "" && c.Line1 != "" && c.City != "" && c.PostalCode != "" && c.Country != ""
}

// Instrument is the wallet-decoded card data. Depending on the wallet's
// tokenization mode this is a device PAN or a real one; either way it
// flows through the direct transaction path.
type Instrument struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// AuthorizationPayload is the opaque wallet authorization after
// decoding.
type AuthorizationPayload struct {
	Cart            Cart       `json:"cart"`
	Instrument      Instrument `json:"instrument"`
	BillingContact  Contact    `json:"billing_contact"`
	ShippingContact Contact    `json:"shipping_contact"`

	// ClientTotal is what the wallet sheet displayed. It is compared to
	// the server-side recomputation and never charged as-is.
	ClientTotal int64 `json:"client_total"`
}

var (
	ErrEmptyCart               = errors.New("empty_cart")
	ErrIncompleteAuthorization = errors.New("incomplete_authorization")
	ErrTotalMismatch           = errors.New("total_mismatch")
)
