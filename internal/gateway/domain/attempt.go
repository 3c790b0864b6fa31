package domain

import (
	"strconv"
	"strings"
)

// PaymentType selects the transaction path for an attempt.
type PaymentType string

const (
	PaymentTypeCreditCard PaymentType = "credit_card"
	PaymentTypeECheck     PaymentType = "echeck"
)

// PaymentAttempt carries the instrument or token reference for a single
// payment attempt. It travels alongside the order and is never written
// onto it.
type PaymentAttempt struct {
	Type PaymentType

	// Raw card instrument.
	AccountNumber string
	ExpMonth      int
	ExpYear       int
	CSC           string

	// eCheck instrument.
	RoutingNumber string
	AccountType   string
	CheckNumber   string

	// Stored-token path.
	TokenID string

	CustomerIP string

	// FromWallet marks instrument data decoded from a wallet
	// authorization. Wallets never supply a CSC, so the CSC requirement
	// does not apply.
	FromWallet bool

	// AttemptRef is the gateway-visible idempotency reference for this
	// attempt, derived from the order's retry count so two attempts never
	// collide.
	AttemptRef string
}

// UsingToken reports whether the attempt pays with a stored token rather
// than a raw instrument.
func (a *PaymentAttempt) UsingToken() bool {
	return a != nil && strings.TrimSpace(a.TokenID) != ""
}

// Last4 returns the masked fragment of the account number.
func (a *PaymentAttempt) Last4() string {
	if a == nil {
		return ""
	}
	digits := strings.TrimSpace(a.AccountNumber)
	if len(digits) < 4 {
		return ""
	}
	return digits[len(digits)-4:]
}

// CardType derives the card brand from the account number prefix. Unknown
// prefixes return an empty string; brand detection is cosmetic only.
func (a *PaymentAttempt) CardType() string {
	if a == nil {
		return ""
	}
	number := strings.TrimSpace(a.AccountNumber)
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case hasPrefixInRange(number, 51, 55) || hasPrefixInRange(number, 2221, 2720):
		return "mastercard"
	case strings.HasPrefix(number, "34") || strings.HasPrefix(number, "37"):
		return "amex"
	case strings.HasPrefix(number, "6011") || strings.HasPrefix(number, "65"):
		return "discover"
	default:
		return ""
	}
}

func hasPrefixInRange(number string, lo, hi int) bool {
	width := len(strconv.Itoa(lo))
	if len(number) < width {
		return false
	}
	prefix, err := strconv.Atoi(number[:width])
	if err != nil {
		return false
	}
	return prefix >= lo && prefix <= hi
}
