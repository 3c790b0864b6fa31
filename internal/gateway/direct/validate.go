package direct

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
)

// maxExpiryYears bounds how far out a card expiry may lie. Anything
// beyond this is a typo, not a valid card.
const maxExpiryYears = 20

// FieldError is a single field-level validation failure with a
// user-facing message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors accumulates field-level failures. Validation never
// contacts the gateway.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// ValidateFields checks the attempt before any network call. Token
// attempts verify ownership (and CSC when configured for tokens); raw
// instruments are checked field by field.
func (p *Processor) ValidateFields(ctx context.Context, customerID snowflake.ID, attempt *domain.PaymentAttempt) error {
	var errs ValidationErrors

	if attempt == nil {
		errs.add("payment", "payment details are required")
		return errs
	}

	if attempt.UsingToken() {
		p.validateTokenAttempt(ctx, customerID, attempt, &errs)
	} else {
		switch attempt.Type {
		case domain.PaymentTypeCreditCard:
			p.validateCard(attempt, &errs)
		case domain.PaymentTypeECheck:
			validateECheck(attempt, &errs)
		default:
			errs.add("payment_type", "unsupported payment type")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (p *Processor) validateTokenAttempt(ctx context.Context, customerID snowflake.ID, attempt *domain.PaymentAttempt, errs *ValidationErrors) {
	if customerID == 0 {
		errs.add("token", "stored payment methods require a registered customer")
		return
	}
	owner := tokendomain.Owner{
		CustomerID:  customerID,
		GatewayID:   p.cfg.ID,
		Environment: p.cfg.Environment,
	}
	if _, err := p.tokens.GetToken(ctx, owner, attempt.TokenID); err != nil {
		errs.add("token", "the selected payment method is no longer available")
		return
	}
	if p.cfg.RequireCSCForTokens && !validCSC(attempt.CSC) {
		errs.add("csc", "the card security code must be 3 or 4 digits")
	}
}

func (p *Processor) validateCard(attempt *domain.PaymentAttempt, errs *ValidationErrors) {
	number := digitsOnly(attempt.AccountNumber)
	switch {
	case number == "":
		errs.add("account_number", "a card number is required")
	case len(number) < 12 || len(number) > 19:
		errs.add("account_number", "the card number must be 12 to 19 digits")
	case !luhnValid(number):
		errs.add("account_number", "the card number is not valid")
	}

	now := p.clock.Now()
	switch {
	case attempt.ExpMonth < 1 || attempt.ExpMonth > 12:
		errs.add("expiry", "the expiration month is not valid")
	case attempt.ExpYear < now.Year() || attempt.ExpYear > now.Year()+maxExpiryYears:
		errs.add("expiry", fmt.Sprintf("the expiration year must be between %d and %d", now.Year(), now.Year()+maxExpiryYears))
	case expired(attempt.ExpMonth, attempt.ExpYear, now):
		errs.add("expiry", "the card has expired")
	}

	if p.cfg.RequireCSC && !attempt.FromWallet && !validCSC(attempt.CSC) {
		errs.add("csc", "the card security code must be 3 or 4 digits")
	}
}

func validateECheck(attempt *domain.PaymentAttempt, errs *ValidationErrors) {
	routing := digitsOnly(attempt.RoutingNumber)
	if len(routing) != 9 {
		errs.add("routing_number", "the routing number must be 9 digits")
	}
	account := digitsOnly(attempt.AccountNumber)
	if len(account) < 4 || len(account) > 17 {
		errs.add("account_number", "the account number must be 4 to 17 digits")
	}
	if strings.TrimSpace(attempt.AccountType) == "" {
		errs.add("account_type", "an account type is required")
	}
}

// luhnValid runs the standard Luhn mod-10 check over a digit string.
func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func expired(month, year int, now time.Time) bool {
	endOfMonth := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.Before(endOfMonth)
}

func validCSC(csc string) bool {
	csc = digitsOnly(csc)
	return len(csc) == 3 || len(csc) == 4
}

func digitsOnly(raw string) string {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
