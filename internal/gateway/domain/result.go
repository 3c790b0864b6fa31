package domain

// PaymentResult is the structured outcome of a payment attempt. Declines
// and transport failures both surface here; nothing panics or errors past
// the processor boundary for a normal decline.
type PaymentResult struct {
	Outcome       Outcome
	Message       string
	TransactionID string

	// RedirectURL is set by the hosted path: the customer is sent here to
	// complete payment, or after a redirect-back is classified.
	RedirectURL string
}

func (r *PaymentResult) Success() bool {
	return r != nil && (r.Outcome == OutcomeApproved || r.Outcome == OutcomeHeld)
}
