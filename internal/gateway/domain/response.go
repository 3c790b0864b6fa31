// Package domain contains the canonical transaction types shared by the
// direct and hosted processors and the concrete gateway adapters.
package domain

import "strings"

// Outcome classifies a gateway reply. Exactly one outcome applies to a
// response; a declined transaction is a failed outcome, not an error.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeHeld      Outcome = "held"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// TokenData is tokenized-instrument data extracted from a gateway reply.
type TokenData struct {
	TokenID        string
	Last4          string
	InstrumentType string
	ExpMonth       int
	ExpYear        int
}

// TransactionResponse normalizes any gateway's raw reply. One is created
// per API call and discarded once applied to the order.
type TransactionResponse struct {
	Outcome           Outcome
	StatusCode        string
	StatusMessage     string
	UserMessage       string
	TransactionID     string
	AuthorizationCode string
	AVSResult         string
	CSCResult         string
	CustomerRef       string
	Token             *TokenData
}

func (r *TransactionResponse) Approved() bool {
	return r != nil && r.Outcome == OutcomeApproved
}

func (r *TransactionResponse) Held() bool {
	return r != nil && r.Outcome == OutcomeHeld
}

func (r *TransactionResponse) Cancelled() bool {
	return r != nil && r.Outcome == OutcomeCancelled
}

func (r *TransactionResponse) Failed() bool {
	return r == nil || r.Outcome == OutcomeFailed
}

// Message returns the user-facing message, falling back to the gateway
// status message when none was set.
func (r *TransactionResponse) Message() string {
	if r == nil {
		return ""
	}
	if msg := strings.TrimSpace(r.UserMessage); msg != "" {
		return msg
	}
	return strings.TrimSpace(r.StatusMessage)
}
