// Package sandbox implements an in-process direct gateway used for the
// sandbox environment and the test suite. Outcomes are deterministic:
// well-known test account numbers trigger declines and review holds, and
// the tokenizer hands back stable references.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
)

const (
	// Test instruments with fixed behavior.
	accountDeclined = "4000000000000002"
	accountHeld     = "4000000000000119"
	routingInvalid  = "000000000"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	return &Adapter{
		gatewayID:   cfg.GatewayID,
		environment: cfg.Environment,
		tokens:      map[string]*domain.TokenData{},
	}, nil
}

type Adapter struct {
	gatewayID   string
	environment string

	mu     sync.Mutex
	tokens map[string]*domain.TokenData
}

func (a *Adapter) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		CreditCard:        true,
		ECheck:            true,
		Capture:           true,
		PartialCapture:    true,
		Refund:            true,
		Void:              true,
		Tokenization:      true,
		TokenEditing:      true,
		RemoteTokenUpdate: true,
		DetailedDecline:   true,
		ZeroAmountAuth:    true,
	}
}

func (a *Adapter) CreditCardCharge(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return a.cardTransaction(req)
}

func (a *Adapter) CreditCardAuthorization(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return a.cardTransaction(req)
}

func (a *Adapter) CheckDebit(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if req == nil || req.Attempt == nil {
		return nil, domain.ErrInvalidPayload
	}
	if req.Attempt.RoutingNumber == routingInvalid {
		return declined("27", "invalid routing number"), nil
	}
	return approved(req, ""), nil
}

func (a *Adapter) Capture(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if req == nil || strings.TrimSpace(req.TransactionID) == "" {
		return nil, domain.ErrInvalidPayload
	}
	resp := approved(req, "")
	resp.TransactionID = newTransactionID("cap")
	return resp, nil
}

func (a *Adapter) Void(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if req == nil || strings.TrimSpace(req.TransactionID) == "" {
		return nil, domain.ErrInvalidPayload
	}
	resp := approved(req, "")
	resp.TransactionID = newTransactionID("void")
	return resp, nil
}

func (a *Adapter) Refund(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if req == nil || strings.TrimSpace(req.TransactionID) == "" {
		return nil, domain.ErrInvalidPayload
	}
	resp := approved(req, "")
	resp.TransactionID = newTransactionID("ref")
	return resp, nil
}

func (a *Adapter) TokenizePaymentMethod(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if req == nil || req.Attempt == nil {
		return nil, domain.ErrInvalidPayload
	}
	attempt := req.Attempt

	token := &domain.TokenData{
		TokenID:  "tok_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
		Last4:    attempt.Last4(),
		ExpMonth: attempt.ExpMonth,
		ExpYear:  attempt.ExpYear,
	}
	switch attempt.Type {
	case domain.PaymentTypeECheck:
		token.InstrumentType = "echeck"
		if len(attempt.AccountNumber) >= 4 {
			token.Last4 = attempt.AccountNumber[len(attempt.AccountNumber)-4:]
		}
	default:
		token.InstrumentType = attempt.CardType()
	}

	a.mu.Lock()
	a.tokens[token.TokenID] = token
	a.mu.Unlock()

	resp := approved(req, "")
	resp.Token = token
	return resp, nil
}

func (a *Adapter) UpdateTokenizedPaymentMethod(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if req == nil || req.Token == nil {
		return nil, domain.ErrInvalidPayload
	}

	a.mu.Lock()
	stored, ok := a.tokens[req.Token.TokenID]
	if ok {
		stored.ExpMonth = req.Token.ExpMonth
		stored.ExpYear = req.Token.ExpYear
	}
	a.mu.Unlock()

	if !ok {
		return declined("54", "unknown token"), nil
	}
	resp := approved(req, "")
	resp.Token = req.Token
	return resp, nil
}

func (a *Adapter) cardTransaction(req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if req == nil {
		return nil, domain.ErrInvalidPayload
	}

	number := ""
	if req.Attempt != nil {
		number = strings.TrimSpace(req.Attempt.AccountNumber)
	}

	switch number {
	case accountDeclined:
		return declined("05", "card declined"), nil
	case accountHeld:
		return &domain.TransactionResponse{
			Outcome:       domain.OutcomeHeld,
			StatusCode:    "252",
			StatusMessage: "transaction held for review",
			TransactionID: newTransactionID("txn"),
		}, nil
	}

	auth := fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	return approved(req, auth), nil
}

func approved(req *domain.TransactionRequest, authCode string) *domain.TransactionResponse {
	return &domain.TransactionResponse{
		Outcome:           domain.OutcomeApproved,
		StatusCode:        "1",
		StatusMessage:     "approved",
		TransactionID:     newTransactionID("txn"),
		AuthorizationCode: authCode,
		CustomerRef:       req.CustomerRef,
	}
}

func declined(code, message string) *domain.TransactionResponse {
	return &domain.TransactionResponse{
		Outcome:       domain.OutcomeFailed,
		StatusCode:    code,
		StatusMessage: message,
		UserMessage:   "The transaction was declined. Please try a different payment method.",
	}
}

func newTransactionID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
