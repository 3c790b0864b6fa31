// Package direct implements the synchronous transaction path: instrument
// or token data is submitted to the processor within the checkout
// request and the outcome is known before the response is written.
package direct

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	"github.com/smallbiznis/payrail/internal/gateway/outcome"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	"go.uber.org/zap"
)

const gatewayUnavailableMessage = "The payment could not be processed. Please try again later."

type Processor struct {
	cfg     config.GatewayConfig
	api     domain.Adapter
	caps    domain.Capabilities
	orders  orderdomain.Service
	tokens  tokendomain.Service
	applier *outcome.Applier
	clock   clock.Clock
	log     *zap.Logger
}

func NewProcessor(
	cfg config.GatewayConfig,
	adapter domain.Adapter,
	orders orderdomain.Service,
	tokens tokendomain.Service,
	applier *outcome.Applier,
	clk clock.Clock,
	log *zap.Logger,
) *Processor {
	return &Processor{
		cfg:     cfg,
		api:     adapter,
		caps:    adapter.Capabilities(),
		orders:  orders,
		tokens:  tokens,
		applier: applier,
		clock:   clk,
		log:     log.Named("gateway.direct"),
	}
}

// ProcessPayment runs the full direct transaction flow for one attempt.
// Declines and transport failures are reported through the result, never
// as an error; errors are reserved for validation and persistence
// problems on our side.
func (p *Processor) ProcessPayment(ctx context.Context, order *orderdomain.Order, attempt *domain.PaymentAttempt) (*domain.PaymentResult, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !order.NeedsPayment() {
		return nil, domain.ErrOrderNotPayable
	}
	if attempt == nil {
		return nil, domain.ErrInvalidPayload
	}

	if err := p.ValidateFields(ctx, order.CustomerID, attempt); err != nil {
		return nil, err
	}

	// The retry count derives a monotonically increasing attempt reference
	// so two attempts never collide on a gateway-visible idempotency key.
	retry, err := p.orders.IncrementRetryCount(ctx, order)
	if err != nil {
		return nil, err
	}
	attempt.AttemptRef = fmt.Sprintf("%s-%d", order.OrderNumber, retry)

	if p.tokenizationEnabled() && order.CustomerID != 0 {
		if err := p.prepareStoredToken(ctx, order, attempt); err != nil {
			return nil, err
		}
	}

	if order.TotalAmount == 0 && !p.cfg.ForceChargeZero {
		return p.processZeroAmount(ctx, order, attempt)
	}

	req := p.buildRequest(order, attempt)

	var resp *domain.TransactionResponse
	switch attempt.Type {
	case domain.PaymentTypeECheck:
		resp, err = p.api.CheckDebit(ctx, req)
	default:
		if p.authOnly(attempt) {
			resp, err = p.api.CreditCardAuthorization(ctx, req)
		} else {
			resp, err = p.api.CreditCardCharge(ctx, req)
		}
	}
	if err != nil {
		return p.failFromGatewayError(ctx, order, err)
	}

	if resp.Approved() && p.shouldTokenizeAfter(order, attempt) {
		p.tokenizeAfterApproval(ctx, order, attempt, resp)
	}

	if resp.Approved() || resp.Held() {
		if err := p.writeInstrumentMeta(ctx, order, attempt, resp); err != nil {
			return nil, err
		}
	}

	return p.applier.Apply(ctx, order, resp, p.authOnly(attempt) && resp.Approved())
}

// processZeroAmount handles a zero-total order: no live transaction is
// issued, but tokenization still runs so the instrument is stored for
// future billing.
func (p *Processor) processZeroAmount(ctx context.Context, order *orderdomain.Order, attempt *domain.PaymentAttempt) (*domain.PaymentResult, error) {
	if p.tokenizationEnabled() && order.CustomerID != 0 && !attempt.UsingToken() {
		token, err := p.tokenize(ctx, order, attempt)
		if err != nil {
			if mErr := p.orders.MarkFailed(ctx, order, "Saving the payment method failed: "+err.Error()); mErr != nil {
				return nil, mErr
			}
			return &domain.PaymentResult{
				Outcome: domain.OutcomeFailed,
				Message: gatewayUnavailableMessage,
			}, nil
		}
		attempt.TokenID = token.TokenID
	}

	values := map[string]any{
		p.key(domain.MetaEnvironment): p.cfg.Environment,
	}
	if attempt.UsingToken() {
		values[p.key(domain.MetaPaymentToken)] = attempt.TokenID
	}
	if err := p.orders.SetMeta(ctx, order, values); err != nil {
		return nil, err
	}
	if err := p.orders.MarkPaid(ctx, order); err != nil {
		return nil, err
	}
	return &domain.PaymentResult{Outcome: domain.OutcomeApproved}, nil
}

// prepareStoredToken runs the pre-charge tokenization work: a stale
// stored token gets its billing hash refreshed, and the before-sale mode
// creates a token ahead of the charge.
func (p *Processor) prepareStoredToken(ctx context.Context, order *orderdomain.Order, attempt *domain.PaymentAttempt) error {
	if attempt.UsingToken() {
		token, err := p.tokens.GetToken(ctx, p.owner(order), attempt.TokenID)
		if err != nil {
			return err
		}
		if token.Stale(order.BillingHash()) {
			p.refreshStaleToken(ctx, order, token)
		}
		return nil
	}

	if p.cfg.TokenizationMode != config.TokenizationBeforeSale {
		return nil
	}
	token, err := p.tokenize(ctx, order, attempt)
	if err != nil {
		// The sale can still proceed on the raw instrument.
		p.log.Warn("pre-sale tokenization failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil
	}
	attempt.TokenID = token.TokenID
	return nil
}

// refreshStaleToken pushes the current billing address to the processor
// when remote token updates are supported, then records the new hash.
// Gateways without remote editing get a local hash-only refresh.
func (p *Processor) refreshStaleToken(ctx context.Context, order *orderdomain.Order, token *tokendomain.PaymentToken) {
	if p.caps.RemoteTokenUpdate {
		req := p.buildRequest(order, nil)
		req.Token = &domain.TokenData{
			TokenID:  token.TokenID,
			ExpMonth: token.ExpMonth,
			ExpYear:  token.ExpYear,
		}
		resp, err := p.api.UpdateTokenizedPaymentMethod(ctx, req)
		if err != nil || !resp.Approved() {
			p.log.Warn("remote token update failed, keeping local hash refresh",
				zap.String("token_id", token.TokenID), zap.Error(err))
		}
	}
	if err := p.tokens.RefreshBillingHash(ctx, token, order.BillingHash()); err != nil {
		p.log.Warn("billing hash refresh failed",
			zap.String("token_id", token.TokenID), zap.Error(err))
	}
}

// tokenize calls the processor's tokenizer and persists the result under
// the order's owner triple.
func (p *Processor) tokenize(ctx context.Context, order *orderdomain.Order, attempt *domain.PaymentAttempt) (*tokendomain.PaymentToken, error) {
	if !p.caps.Tokenization {
		return nil, domain.ErrTokenizationNotSupported
	}
	resp, err := p.api.TokenizePaymentMethod(ctx, p.buildRequest(order, attempt))
	if err != nil {
		return nil, err
	}
	if !resp.Approved() || resp.Token == nil {
		return nil, domain.ErrTokenizationNotSupported
	}
	return p.persistToken(ctx, order, resp)
}

func (p *Processor) persistToken(ctx context.Context, order *orderdomain.Order, resp *domain.TransactionResponse) (*tokendomain.PaymentToken, error) {
	token, err := p.tokens.CreateTokenFromResponse(ctx, order, resp)
	if err != nil {
		return nil, err
	}
	token.GatewayID = p.cfg.ID
	token.Environment = p.cfg.Environment
	if err := p.tokens.AddToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// tokenizeAfterApproval stores the instrument once the sale is approved.
// A failure here is recovered locally with an order note and never undoes
// the payment; funds have already moved.
func (p *Processor) tokenizeAfterApproval(ctx context.Context, order *orderdomain.Order, attempt *domain.PaymentAttempt, resp *domain.TransactionResponse) {
	var token *tokendomain.PaymentToken
	var err error

	if resp.Token != nil {
		token, err = p.persistToken(ctx, order, resp)
	} else {
		token, err = p.tokenize(ctx, order, attempt)
	}
	if err != nil {
		p.log.Warn("post-approval tokenization failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		if nErr := p.orders.AddNote(ctx, order.ID, "Payment approved, but saving the payment method failed: "+err.Error()); nErr != nil {
			p.log.Warn("order note write failed", zap.Error(nErr))
		}
		return
	}
	attempt.TokenID = token.TokenID
}

func (p *Processor) failFromGatewayError(ctx context.Context, order *orderdomain.Order, cause error) (*domain.PaymentResult, error) {
	p.log.Error("gateway call failed",
		zap.String("order_id", order.ID.String()), zap.Error(cause))
	if err := p.orders.AddNote(ctx, order.ID, "Payment gateway error: "+cause.Error()); err != nil {
		return nil, err
	}
	if err := p.orders.MarkFailed(ctx, order, ""); err != nil {
		return nil, err
	}
	return &domain.PaymentResult{
		Outcome: domain.OutcomeFailed,
		Message: gatewayUnavailableMessage,
	}, nil
}

func (p *Processor) writeInstrumentMeta(ctx context.Context, order *orderdomain.Order, attempt *domain.PaymentAttempt, resp *domain.TransactionResponse) error {
	values := map[string]any{}
	if attempt.UsingToken() {
		values[p.key(domain.MetaPaymentToken)] = attempt.TokenID
	} else if attempt.Type == domain.PaymentTypeCreditCard {
		values[p.key(domain.MetaAccountFour)] = attempt.Last4()
		values[p.key(domain.MetaCardType)] = attempt.CardType()
	}
	if resp.Token != nil && resp.Token.TokenID != "" {
		values[p.key(domain.MetaPaymentToken)] = resp.Token.TokenID
	}
	return p.orders.SetMeta(ctx, order, values)
}

func (p *Processor) buildRequest(order *orderdomain.Order, attempt *domain.PaymentAttempt) *domain.TransactionRequest {
	req := &domain.TransactionRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Environment: p.cfg.Environment,
		CustomerRef: order.GetMetaString(p.key(domain.MetaCustomerID)),
		Attempt:     attempt,
	}
	if attempt.UsingToken() {
		req.Token = &domain.TokenData{TokenID: attempt.TokenID}
	}
	return req
}

// authOnly reports whether this attempt should be an authorization hold
// rather than a settled charge. eCheck debits always settle.
func (p *Processor) authOnly(attempt *domain.PaymentAttempt) bool {
	return p.cfg.TransactionType == config.TransactionTypeAuthorization &&
		attempt.Type != domain.PaymentTypeECheck
}

// shouldTokenizeAfter reports whether the approved sale should produce a
// stored token under the with-sale or after-sale modes.
func (p *Processor) shouldTokenizeAfter(order *orderdomain.Order, attempt *domain.PaymentAttempt) bool {
	if !p.tokenizationEnabled() || order.CustomerID == 0 || attempt.UsingToken() {
		return false
	}
	return p.cfg.TokenizationMode == config.TokenizationWithSale ||
		p.cfg.TokenizationMode == config.TokenizationAfterSale
}

func (p *Processor) tokenizationEnabled() bool {
	return p.caps.Tokenization && p.cfg.TokenizationMode != config.TokenizationDisabled
}

func (p *Processor) owner(order *orderdomain.Order) tokendomain.Owner {
	return tokendomain.Owner{
		CustomerID:  order.CustomerID,
		GatewayID:   p.cfg.ID,
		Environment: p.cfg.Environment,
	}
}

func (p *Processor) key(name string) string {
	return domain.MetaKey(p.cfg.ID, name)
}
