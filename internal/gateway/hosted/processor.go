// Package hosted implements the asynchronous transaction path: the
// customer is redirected to a remote payment page and the outcome
// arrives later through an IPN or a browser redirect-back. The callback
// handler is the sole exit from the awaiting-remote state.
package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	"github.com/smallbiznis/payrail/internal/gateway/outcome"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	"github.com/smallbiznis/payrail/internal/ratelimit"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	"github.com/smallbiznis/payrail/pkg/db"
	"github.com/smallbiznis/payrail/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const callbackLockTTL = 10 * time.Second

// Disposition classifies how a callback was handled.
type Disposition string

const (
	DispositionApproved  Disposition = "approved"
	DispositionHeld      Disposition = "held"
	DispositionCancelled Disposition = "cancelled"
	DispositionFailed    Disposition = "failed"

	// DispositionInvalid covers duplicate, unverifiable and unresolvable
	// notifications. No order mutation happened.
	DispositionInvalid Disposition = "invalid"
)

// CallbackResult tells the HTTP layer how to terminate the callback: an
// IPN gets a bare success reply regardless, a redirect-back follows
// RedirectURL.
type CallbackResult struct {
	Disposition Disposition
	RedirectURL string
	Message     string
}

type Processor struct {
	cfg     config.GatewayConfig
	api     domain.Adapter
	parser  domain.NotificationParser
	payPage domain.HostedPayPage
	orders  orderdomain.Service
	tokens  tokendomain.Service
	applier *outcome.Applier
	locker  *ratelimit.Locker
	events  repository.Repository[GatewayNotification]
	genID   *snowflake.Node
	clock   clock.Clock
	log     *zap.Logger
}

func NewProcessor(
	cfg config.GatewayConfig,
	adapter domain.Adapter,
	orders orderdomain.Service,
	tokens tokendomain.Service,
	applier *outcome.Applier,
	locker *ratelimit.Locker,
	gdb *gorm.DB,
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) *Processor {
	p := &Processor{
		cfg:     cfg,
		api:     adapter,
		orders:  orders,
		tokens:  tokens,
		applier: applier,
		locker:  locker,
		events:  repository.ProvideStore[GatewayNotification](gdb),
		genID:   genID,
		clock:   clk,
		log:     log.Named("gateway.hosted"),
	}
	p.parser, _ = adapter.(domain.NotificationParser)
	p.payPage, _ = adapter.(domain.HostedPayPage)
	return p
}

// ProcessPayment resolves the remote destination for the order and marks
// it as awaiting the remote result. The order status stays pending; the
// callback handler performs the terminal transition.
func (p *Processor) ProcessPayment(ctx context.Context, order *orderdomain.Order) (*domain.PaymentResult, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !order.NeedsPayment() {
		return nil, domain.ErrOrderNotPayable
	}
	if p.payPage == nil {
		return nil, domain.ErrOperationNotSupported
	}

	retry, err := p.orders.IncrementRetryCount(ctx, order)
	if err != nil {
		return nil, err
	}

	req := &domain.TransactionRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Environment: p.cfg.Environment,
	}
	target, err := p.payPage.PayPageURL(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := p.orders.SetMeta(ctx, order, map[string]any{
		p.key(domain.MetaAwaitingRemote): "yes",
		p.key(domain.MetaEnvironment):    p.cfg.Environment,
		p.key(domain.MetaRetryCount):     strconv.Itoa(retry),
	}); err != nil {
		return nil, err
	}

	return &domain.PaymentResult{RedirectURL: target}, nil
}

// HandleNotification runs the callback state machine. Anything that
// cannot be verified, resolved or is a redelivery ends Invalid with no
// order mutation and no hint that the order exists.
func (p *Processor) HandleNotification(ctx context.Context, n *domain.Notification) (*CallbackResult, error) {
	if p.parser == nil {
		return nil, domain.ErrOperationNotSupported
	}
	if n == nil {
		return p.invalid(""), nil
	}

	if err := p.parser.VerifyNotification(ctx, n); err != nil {
		p.log.Warn("notification failed verification", zap.Error(err))
		return p.invalid(""), nil
	}

	parsed, err := p.parser.ParseNotification(ctx, n)
	if err != nil || parsed == nil || parsed.Response == nil {
		p.log.Warn("notification failed parsing", zap.Error(err))
		return p.invalid(""), nil
	}

	event, fresh, err := p.recordEvent(ctx, n, parsed)
	if err != nil {
		return nil, err
	}
	if !fresh {
		p.log.Info("duplicate notification ignored",
			zap.String("provider_ref", parsed.ProviderRef))
		return p.invalid(parsed.OrderRef), nil
	}

	order, err := p.resolveOrder(ctx, parsed.OrderRef)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, orderdomain.ErrOrderNotFound) {
			p.finishEvent(ctx, event, DispositionInvalid)
			return p.invalid(parsed.OrderRef), nil
		}
		// Transient lookup failure; the event row keeps an empty
		// disposition so a redelivery reclaims it.
		return nil, err
	}

	// Callback mutation runs under a per-order critical section so two
	// near-simultaneous notifications cannot both pass the needs-payment
	// check.
	if p.locker != nil {
		lockKey := "payrail:order-callback:" + order.ID.String()
		token, ok, lockErr := p.locker.TryLock(ctx, lockKey, callbackLockTTL)
		if lockErr != nil {
			return nil, lockErr
		}
		if !ok {
			// Another delivery is mutating the order. Leave the event
			// unfinished; the gateway's redelivery reclaims it.
			return p.invalid(parsed.OrderRef), nil
		}
		defer func() {
			if rErr := p.locker.Release(ctx, lockKey, token); rErr != nil {
				p.log.Warn("callback lock release failed", zap.Error(rErr))
			}
		}()
	}

	if !order.NeedsPayment() {
		p.finishEvent(ctx, event, DispositionInvalid)
		return p.invalid(parsed.OrderRef), nil
	}

	resp := parsed.Response
	if resp.Approved() && resp.Token != nil && order.CustomerID != 0 {
		p.syncInlineToken(ctx, order, resp)
	}

	result, err := p.applier.Apply(ctx, order, resp, false)
	if err != nil {
		return nil, err
	}

	disposition := dispositionFor(resp.Outcome)
	p.finishEvent(ctx, event, disposition)

	return &CallbackResult{
		Disposition: disposition,
		RedirectURL: p.redirectFor(disposition),
		Message:     result.Message,
	}, nil
}

// recordEvent inserts the notification into the event log before any
// processing. A duplicate key on (provider, provider_ref) means the
// notification was already delivered; a delivered row without a
// disposition was never fully processed and is reclaimed so the
// redelivery can run to completion.
func (p *Processor) recordEvent(ctx context.Context, n *domain.Notification, parsed *domain.ParsedNotification) (*GatewayNotification, bool, error) {
	payload, err := json.Marshal(n.Values)
	if err != nil {
		payload = []byte("{}")
	}

	event := &GatewayNotification{
		ID:          p.genID.Generate(),
		Provider:    p.cfg.ID,
		ProviderRef: parsed.ProviderRef,
		Kind:        string(n.Kind),
		OrderRef:    parsed.OrderRef,
		Payload:     datatypes.JSON(payload),
		ReceivedAt:  p.clock.Now(),
	}
	if event.ProviderRef == "" {
		// No stable reference to dedupe on; fall back to the event id so
		// the insert always succeeds and the needs-payment check is the
		// only guard.
		event.ProviderRef = event.ID.String()
	}

	if err := p.events.Create(ctx, event); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return p.reclaimEvent(ctx, parsed.ProviderRef, n)
		}
		return nil, false, err
	}
	return event, true, nil
}

// reclaimEvent looks up the earlier delivery behind a duplicate key. A
// row finished with a disposition is a true duplicate; an unfinished row
// means the earlier attempt failed mid-flight and this delivery takes it
// over.
func (p *Processor) reclaimEvent(ctx context.Context, providerRef string, n *domain.Notification) (*GatewayNotification, bool, error) {
	existing, err := p.events.FindOne(ctx, &GatewayNotification{
		Provider:    p.cfg.ID,
		ProviderRef: providerRef,
	})
	if err != nil {
		return nil, false, err
	}
	if existing == nil || existing.Disposition != "" {
		return nil, false, nil
	}
	existing.Kind = string(n.Kind)
	existing.ReceivedAt = p.clock.Now()
	return existing, true, nil
}

func (p *Processor) finishEvent(ctx context.Context, event *GatewayNotification, disposition Disposition) {
	if event == nil {
		return
	}
	now := p.clock.Now()
	event.Disposition = string(disposition)
	event.ProcessedAt = &now
	if err := p.events.Save(ctx, event); err != nil {
		p.log.Warn("notification event update failed", zap.Error(err))
	}
}

func (p *Processor) resolveOrder(ctx context.Context, orderRef string) (*orderdomain.Order, error) {
	raw, err := strconv.ParseInt(orderRef, 10, 64)
	if err != nil || raw == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return p.orders.Get(ctx, snowflake.ParseInt64(raw))
}

// syncInlineToken stores token data embedded in an approved notification.
// Failures are noted, never fatal; the payment already settled remotely.
func (p *Processor) syncInlineToken(ctx context.Context, order *orderdomain.Order, resp *domain.TransactionResponse) {
	token, err := p.tokens.CreateTokenFromResponse(ctx, order, resp)
	if err != nil {
		p.log.Warn("inline token build failed", zap.Error(err))
		return
	}
	token.GatewayID = p.cfg.ID
	token.Environment = p.cfg.Environment
	if err := p.tokens.AddToken(ctx, token); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			p.log.Warn("inline token store failed", zap.Error(err))
			_ = p.orders.AddNote(ctx, order.ID, "Payment received, but saving the payment method failed.")
		}
		return
	}
	_ = p.orders.SetMeta(ctx, order, map[string]any{
		p.key(domain.MetaPaymentToken): token.TokenID,
	})
}

func (p *Processor) key(name string) string {
	return domain.MetaKey(p.cfg.ID, name)
}

func (p *Processor) invalid(orderRef string) *CallbackResult {
	return &CallbackResult{
		Disposition: DispositionInvalid,
		RedirectURL: p.cfg.HomeURL,
	}
}

func (p *Processor) redirectFor(d Disposition) string {
	switch d {
	case DispositionApproved, DispositionHeld:
		return p.cfg.ReturnURL
	case DispositionCancelled, DispositionFailed:
		return p.cfg.CancelURL
	default:
		return p.cfg.HomeURL
	}
}

func dispositionFor(o domain.Outcome) Disposition {
	switch o {
	case domain.OutcomeApproved:
		return DispositionApproved
	case domain.OutcomeHeld:
		return DispositionHeld
	case domain.OutcomeCancelled:
		return DispositionCancelled
	default:
		return DispositionFailed
	}
}
