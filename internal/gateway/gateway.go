// Package gateway composes the configured adapter with the direct and
// hosted processors and exposes the payment, refund and void entry
// points. Dispatch between the two transport models is decided by the
// adapter's hosted capability, fixed at construction.
package gateway

import (
	"context"
	"strconv"

	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/capture"
	"github.com/smallbiznis/payrail/internal/gateway/direct"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	"github.com/smallbiznis/payrail/internal/gateway/hosted"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	"go.uber.org/zap"
)

type Gateway struct {
	cfg     config.GatewayConfig
	adapter domain.Adapter
	caps    domain.Capabilities
	direct  *direct.Processor
	hosted  *hosted.Processor
	capture *capture.Handler
	orders  orderdomain.Service
	log     *zap.Logger
}

func New(
	cfg config.GatewayConfig,
	adapter domain.Adapter,
	directProc *direct.Processor,
	hostedProc *hosted.Processor,
	captureHandler *capture.Handler,
	orders orderdomain.Service,
	log *zap.Logger,
) *Gateway {
	return &Gateway{
		cfg:     cfg,
		adapter: adapter,
		caps:    adapter.Capabilities(),
		direct:  directProc,
		hosted:  hostedProc,
		capture: captureHandler,
		orders:  orders,
		log:     log.Named("gateway"),
	}
}

func (g *Gateway) Capabilities() domain.Capabilities {
	return g.caps
}

func (g *Gateway) Config() config.GatewayConfig {
	return g.cfg
}

func (g *Gateway) Direct() *direct.Processor {
	return g.direct
}

func (g *Gateway) Hosted() *hosted.Processor {
	return g.hosted
}

func (g *Gateway) Capture() *capture.Handler {
	return g.capture
}

// ProcessPayment dispatches the order to the hosted or direct path. The
// attempt is ignored on the hosted path; instrument data never touches
// this server there.
func (g *Gateway) ProcessPayment(ctx context.Context, order *orderdomain.Order, attempt *domain.PaymentAttempt) (*domain.PaymentResult, error) {
	if g.caps.Hosted {
		return g.hosted.ProcessPayment(ctx, order)
	}
	return g.direct.ProcessPayment(ctx, order, attempt)
}

// Refund returns funds on a settled transaction. A zero amount refunds
// the full remaining paid total. A declined refund on a transaction that
// has not settled yet falls back to a void when the adapter supports it.
func (g *Gateway) Refund(ctx context.Context, order *orderdomain.Order, amount int64, reason string) (*domain.TransactionResponse, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !g.caps.Refund {
		return nil, domain.ErrRefundNotSupported
	}
	transID := order.GetMetaString(g.key(domain.MetaTransactionID))
	if transID == "" {
		return nil, domain.ErrNoAuthorization
	}

	refunded := g.metaInt(order, domain.MetaRefundTotal)
	remaining := order.TotalAmount - refunded
	if remaining <= 0 {
		return nil, domain.ErrRefundNotSupported
	}
	if amount == 0 {
		amount = remaining
	}
	if amount < 0 || amount > remaining {
		return nil, domain.ErrRefundNotSupported
	}

	resp, err := g.adapter.Refund(ctx, &domain.TransactionRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Amount:        amount,
		Currency:      order.Currency,
		Environment:   g.cfg.Environment,
		TransactionID: transID,
	})
	if err != nil {
		if nErr := g.orders.AddNote(ctx, order.ID, "Refund failed: "+err.Error()); nErr != nil {
			return nil, nErr
		}
		return nil, err
	}

	if !resp.Approved() {
		// An unsettled charge cannot be refunded; voiding releases the
		// hold instead.
		if g.caps.Void && !g.settled(order) {
			g.log.Info("refund declined on unsettled transaction, voiding instead",
				zap.String("order_id", order.ID.String()))
			return g.Void(ctx, order)
		}
		note := "Refund declined"
		if msg := resp.Message(); msg != "" {
			note = "Refund declined: " + msg
		}
		if nErr := g.orders.AddNote(ctx, order.ID, note); nErr != nil {
			return nil, nErr
		}
		return resp, nil
	}

	newTotal := refunded + amount
	if err := g.orders.SetMeta(ctx, order, map[string]any{
		g.key(domain.MetaRefundTotal): strconv.FormatInt(newTotal, 10),
	}); err != nil {
		return nil, err
	}

	note := "Refunded " + strconv.FormatInt(amount, 10) + " " + order.Currency + ". Transaction ID: " + resp.TransactionID
	if reason != "" {
		note += ". Reason: " + reason
	}
	if newTotal >= order.TotalAmount {
		if err := g.orders.MarkRefunded(ctx, order, note); err != nil {
			return nil, err
		}
	} else {
		if err := g.orders.AddNote(ctx, order.ID, note); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Void cancels an authorization or an unsettled charge. Settled
// transactions must be refunded instead.
func (g *Gateway) Void(ctx context.Context, order *orderdomain.Order) (*domain.TransactionResponse, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !g.caps.Void {
		return nil, domain.ErrVoidNotAvailable
	}
	transID := order.GetMetaString(g.key(domain.MetaTransactionID))
	if transID == "" {
		return nil, domain.ErrNoAuthorization
	}
	if g.settled(order) {
		return nil, domain.ErrVoidNotAvailable
	}

	resp, err := g.adapter.Void(ctx, &domain.TransactionRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Environment:   g.cfg.Environment,
		TransactionID: transID,
	})
	if err != nil {
		if nErr := g.orders.AddNote(ctx, order.ID, "Void failed: "+err.Error()); nErr != nil {
			return nil, nErr
		}
		return nil, err
	}
	if !resp.Approved() {
		note := "Void declined"
		if msg := resp.Message(); msg != "" {
			note = "Void declined: " + msg
		}
		if nErr := g.orders.AddNote(ctx, order.ID, note); nErr != nil {
			return nil, nErr
		}
		return resp, nil
	}

	if err := g.orders.Cancel(ctx, order, "Transaction voided. Transaction ID: "+resp.TransactionID); err != nil {
		return nil, err
	}
	return resp, nil
}

// settled reports whether funds have actually moved for this order: a
// captured charge or a completed payment, as opposed to a bare
// authorization hold.
func (g *Gateway) settled(order *orderdomain.Order) bool {
	if order.GetMetaString(g.key(domain.MetaChargeCaptured)) == "yes" {
		return true
	}
	return order.PaidAt != nil
}

func (g *Gateway) metaInt(order *orderdomain.Order, name string) int64 {
	raw := order.GetMetaString(g.key(name))
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func (g *Gateway) key(name string) string {
	return domain.MetaKey(g.cfg.ID, name)
}
