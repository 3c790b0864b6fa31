// Package outcome applies a canonical TransactionResponse to an order.
// The direct processor and the hosted callback handler share the same
// mutation semantics; only how the response was obtained differs.
package outcome

import (
	"context"
	"strconv"
	"time"

	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	"go.uber.org/zap"
)

const declinedMessage = "The transaction was declined. Please try a different payment method."

// Applier writes canonical transaction data to order meta and performs
// the status transition for each outcome class.
type Applier struct {
	cfg    config.GatewayConfig
	orders orderdomain.Service
	clock  clock.Clock
	log    *zap.Logger
}

func NewApplier(cfg config.GatewayConfig, orders orderdomain.Service, clk clock.Clock, log *zap.Logger) *Applier {
	return &Applier{
		cfg:    cfg,
		orders: orders,
		clock:  clk,
		log:    log.Named("gateway.outcome"),
	}
}

// Apply records the response on the order and transitions its status.
// authOnly marks an approval that is an authorization hold rather than a
// settled charge; the order is held and stock reduced without being
// marked paid, leaving settlement to a later capture.
func (a *Applier) Apply(ctx context.Context, order *orderdomain.Order, resp *domain.TransactionResponse, authOnly bool) (*domain.PaymentResult, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if resp == nil {
		resp = &domain.TransactionResponse{Outcome: domain.OutcomeFailed}
	}

	if err := a.writeTransactionMeta(ctx, order, resp, authOnly); err != nil {
		return nil, err
	}

	result := &domain.PaymentResult{
		Outcome:       resp.Outcome,
		TransactionID: resp.TransactionID,
		Message:       resp.Message(),
	}

	switch resp.Outcome {
	case domain.OutcomeApproved:
		if authOnly {
			if err := a.orders.Hold(ctx, order, "Payment authorized, awaiting capture. Transaction ID: "+resp.TransactionID); err != nil {
				return nil, err
			}
		} else {
			if err := a.orders.MarkPaid(ctx, order); err != nil {
				return nil, err
			}
		}
		if err := a.orders.ReduceStock(ctx, order); err != nil {
			a.log.Warn("stock reduction failed after approval",
				zap.String("order_id", order.ID.String()), zap.Error(err))
		}

	case domain.OutcomeHeld:
		note := "Payment held for review."
		if msg := resp.Message(); msg != "" {
			note = "Payment held for review: " + msg
		}
		if err := a.orders.Hold(ctx, order, note); err != nil {
			return nil, err
		}
		if err := a.orders.ReduceStock(ctx, order); err != nil {
			a.log.Warn("stock reduction failed on held payment",
				zap.String("order_id", order.ID.String()), zap.Error(err))
		}

	case domain.OutcomeCancelled:
		if err := a.orders.Cancel(ctx, order, "Payment cancelled by the customer."); err != nil {
			return nil, err
		}

	default:
		result.Message = a.declineMessage(resp)
		if err := a.orders.MarkFailed(ctx, order, result.Message); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// declineMessage picks between the gateway's own decline detail and a
// generic message, per configuration.
func (a *Applier) declineMessage(resp *domain.TransactionResponse) string {
	if a.cfg.DetailedDecline {
		if msg := resp.Message(); msg != "" {
			return msg
		}
	}
	return declinedMessage
}

func (a *Applier) writeTransactionMeta(ctx context.Context, order *orderdomain.Order, resp *domain.TransactionResponse, authOnly bool) error {
	values := map[string]any{
		a.key(domain.MetaEnvironment): a.cfg.Environment,
	}
	if resp.TransactionID != "" {
		values[a.key(domain.MetaTransactionID)] = resp.TransactionID
		values[a.key(domain.MetaTransactionDate)] = a.clock.Now().Format(time.RFC3339)
	}
	if resp.AuthorizationCode != "" {
		values[a.key(domain.MetaAuthorizationCode)] = resp.AuthorizationCode
	}
	if resp.CustomerRef != "" {
		values[a.key(domain.MetaCustomerID)] = resp.CustomerRef
	}
	if resp.Outcome == domain.OutcomeHeld {
		values[a.key(domain.MetaHeldReason)] = resp.Message()
	}
	if resp.Outcome == domain.OutcomeApproved {
		if authOnly {
			values[a.key(domain.MetaAuthAmount)] = strconv.FormatInt(order.TotalAmount, 10)
			values[a.key(domain.MetaCaptureTotal)] = "0"
			values[a.key(domain.MetaChargeCaptured)] = "no"
		} else {
			values[a.key(domain.MetaChargeCaptured)] = "yes"
		}
	}
	return a.orders.SetMeta(ctx, order, values)
}

func (a *Applier) key(name string) string {
	return domain.MetaKey(a.cfg.ID, name)
}
