// Package capture converts a prior authorization into settled funds,
// full or partial, with cumulative accounting kept in order meta.
package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrail/internal/clock"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	"go.uber.org/zap"
)

// Result reports one capture call.
type Result struct {
	Response *domain.TransactionResponse

	// Captured is the cumulative captured total after this call.
	Captured int64

	// Completed is set once the cumulative capture reaches the authorized
	// amount and the order has been marked paid.
	Completed bool
}

// BulkResult is the per-order outcome of a bulk capture run.
type BulkResult struct {
	OrderID snowflake.ID
	Result  *Result
	Err     error
}

type Handler struct {
	cfg    config.GatewayConfig
	api    domain.Adapter
	caps   domain.Capabilities
	orders orderdomain.Service
	clock  clock.Clock
	log    *zap.Logger
}

func NewHandler(
	cfg config.GatewayConfig,
	adapter domain.Adapter,
	orders orderdomain.Service,
	clk clock.Clock,
	log *zap.Logger,
) *Handler {
	return &Handler{
		cfg:    cfg,
		api:    adapter,
		caps:   adapter.Capabilities(),
		orders: orders,
		clock:  clk,
		log:    log.Named("gateway.capture"),
	}
}

// PerformCapture captures amount against the order's authorization. A
// zero amount captures the remaining balance. The cumulative captured
// total never exceeds the authorized amount; violating preconditions are
// rejected before any API call.
func (h *Handler) PerformCapture(ctx context.Context, order *orderdomain.Order, amount int64) (*Result, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !h.caps.Capture {
		return nil, domain.ErrCaptureNotSupported
	}

	transID := order.GetMetaString(h.key(domain.MetaTransactionID))
	authAmount := h.metaInt(order, domain.MetaAuthAmount)
	if transID == "" || authAmount <= 0 {
		return nil, domain.ErrNoAuthorization
	}
	if order.GetMetaString(h.key(domain.MetaChargeCaptured)) == "yes" {
		return nil, domain.ErrOrderFullyCaptured
	}
	if err := h.checkWindow(order); err != nil {
		return nil, err
	}

	captured := h.metaInt(order, domain.MetaCaptureTotal)
	remaining := authAmount - captured
	if remaining <= 0 {
		return nil, domain.ErrOrderFullyCaptured
	}
	if amount == 0 {
		amount = remaining
	}
	if amount < 0 || amount > remaining {
		return nil, domain.ErrCaptureExceedsRemaining
	}
	if h.cfg.CaptureMaxAmount > 0 && amount > h.cfg.CaptureMaxAmount {
		return nil, domain.ErrCaptureExceedsMaximum
	}
	if amount < remaining && !h.caps.PartialCapture {
		return nil, domain.ErrCaptureNotSupported
	}

	resp, err := h.api.Capture(ctx, &domain.TransactionRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Amount:        amount,
		Currency:      order.Currency,
		Environment:   h.cfg.Environment,
		TransactionID: transID,
	})
	if err != nil {
		h.log.Error("capture call failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		if nErr := h.orders.AddNote(ctx, order.ID, "Capture failed: "+err.Error()); nErr != nil {
			return nil, nErr
		}
		return nil, err
	}
	if !resp.Approved() {
		note := "Capture declined"
		if msg := resp.Message(); msg != "" {
			note = "Capture declined: " + msg
		}
		if nErr := h.orders.AddNote(ctx, order.ID, note); nErr != nil {
			return nil, nErr
		}
		return &Result{Response: resp, Captured: captured}, nil
	}

	newTotal := captured + amount
	values := map[string]any{
		h.key(domain.MetaCaptureTotal):    strconv.FormatInt(newTotal, 10),
		h.key(domain.MetaCaptureTransIDs): appendTransID(order.GetMetaString(h.key(domain.MetaCaptureTransIDs)), resp.TransactionID),
	}
	completed := newTotal >= authAmount
	if completed {
		values[h.key(domain.MetaChargeCaptured)] = "yes"
	}
	if err := h.orders.SetMeta(ctx, order, values); err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Captured %s of %s (cumulative %d/%d). Transaction ID: %s",
		formatAmount(amount, order.Currency), formatAmount(authAmount, order.Currency),
		newTotal, authAmount, resp.TransactionID)
	if err := h.orders.AddNote(ctx, order.ID, note); err != nil {
		return nil, err
	}

	if completed {
		if err := h.orders.MarkPaid(ctx, order); err != nil {
			return nil, err
		}
	}

	return &Result{Response: resp, Captured: newTotal, Completed: completed}, nil
}

// BulkCapture captures the remaining balance for each order. A failure
// on one order is recorded in its result and never aborts the rest.
func (h *Handler) BulkCapture(ctx context.Context, orderIDs []snowflake.ID) []BulkResult {
	results := make([]BulkResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		order, err := h.orders.Get(ctx, id)
		if err != nil {
			results = append(results, BulkResult{OrderID: id, Err: err})
			continue
		}
		result, err := h.PerformCapture(ctx, order, 0)
		if err != nil {
			h.log.Warn("bulk capture entry failed",
				zap.String("order_id", id.String()), zap.Error(err))
		}
		results = append(results, BulkResult{OrderID: id, Result: result, Err: err})
	}
	return results
}

// checkWindow refuses captures once the authorization window has passed,
// measured from the recorded transaction date.
func (h *Handler) checkWindow(order *orderdomain.Order) error {
	raw := order.GetMetaString(h.key(domain.MetaTransactionDate))
	if raw == "" {
		return nil
	}
	transDate, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	window := time.Duration(h.cfg.CaptureWindowHours) * time.Hour
	if window <= 0 {
		return nil
	}
	if h.clock.Now().After(transDate.Add(window)) {
		return domain.ErrCaptureWindowExpired
	}
	return nil
}

func (h *Handler) metaInt(order *orderdomain.Order, name string) int64 {
	raw := order.GetMetaString(h.key(name))
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func (h *Handler) key(name string) string {
	return domain.MetaKey(h.cfg.ID, name)
}

func appendTransID(existing, transID string) string {
	transID = strings.TrimSpace(transID)
	if transID == "" {
		return existing
	}
	if existing == "" {
		return transID
	}
	return existing + "," + transID
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, strings.ToUpper(currency))
}
