// Package service implements the wallet checkout orchestrators: building
// the payment-request description for the wallet sheet and, once the
// customer authorizes, materializing an order and delegating into the
// direct transaction path.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	walletdomain "github.com/smallbiznis/payrail/internal/wallet/domain"
	"go.uber.org/zap"
)

type Service struct {
	cfg    config.WalletConfig
	gw     *gateway.Gateway
	orders orderdomain.Service
	log    *zap.Logger
}

func NewService(cfg config.WalletConfig, gw *gateway.Gateway, orders orderdomain.Service, log *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		gw:     gw,
		orders: orders,
		log:    log.Named("wallet.service"),
	}
}

// BuildPaymentRequest computes the wallet-sheet description for a cart.
// Line amounts come from the product catalog, not the client.
func (s *Service) BuildPaymentRequest(ctx context.Context, cart *walletdomain.Cart) (*walletdomain.PaymentRequest, error) {
	totals, err := s.recompute(ctx, cart)
	if err != nil {
		return nil, err
	}

	req := &walletdomain.PaymentRequest{
		CountryCode:          s.cfg.CountryCode,
		CurrencyCode:         strings.ToUpper(cart.Currency),
		SupportedNetworks:    s.supportedNetworks(),
		MerchantCapabilities: []string{"supports3DS", "supportsCredit", "supportsDebit"},
		RequiredBilling:      []string{"postalAddress", "name"},
		Total: walletdomain.RequestItem{
			Label:  s.cfg.MerchantName,
			Amount: totals.total,
		},
	}
	for _, line := range totals.lines {
		req.LineItems = append(req.LineItems, walletdomain.RequestItem{
			Label:  line.Name,
			Amount: line.Amount,
		})
	}
	if totals.shipping > 0 {
		req.LineItems = append(req.LineItems, walletdomain.RequestItem{Label: "Shipping", Amount: totals.shipping})
		req.RequiredShipping = []string{"postalAddress", "name"}
	}
	if totals.tax > 0 {
		req.LineItems = append(req.LineItems, walletdomain.RequestItem{Label: "Tax", Amount: totals.tax})
	}
	return req, nil
}

// BuildProductPaymentRequest builds the sheet for a single-product
// checkout.
func (s *Service) BuildProductPaymentRequest(ctx context.Context, customerID, productID snowflake.ID, quantity int64) (*walletdomain.PaymentRequest, error) {
	if quantity <= 0 {
		quantity = 1
	}
	product, err := s.orders.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.BuildPaymentRequest(ctx, &walletdomain.Cart{
		CustomerID: customerID,
		Currency:   product.Currency,
		Items:      []walletdomain.CartItem{{ProductID: productID, Quantity: quantity}},
	})
}

// ProcessAuthorization handles the wallet's authorization callback:
// validates payload completeness, recomputes totals server side,
// materializes an order (reusing a pending one matched by cart hash) and
// runs the direct transaction path on the decoded instrument.
func (s *Service) ProcessAuthorization(ctx context.Context, payload *walletdomain.AuthorizationPayload) (*gatewaydomain.PaymentResult, snowflake.ID, error) {
	if payload == nil {
		return nil, 0, walletdomain.ErrIncompleteAuthorization
	}
	totals, err := s.recompute(ctx, &payload.Cart)
	if err != nil {
		return nil, 0, err
	}
	if err := s.validatePayload(payload, totals); err != nil {
		return nil, 0, err
	}

	order, err := s.materializeOrder(ctx, payload, totals)
	if err != nil {
		return nil, 0, err
	}

	attempt := &gatewaydomain.PaymentAttempt{
		Type:          gatewaydomain.PaymentTypeCreditCard,
		AccountNumber: payload.Instrument.Number,
		ExpMonth:      payload.Instrument.ExpMonth,
		ExpYear:       payload.Instrument.ExpYear,
		FromWallet:    true,
	}

	result, err := s.gw.Direct().ProcessPayment(ctx, order, attempt)
	if err != nil {
		return nil, order.ID, err
	}
	return result, order.ID, nil
}

func (s *Service) validatePayload(payload *walletdomain.AuthorizationPayload, totals cartTotals) error {
	if payload.Instrument.Number == "" || payload.Instrument.ExpYear == 0 {
		return walletdomain.ErrIncompleteAuthorization
	}
	if !payload.BillingContact.Complete() {
		return walletdomain.ErrIncompleteAuthorization
	}
	if totals.shipping > 0 && !payload.ShippingContact.Complete() {
		return walletdomain.ErrIncompleteAuthorization
	}
	// The sheet displayed the client total; charging anything else would
	// differ from what the customer approved.
	if payload.ClientTotal != 0 && payload.ClientTotal != totals.total {
		s.log.Warn("wallet client total mismatch",
			zap.Int64("client_total", payload.ClientTotal),
			zap.Int64("server_total", totals.total))
		return walletdomain.ErrTotalMismatch
	}
	return nil
}

// materializeOrder reuses a pending order matched by the cart's content
// hash rather than creating a duplicate, rebuilding its line items
// either way.
func (s *Service) materializeOrder(ctx context.Context, payload *walletdomain.AuthorizationPayload, totals cartTotals) (*orderdomain.Order, error) {
	hash := cartHash(&payload.Cart, totals)
	items := s.orderItems(totals)

	existing, err := s.orders.FindPendingByCartHash(ctx, payload.Cart.CustomerID, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.orders.ReplaceItems(ctx, existing.ID, items); err != nil {
			return nil, err
		}
		return s.orders.Get(ctx, existing.ID)
	}

	order := &orderdomain.Order{
		CustomerID:  payload.Cart.CustomerID,
		Status:      orderdomain.OrderStatusPending,
		TotalAmount: totals.total,
		Currency:    strings.ToUpper(payload.Cart.Currency),
		CartHash:    hash,
		Billing:     billingFromContact(payload.BillingContact),
	}
	if err := s.orders.Create(ctx, order, items); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) orderItems(totals cartTotals) []orderdomain.OrderItem {
	items := make([]orderdomain.OrderItem, 0, len(totals.lines)+2)
	for _, line := range totals.lines {
		items = append(items, orderdomain.OrderItem{
			ProductID:  line.ProductID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitAmount: line.UnitAmount,
			Amount:     line.Amount,
		})
	}
	if totals.shipping > 0 {
		items = append(items, orderdomain.OrderItem{Name: "Shipping", Quantity: 1, UnitAmount: totals.shipping, Amount: totals.shipping})
	}
	if totals.tax > 0 {
		items = append(items, orderdomain.OrderItem{Name: "Tax", Quantity: 1, UnitAmount: totals.tax, Amount: totals.tax})
	}
	return items
}

type cartLine struct {
	ProductID  snowflake.ID
	Name       string
	Quantity   int64
	UnitAmount int64
	Amount     int64
}

type cartTotals struct {
	lines    []cartLine
	subtotal int64
	shipping int64
	tax      int64
	total    int64
}

// recompute prices the cart from the product catalog and applies the
// configured shipping and tax policy. Client-supplied amounts are never
// consulted.
func (s *Service) recompute(ctx context.Context, cart *walletdomain.Cart) (cartTotals, error) {
	var totals cartTotals
	if cart == nil || len(cart.Items) == 0 {
		return totals, walletdomain.ErrEmptyCart
	}

	shippingNeeded := false
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return totals, walletdomain.ErrEmptyCart
		}
		product, err := s.orders.GetProduct(ctx, item.ProductID)
		if err != nil {
			return totals, err
		}
		line := cartLine{
			ProductID:  product.ID,
			Name:       product.Name,
			Quantity:   item.Quantity,
			UnitAmount: product.UnitAmount,
			Amount:     product.UnitAmount * item.Quantity,
		}
		totals.lines = append(totals.lines, line)
		totals.subtotal += line.Amount
		if product.RequiresShipping {
			shippingNeeded = true
		}
	}

	if shippingNeeded {
		totals.shipping = s.cfg.ShippingFlat
	}
	totals.tax = (totals.subtotal + totals.shipping) * s.cfg.TaxBasisPts / 10000
	totals.total = totals.subtotal + totals.shipping + totals.tax
	return totals, nil
}

func (s *Service) supportedNetworks() []string {
	caps := s.gw.Capabilities()
	if !caps.CreditCard {
		return nil
	}
	return []string{"visa", "mastercard", "amex", "discover"}
}

// cartHash is the content hash used to match a pending order: sorted
// (product, quantity, amount) tuples plus the computed totals.
func cartHash(cart *walletdomain.Cart, totals cartTotals) string {
	parts := make([]string, 0, len(totals.lines)+2)
	for _, line := range totals.lines {
		parts = append(parts, fmt.Sprintf("%d:%d:%d", line.ProductID, line.Quantity, line.Amount))
	}
	sort.Strings(parts)
	parts = append(parts, strings.ToUpper(cart.Currency), fmt.Sprintf("%d:%d:%d", totals.shipping, totals.tax, totals.total))
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func billingFromContact(c walletdomain.Contact) orderdomain.BillingAddress {
	return orderdomain.BillingAddress{
		FirstName:  c.GivenName,
		LastName:   c.FamilyName,
		Line1:      c.Line1,
		Line2:      c.Line2,
		City:       c.City,
		State:      c.State,
		PostalCode: c.PostalCode,
		Country:    c.Country,
	}
}
