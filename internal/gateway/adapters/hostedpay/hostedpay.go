// Package hostedpay implements a hosted gateway: the customer is sent to
// a remote payment page and the result arrives later through a signed
// notification. Request parameters and notifications are authenticated
// with HMAC-SHA256 over the sorted parameter set.
package hostedpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/payrail/internal/gateway/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "hostedpay"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.Config["secret"])
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	payPageURL := strings.TrimSpace(cfg.Config["pay_page_url"])
	if payPageURL == "" {
		return nil, domain.ErrInvalidConfig
	}

	return &Adapter{
		gatewayID:   cfg.GatewayID,
		environment: cfg.Environment,
		secret:      secret,
		payPageURL:  payPageURL,
		apiClient:   newAPIClient(strings.TrimSpace(cfg.Config["api_url"]), secret),
	}, nil
}

type Adapter struct {
	gatewayID   string
	environment string
	secret      string
	payPageURL  string
	apiClient   *apiClient
}

func (a *Adapter) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		Hosted:       true,
		Capture:      true,
		Refund:       true,
		Void:         true,
		Tokenization: true,
	}
}

// PayPageParams builds the signed request parameter set for the remote
// payment page.
func (a *Adapter) PayPageParams(ctx context.Context, req *domain.TransactionRequest) (url.Values, error) {
	if req == nil || req.OrderID == 0 {
		return nil, domain.ErrInvalidPayload
	}

	values := url.Values{}
	values.Set("order_id", req.OrderID.String())
	values.Set("order_number", req.OrderNumber)
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("currency", strings.ToUpper(req.Currency))
	values.Set("environment", a.environment)
	if req.CustomerRef != "" {
		values.Set("customer_ref", req.CustomerRef)
	}
	values.Set("signature", sign(a.secret, values))
	return values, nil
}

func (a *Adapter) PayPageURL(ctx context.Context, req *domain.TransactionRequest) (string, error) {
	values, err := a.PayPageParams(ctx, req)
	if err != nil {
		return "", err
	}
	return a.payPageURL + "?" + values.Encode(), nil
}

func (a *Adapter) VerifyNotification(ctx context.Context, n *domain.Notification) error {
	if n == nil || len(n.Values) == 0 {
		return domain.ErrInvalidPayload
	}
	signature := strings.TrimSpace(n.Values.Get("signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	expected := sign(a.secret, n.Values)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ParseNotification(ctx context.Context, n *domain.Notification) (*domain.ParsedNotification, error) {
	if n == nil || len(n.Values) == 0 {
		return nil, domain.ErrInvalidPayload
	}

	orderRef := strings.TrimSpace(n.Values.Get("order_id"))
	providerRef := strings.TrimSpace(n.Values.Get("notification_id"))
	if providerRef == "" {
		providerRef = strings.TrimSpace(n.Values.Get("trans_id"))
	}

	resp := &domain.TransactionResponse{
		Outcome:           parseStatus(n.Values.Get("status")),
		StatusCode:        strings.TrimSpace(n.Values.Get("code")),
		StatusMessage:     strings.TrimSpace(n.Values.Get("message")),
		TransactionID:     strings.TrimSpace(n.Values.Get("trans_id")),
		AuthorizationCode: strings.TrimSpace(n.Values.Get("auth_code")),
		CustomerRef:       strings.TrimSpace(n.Values.Get("customer_ref")),
	}

	// Token data may arrive inline with an approved notification.
	if tokenID := strings.TrimSpace(n.Values.Get("token_id")); tokenID != "" {
		expMonth, _ := strconv.Atoi(n.Values.Get("token_exp_month"))
		expYear, _ := strconv.Atoi(n.Values.Get("token_exp_year"))
		resp.Token = &domain.TokenData{
			TokenID:        tokenID,
			Last4:          strings.TrimSpace(n.Values.Get("token_last_four")),
			InstrumentType: strings.TrimSpace(n.Values.Get("token_type")),
			ExpMonth:       expMonth,
			ExpYear:        expYear,
		}
	}

	return &domain.ParsedNotification{
		Response:    resp,
		OrderRef:    orderRef,
		ProviderRef: providerRef,
	}, nil
}

func (a *Adapter) CreditCardCharge(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return nil, domain.ErrOperationNotSupported
}

func (a *Adapter) CreditCardAuthorization(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return nil, domain.ErrOperationNotSupported
}

func (a *Adapter) CheckDebit(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return nil, domain.ErrOperationNotSupported
}

func (a *Adapter) Capture(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return a.apiClient.transact(ctx, "capture", req)
}

func (a *Adapter) Void(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return a.apiClient.transact(ctx, "void", req)
}

func (a *Adapter) Refund(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return a.apiClient.transact(ctx, "refund", req)
}

func (a *Adapter) TokenizePaymentMethod(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return nil, domain.ErrOperationNotSupported
}

func (a *Adapter) UpdateTokenizedPaymentMethod(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	return nil, domain.ErrOperationNotSupported
}

func parseStatus(raw string) domain.Outcome {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "paid":
		return domain.OutcomeApproved
	case "held", "review":
		return domain.OutcomeHeld
	case "cancelled", "canceled":
		return domain.OutcomeCancelled
	default:
		return domain.OutcomeFailed
	}
}

// sign computes the HMAC-SHA256 of the sorted key=value pairs, excluding
// any existing signature parameter.
func sign(secret string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(values.Get(key))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
