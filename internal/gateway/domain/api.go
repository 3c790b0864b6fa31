package domain

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bwmarrin/snowflake"
)

// TransactionRequest is the normalized request handed to a gateway adapter.
type TransactionRequest struct {
	OrderID     snowflake.ID
	OrderNumber string
	Amount      int64
	Currency    string
	Description string
	Environment string

	// CustomerRef is the gateway-side customer identifier, when one exists.
	CustomerRef string

	Attempt *PaymentAttempt
	Token   *TokenData

	// TransactionID references a prior transaction for capture, void and
	// refund calls.
	TransactionID string
}

// ProcessorAPI is the capability surface every concrete gateway adapter
// implements. Each call returns a canonical TransactionResponse; transport
// failures surface as errors and are converted into failed-order
// transitions at the processor boundary.
type ProcessorAPI interface {
	CreditCardCharge(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	CreditCardAuthorization(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	CheckDebit(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	Capture(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	Void(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	Refund(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	TokenizePaymentMethod(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	UpdateTokenizedPaymentMethod(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
}

// Adapter couples the API surface with its statically resolved capability
// set.
type Adapter interface {
	ProcessorAPI
	Capabilities() Capabilities
}

// AdapterConfig is the construction-time configuration of an adapter.
type AdapterConfig struct {
	GatewayID   string
	Environment string
	Config      map[string]string
}

// AdapterFactory builds adapters for one provider id.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// NotificationKind distinguishes asynchronous server notifications from
// synchronous browser redirect-backs.
type NotificationKind string

const (
	NotificationKindIPN      NotificationKind = "ipn"
	NotificationKindRedirect NotificationKind = "redirect"
)

// Notification is the opaque payload delivered to the hosted callback
// endpoint.
type Notification struct {
	Kind    NotificationKind
	Values  url.Values
	Body    []byte
	Headers http.Header
}

// ParsedNotification is the per-gateway translation of a raw notification.
type ParsedNotification struct {
	Response *TransactionResponse

	// OrderRef is the order identifier embedded in the notification. Order
	// resolution is strictly by this reference.
	OrderRef string

	// ProviderRef identifies the notification on the provider side and
	// keys the notification event log.
	ProviderRef string
}

// NotificationParser is implemented by hosted adapters to verify and
// translate raw notifications into canonical responses.
type NotificationParser interface {
	VerifyNotification(ctx context.Context, n *Notification) error
	ParseNotification(ctx context.Context, n *Notification) (*ParsedNotification, error)
}

// HostedPayPage is implemented by hosted adapters that redirect the
// customer to a remote payment page.
type HostedPayPage interface {
	PayPageURL(ctx context.Context, req *TransactionRequest) (string, error)
	PayPageParams(ctx context.Context, req *TransactionRequest) (url.Values, error)
}
