package domain

import "fmt"

// Order meta keys written by the processors. Keys are namespaced per
// gateway through MetaKey so two gateways never clobber each other's
// transaction data.
const (
	MetaTransactionID     = "trans_id"
	MetaTransactionDate   = "trans_date"
	MetaAuthorizationCode = "authorization_code"
	MetaAuthAmount        = "auth_amount"
	MetaCaptureTotal      = "capture_total"
	MetaCaptureTransIDs   = "capture_trans_ids"
	MetaChargeCaptured    = "charge_captured"
	MetaCustomerID        = "customer_id"
	MetaPaymentToken      = "payment_token"
	MetaAccountFour       = "account_four"
	MetaCardType          = "card_type"
	MetaEnvironment       = "environment"
	MetaRetryCount        = "retry_count"
	MetaStockReduced      = "stock_reduced"
	MetaHeldReason        = "held_reason"
	MetaAwaitingRemote    = "awaiting_remote"
	MetaRefundTotal       = "refund_total"
)

// MetaKey namespaces key under the gateway id.
func MetaKey(gatewayID, key string) string {
	return fmt.Sprintf("_%s_%s", gatewayID, key)
}
