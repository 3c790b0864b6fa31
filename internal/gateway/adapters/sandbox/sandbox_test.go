package sandbox

import (
	"context"
	"testing"

	"github.com/smallbiznis/payrail/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) domain.Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(domain.AdapterConfig{
		GatewayID:   "sandbox",
		Environment: "sandbox",
	})
	require.NoError(t, err)
	return adapter
}

func cardRequest(number string) *domain.TransactionRequest {
	return &domain.TransactionRequest{
		OrderID:     12345,
		OrderNumber: "12345",
		Amount:      5000,
		Currency:    "USD",
		Attempt: &domain.PaymentAttempt{
			Type:          domain.PaymentTypeCreditCard,
			AccountNumber: number,
			ExpMonth:      12,
			ExpYear:       2028,
			CSC:           "123",
		},
	}
}

func TestCreditCardChargeOutcomes(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	resp, err := adapter.CreditCardCharge(ctx, cardRequest("4242424242424242"))
	require.NoError(t, err)
	assert.True(t, resp.Approved())
	assert.Equal(t, "1", resp.StatusCode)
	assert.True(t, len(resp.TransactionID) > 4)
	assert.NotEmpty(t, resp.AuthorizationCode)

	resp, err = adapter.CreditCardCharge(ctx, cardRequest(accountDeclined))
	require.NoError(t, err)
	assert.True(t, resp.Failed())
	assert.Equal(t, "05", resp.StatusCode)
	assert.NotEmpty(t, resp.Message())

	resp, err = adapter.CreditCardCharge(ctx, cardRequest(accountHeld))
	require.NoError(t, err)
	assert.True(t, resp.Held())
	assert.Equal(t, "252", resp.StatusCode)
}

func TestCheckDebit(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	req := &domain.TransactionRequest{
		OrderID: 12345,
		Amount:  5000,
		Attempt: &domain.PaymentAttempt{
			Type:          domain.PaymentTypeECheck,
			AccountNumber: "123456789",
			RoutingNumber: "021000021",
		},
	}
	resp, err := adapter.CheckDebit(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Approved())

	req.Attempt.RoutingNumber = routingInvalid
	resp, err = adapter.CheckDebit(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Failed())
	assert.Equal(t, "27", resp.StatusCode)
}

func TestTokenizeAndUpdate(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	resp, err := adapter.TokenizePaymentMethod(ctx, cardRequest("4242424242424242"))
	require.NoError(t, err)
	require.True(t, resp.Approved())
	require.NotNil(t, resp.Token)
	assert.Equal(t, "4242", resp.Token.Last4)
	assert.Equal(t, "visa", resp.Token.InstrumentType)
	assert.Equal(t, 12, resp.Token.ExpMonth)

	update, err := adapter.UpdateTokenizedPaymentMethod(ctx, &domain.TransactionRequest{
		OrderID: 12345,
		Token:   &domain.TokenData{TokenID: resp.Token.TokenID, ExpMonth: 6, ExpYear: 2031},
	})
	require.NoError(t, err)
	assert.True(t, update.Approved())

	unknown, err := adapter.UpdateTokenizedPaymentMethod(ctx, &domain.TransactionRequest{
		OrderID: 12345,
		Token:   &domain.TokenData{TokenID: "tok_missing"},
	})
	require.NoError(t, err)
	assert.True(t, unknown.Failed())
	assert.Equal(t, "54", unknown.StatusCode)
}

func TestFollowUpOperationsRequireTransactionID(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	_, err := adapter.Capture(ctx, &domain.TransactionRequest{OrderID: 12345, Amount: 5000})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	resp, err := adapter.Capture(ctx, &domain.TransactionRequest{
		OrderID:       12345,
		Amount:        5000,
		TransactionID: "txn_prior",
	})
	require.NoError(t, err)
	assert.True(t, resp.Approved())

	refund, err := adapter.Refund(ctx, &domain.TransactionRequest{
		OrderID:       12345,
		Amount:        5000,
		TransactionID: "txn_prior",
	})
	require.NoError(t, err)
	assert.True(t, refund.Approved())

	void, err := adapter.Void(ctx, &domain.TransactionRequest{
		OrderID:       12345,
		TransactionID: "txn_prior",
	})
	require.NoError(t, err)
	assert.True(t, void.Approved())
}
