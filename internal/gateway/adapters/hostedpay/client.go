package hostedpay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/payrail/internal/gateway/domain"
)

// apiClient talks to the provider's transaction API for the follow-up
// operations that do not go through the pay page. Requests and replies
// are form encoded and signed the same way as pay-page parameters.
type apiClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func newAPIClient(baseURL, secret string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
}

func (c *apiClient) transact(ctx context.Context, action string, req *domain.TransactionRequest) (*domain.TransactionResponse, error) {
	if c.baseURL == "" {
		return nil, domain.ErrOperationNotSupported
	}
	if req == nil || req.TransactionID == "" {
		return nil, domain.ErrInvalidPayload
	}

	form := url.Values{}
	form.Set("action", action)
	form.Set("trans_id", req.TransactionID)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToUpper(req.Currency))
	if req.OrderID != 0 {
		form.Set("order_id", req.OrderID.String())
	}
	form.Set("signature", sign(c.secret, form))

	body, err := c.post(ctx, "/transactions", form)
	if err != nil {
		return nil, err
	}

	reply, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("hostedpay: decode reply: %w", err)
	}

	return &domain.TransactionResponse{
		Outcome:       parseStatus(reply.Get("status")),
		StatusCode:    strings.TrimSpace(reply.Get("code")),
		StatusMessage: strings.TrimSpace(reply.Get("message")),
		TransactionID: strings.TrimSpace(reply.Get("trans_id")),
	}, nil
}

func (c *apiClient) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hostedpay: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("hostedpay: read reply: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("hostedpay: api error: status %d", resp.StatusCode)
	}
	return body, nil
}
