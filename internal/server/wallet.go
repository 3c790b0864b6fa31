package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	walletdomain "github.com/smallbiznis/payrail/internal/wallet/domain"
)

// BuildWalletPaymentRequest recomputes the cart server-side and returns
// the payment-request description for the wallet sheet.
func (s *Server) BuildWalletPaymentRequest(c *gin.Context) {
	var cart walletdomain.Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	request, err := s.walletSvc.BuildPaymentRequest(c.Request.Context(), &cart)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

type productPaymentRequest struct {
	CustomerID snowflake.ID `json:"customer_id"`
	ProductID  snowflake.ID `json:"product_id"`
	Quantity   int64        `json:"quantity"`
}

// BuildWalletProductPaymentRequest is the single-product express path:
// a one-line cart built from the catalog entry.
func (s *Server) BuildWalletProductPaymentRequest(c *gin.Context) {
	var req productPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProductID == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	request, err := s.walletSvc.BuildProductPaymentRequest(c.Request.Context(), req.CustomerID, req.ProductID, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// AuthorizeWalletPayment accepts the decoded wallet authorization,
// recomputes the total and runs the payment through the direct path.
func (s *Server) AuthorizeWalletPayment(c *gin.Context) {
	var payload walletdomain.AuthorizationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, orderID, err := s.walletSvc.ProcessAuthorization(c.Request.Context(), &payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordTransaction(c.Request.Context(), s.cfg.Gateway.ID, string(result.Outcome))
	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID.String(),
		"result":   toPaymentResultResponse(result),
	})
}
