package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
)

type tokenResponse struct {
	TokenID        string `json:"token_id"`
	InstrumentType string `json:"instrument_type,omitempty"`
	Last4          string `json:"last4,omitempty"`
	ExpMonth       int    `json:"exp_month,omitempty"`
	ExpYear        int    `json:"exp_year,omitempty"`
	IsDefault      bool   `json:"is_default"`
	Nickname       string `json:"nickname,omitempty"`
}

func (s *Server) ListTokens(c *gin.Context) {
	owner, err := s.tokenOwner(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tokens, err := s.tokenSvc.GetTokens(c.Request.Context(), owner)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		items = append(items, toTokenResponse(&t))
	}
	c.JSON(http.StatusOK, gin.H{"tokens": items})
}

type addTokenRequest struct {
	TokenID  string         `json:"token_id"`
	Data     map[string]any `json:"data"`
	Nickname string         `json:"nickname"`
}

// AddToken stores a gateway-issued token reference for the customer.
// Raw instruments never pass through here; the token must already exist
// on the gateway side.
func (s *Server) AddToken(c *gin.Context) {
	owner, err := s.tokenOwner(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TokenID) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	token := s.tokenSvc.BuildToken(req.TokenID, req.Data)
	token.CustomerID = owner.CustomerID
	token.GatewayID = owner.GatewayID
	token.Environment = owner.Environment
	if nickname := strings.TrimSpace(req.Nickname); nickname != "" {
		token.Nickname = nickname
	}

	if err := s.tokenSvc.AddToken(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordTokenOperation(c.Request.Context(), owner.GatewayID, "add")
	c.JSON(http.StatusCreated, toTokenResponse(token))
}

func (s *Server) RemoveToken(c *gin.Context) {
	owner, err := s.tokenOwner(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tokenID := strings.TrimSpace(c.Param("token_id"))
	if tokenID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.tokenSvc.RemoveToken(c.Request.Context(), owner, tokenID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordTokenOperation(c.Request.Context(), owner.GatewayID, "remove")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) SetDefaultToken(c *gin.Context) {
	owner, err := s.tokenOwner(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tokenID := strings.TrimSpace(c.Param("token_id"))
	if tokenID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.tokenSvc.SetDefaultToken(c.Request.Context(), owner, tokenID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordTokenOperation(c.Request.Context(), owner.GatewayID, "set_default")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) tokenOwner(c *gin.Context) (tokendomain.Owner, error) {
	customerID, err := parseSnowflakeParam(c, "customer_id")
	if err != nil {
		return tokendomain.Owner{}, err
	}
	return tokendomain.Owner{
		CustomerID:  customerID,
		GatewayID:   s.cfg.Gateway.ID,
		Environment: s.cfg.Gateway.Environment,
	}, nil
}

func toTokenResponse(t *tokendomain.PaymentToken) tokenResponse {
	return tokenResponse{
		TokenID:        t.TokenID,
		InstrumentType: t.InstrumentType,
		Last4:          t.Last4,
		ExpMonth:       t.ExpMonth,
		ExpYear:        t.ExpYear,
		IsDefault:      t.IsDefault,
		Nickname:       t.Nickname,
	}
}
