package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	"github.com/smallbiznis/payrail/internal/ratelimit"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	"github.com/smallbiznis/payrail/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	cacheTTL     = 2 * time.Minute
	defaultLockT = 5 * time.Second
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Locker *ratelimit.Locker `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	locker *ratelimit.Locker

	tokens repository.Repository[tokendomain.PaymentToken]
	cache  *tokenCache
}

func NewService(p Params) tokendomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("token.service"),
		genID:  p.GenID,
		locker: p.Locker,

		tokens: repository.ProvideStore[tokendomain.PaymentToken](p.DB),
		cache:  newTokenCache(cacheTTL),
	}
}

func (s *Service) GetTokens(ctx context.Context, owner tokendomain.Owner) ([]tokendomain.PaymentToken, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	key := cacheKey(owner)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	rows, err := s.tokens.Find(ctx, &tokendomain.PaymentToken{
		CustomerID:  owner.CustomerID,
		GatewayID:   owner.GatewayID,
		Environment: owner.Environment,
	})
	if err != nil {
		return nil, err
	}

	tokens := make([]tokendomain.PaymentToken, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		tokens = append(tokens, *row)
	}

	s.cache.Set(key, tokens)
	return tokens, nil
}

func (s *Service) GetToken(ctx context.Context, owner tokendomain.Owner, tokenID string) (*tokendomain.PaymentToken, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, tokendomain.ErrInvalidToken
	}

	token, err := s.tokens.FindOne(ctx, &tokendomain.PaymentToken{
		CustomerID:  owner.CustomerID,
		GatewayID:   owner.GatewayID,
		Environment: owner.Environment,
		TokenID:     tokenID,
	})
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, tokendomain.ErrTokenNotFound
	}
	return token, nil
}

func (s *Service) AddToken(ctx context.Context, token *tokendomain.PaymentToken) error {
	if token == nil || strings.TrimSpace(token.TokenID) == "" {
		return tokendomain.ErrInvalidToken
	}
	if err := validateOwner(tokendomain.Owner{
		CustomerID:  token.CustomerID,
		GatewayID:   token.GatewayID,
		Environment: token.Environment,
	}); err != nil {
		return err
	}

	if token.ID == 0 {
		token.ID = s.genID.Generate()
	}
	now := time.Now().UTC()
	token.CreatedAt = now
	token.UpdatedAt = now

	if err := s.tokens.Create(ctx, token); err != nil {
		return err
	}

	s.invalidateFor(token)
	return nil
}

func (s *Service) UpdateToken(ctx context.Context, token *tokendomain.PaymentToken) error {
	if token == nil || token.ID == 0 {
		return tokendomain.ErrInvalidToken
	}
	token.UpdatedAt = time.Now().UTC()
	if err := s.tokens.Save(ctx, token); err != nil {
		return err
	}
	s.invalidateFor(token)
	return nil
}

func (s *Service) RemoveToken(ctx context.Context, owner tokendomain.Owner, tokenID string) error {
	token, err := s.GetToken(ctx, owner, tokenID)
	if err != nil {
		return err
	}
	if err := s.tokens.Delete(ctx, token.ID.String()); err != nil {
		return err
	}
	s.cache.Invalidate(cacheKey(owner))
	return nil
}

// SetDefaultToken demotes any previously-default token for the owner so
// exactly one remains default. The default flag is the one piece of token
// state shared across concurrent checkouts for the same customer, so the
// transaction runs inside a per-owner critical section when a locker is
// configured.
func (s *Service) SetDefaultToken(ctx context.Context, owner tokendomain.Owner, tokenID string) error {
	token, err := s.GetToken(ctx, owner, tokenID)
	if err != nil {
		return err
	}

	if s.locker != nil {
		lockKey := fmt.Sprintf("payrail:token-default:%s:%s", owner.CustomerID, owner.GatewayID)
		lockToken, ok, err := s.locker.TryLock(ctx, lockKey, defaultLockT)
		if err != nil {
			return err
		}
		if !ok {
			return tokendomain.ErrInvalidToken
		}
		defer func() {
			if err := s.locker.Release(ctx, lockKey, lockToken); err != nil {
				s.log.Warn("failed to release token default lock", zap.Error(err))
			}
		}()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&tokendomain.PaymentToken{}).
			Where("customer_id = ? AND gateway_id = ? AND environment = ? AND is_default = ?",
				owner.CustomerID, owner.GatewayID, owner.Environment, true).
			Updates(map[string]any{"is_default": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&tokendomain.PaymentToken{}).
			Where("id = ?", token.ID).
			Updates(map[string]any{"is_default": true, "updated_at": now}).Error
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(cacheKey(owner))
	return nil
}

// BuildToken normalizes raw API data into the canonical token shape.
// Expiry accepts numeric month/year fields or a combined MM/YY or MMYY
// string under "expiry".
func (s *Service) BuildToken(tokenID string, data map[string]any) *tokendomain.PaymentToken {
	token := &tokendomain.PaymentToken{
		TokenID:        strings.TrimSpace(tokenID),
		InstrumentType: readString(data, "type", "card_type", "account_type"),
		Last4:          readString(data, "last_four", "last4"),
		Nickname:       readString(data, "nickname"),
		ExpMonth:       readInt(data, "exp_month"),
		ExpYear:        readInt(data, "exp_year"),
	}

	if token.ExpMonth == 0 && token.ExpYear == 0 {
		if expiry := readString(data, "expiry", "exp_date"); expiry != "" {
			token.ExpMonth, token.ExpYear = parseExpiry(expiry)
		}
	}
	if def, ok := data["default"].(bool); ok {
		token.IsDefault = def
	}
	return token
}

// CreateTokenFromResponse builds a token from the data embedded in an
// approved gateway reply, stamping the order's billing hash as the
// staleness marker. The caller fills in gateway ownership and persists
// through AddToken.
func (s *Service) CreateTokenFromResponse(ctx context.Context, order *orderdomain.Order, resp *gatewaydomain.TransactionResponse) (*tokendomain.PaymentToken, error) {
	if order == nil || resp == nil || resp.Token == nil {
		return nil, tokendomain.ErrInvalidToken
	}
	data := resp.Token

	token := &tokendomain.PaymentToken{
		CustomerID:     order.CustomerID,
		TokenID:        strings.TrimSpace(data.TokenID),
		InstrumentType: data.InstrumentType,
		Last4:          data.Last4,
		ExpMonth:       data.ExpMonth,
		ExpYear:        data.ExpYear,
		BillingHash:    order.BillingHash(),
	}
	if token.TokenID == "" {
		return nil, tokendomain.ErrInvalidToken
	}
	return token, nil
}

// RefreshBillingHash records a new billing hash locally after a remote
// token update, or as the hash-only refresh for gateways without remote
// editing.
func (s *Service) RefreshBillingHash(ctx context.Context, token *tokendomain.PaymentToken, billingHash string) error {
	if token == nil || token.ID == 0 {
		return tokendomain.ErrInvalidToken
	}
	billingHash = strings.TrimSpace(billingHash)
	if billingHash == "" || token.BillingHash == billingHash {
		return nil
	}
	token.BillingHash = billingHash
	return s.UpdateToken(ctx, token)
}

func (s *Service) InvalidateCache(owner tokendomain.Owner) {
	s.cache.Invalidate(cacheKey(owner))
}

func (s *Service) invalidateFor(token *tokendomain.PaymentToken) {
	s.cache.Invalidate(cacheKey(tokendomain.Owner{
		CustomerID:  token.CustomerID,
		GatewayID:   token.GatewayID,
		Environment: token.Environment,
	}))
}

func validateOwner(owner tokendomain.Owner) error {
	if owner.CustomerID == 0 || strings.TrimSpace(owner.GatewayID) == "" || strings.TrimSpace(owner.Environment) == "" {
		return tokendomain.ErrInvalidOwner
	}
	return nil
}

func cacheKey(owner tokendomain.Owner) string {
	return owner.CustomerID.String() + ":" + owner.GatewayID + ":" + owner.Environment
}

func readString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := data[key]; ok {
			if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func readInt(data map[string]any, key string) int {
	value, ok := data[key]
	if !ok {
		return 0
	}
	switch typed := value.(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	}
	return 0
}

// parseExpiry accepts MM/YY, MM/YYYY and MMYY forms.
func parseExpiry(raw string) (month, year int) {
	raw = strings.TrimSpace(raw)
	var monthPart, yearPart string
	if idx := strings.IndexAny(raw, "/-"); idx >= 0 {
		monthPart, yearPart = raw[:idx], raw[idx+1:]
	} else if len(raw) == 4 {
		monthPart, yearPart = raw[:2], raw[2:]
	} else {
		return 0, 0
	}

	m, err := strconv.Atoi(strings.TrimSpace(monthPart))
	if err != nil || m < 1 || m > 12 {
		return 0, 0
	}
	y, err := strconv.Atoi(strings.TrimSpace(yearPart))
	if err != nil {
		return 0, 0
	}
	if y < 100 {
		y += 2000
	}
	return m, y
}
