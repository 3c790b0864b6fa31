package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	"github.com/smallbiznis/payrail/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	orders   repository.Repository[orderdomain.Order]
	items    repository.Repository[orderdomain.OrderItem]
	notes    repository.Repository[orderdomain.OrderNote]
	products repository.Repository[orderdomain.Product]
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,

		orders:   repository.ProvideStore[orderdomain.Order](p.DB),
		items:    repository.ProvideStore[orderdomain.OrderItem](p.DB),
		notes:    repository.ProvideStore[orderdomain.OrderNote](p.DB),
		products: repository.ProvideStore[orderdomain.Product](p.DB),
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	if id == 0 {
		return nil, orderdomain.ErrOrderNotFound
	}
	order, err := s.orders.FindOne(ctx, &orderdomain.Order{ID: id})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	items, err := s.items.Find(ctx, &orderdomain.OrderItem{OrderID: id})
	if err != nil {
		return nil, err
	}
	order.Items = make([]orderdomain.OrderItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		order.Items = append(order.Items, *item)
	}
	return order, nil
}

func (s *Service) Create(ctx context.Context, order *orderdomain.Order, items []orderdomain.OrderItem) error {
	if order == nil || order.TotalAmount < 0 || strings.TrimSpace(order.Currency) == "" {
		return orderdomain.ErrInvalidOrder
	}
	if order.ID == 0 {
		order.ID = s.genID.Generate()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = order.ID.String()
	}
	if order.Status == "" {
		order.Status = orderdomain.OrderStatusPending
	}
	if order.Meta == nil {
		order.Meta = datatypes.JSONMap{}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orders.WithTrx(tx).Create(ctx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].ID = s.genID.Generate()
			items[i].OrderID = order.ID
			if err := s.items.WithTrx(tx).Create(ctx, &items[i]); err != nil {
				return err
			}
		}
		order.Items = items
		return nil
	})
}

func (s *Service) FindPendingByCartHash(ctx context.Context, customerID snowflake.ID, hash string) (*orderdomain.Order, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, nil
	}
	order, err := s.orders.FindOne(ctx, &orderdomain.Order{
		CustomerID: customerID,
		CartHash:   hash,
		Status:     orderdomain.OrderStatusPending,
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) ReplaceItems(ctx context.Context, orderID snowflake.ID, items []orderdomain.OrderItem) error {
	if orderID == 0 {
		return orderdomain.ErrOrderNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&orderdomain.OrderItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = s.genID.Generate()
			items[i].OrderID = orderID
			if err := s.items.WithTrx(tx).Create(ctx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) MarkPaid(ctx context.Context, order *orderdomain.Order) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	now := time.Now().UTC()
	order.Status = orderdomain.OrderStatusProcessing
	order.PaidAt = &now
	return s.updateStatus(ctx, order, map[string]any{
		"status":     order.Status,
		"paid_at":    now,
		"updated_at": now,
	})
}

func (s *Service) MarkFailed(ctx context.Context, order *orderdomain.Order, reason string) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	order.Status = orderdomain.OrderStatusFailed
	if err := s.updateStatus(ctx, order, map[string]any{
		"status":     order.Status,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return err
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		return s.AddNote(ctx, order.ID, reason)
	}
	return nil
}

func (s *Service) Hold(ctx context.Context, order *orderdomain.Order, reason string) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	order.Status = orderdomain.OrderStatusOnHold
	if err := s.updateStatus(ctx, order, map[string]any{
		"status":     order.Status,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return err
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		return s.AddNote(ctx, order.ID, reason)
	}
	return nil
}

func (s *Service) Cancel(ctx context.Context, order *orderdomain.Order, note string) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	order.Status = orderdomain.OrderStatusCancelled
	if err := s.updateStatus(ctx, order, map[string]any{
		"status":     order.Status,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return err
	}
	if note = strings.TrimSpace(note); note != "" {
		return s.AddNote(ctx, order.ID, note)
	}
	return nil
}

func (s *Service) MarkRefunded(ctx context.Context, order *orderdomain.Order, note string) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	order.Status = orderdomain.OrderStatusRefunded
	if err := s.updateStatus(ctx, order, map[string]any{
		"status":     order.Status,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return err
	}
	if note = strings.TrimSpace(note); note != "" {
		return s.AddNote(ctx, order.ID, note)
	}
	return nil
}

func (s *Service) AddNote(ctx context.Context, orderID snowflake.ID, note string) error {
	note = strings.TrimSpace(note)
	if orderID == 0 || note == "" {
		return nil
	}
	return s.notes.Create(ctx, &orderdomain.OrderNote{
		ID:        s.genID.Generate(),
		OrderID:   orderID,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) ListNotes(ctx context.Context, orderID snowflake.ID) ([]orderdomain.OrderNote, error) {
	rows, err := s.notes.Find(ctx, &orderdomain.OrderNote{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	notes := make([]orderdomain.OrderNote, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		notes = append(notes, *row)
	}
	return notes, nil
}

// SetMeta merges values into the order's meta bag under row lock so two
// processor paths never lose each other's writes.
func (s *Service) SetMeta(ctx context.Context, order *orderdomain.Order, values map[string]any) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	if len(values) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current orderdomain.Order
		if err := lockForUpdate(tx).Where("id = ?", order.ID).First(&current).Error; err != nil {
			return err
		}
		if current.Meta == nil {
			current.Meta = datatypes.JSONMap{}
		}
		for key, value := range values {
			if key == "" {
				continue
			}
			current.Meta[key] = value
		}
		if err := tx.Model(&orderdomain.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{"meta": current.Meta, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		order.Meta = current.Meta
		return nil
	})
}

func (s *Service) IncrementRetryCount(ctx context.Context, order *orderdomain.Order) (int, error) {
	if order == nil {
		return 0, orderdomain.ErrOrderNotFound
	}
	var next int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current orderdomain.Order
		if err := lockForUpdate(tx).Where("id = ?", order.ID).First(&current).Error; err != nil {
			return err
		}
		next = current.RetryCount + 1
		return tx.Model(&orderdomain.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{"retry_count": next, "updated_at": time.Now().UTC()}).Error
	})
	if err != nil {
		return 0, err
	}
	order.RetryCount = next
	return next, nil
}

// ReduceStock decrements product stock for the order's items, at most once
// per order.
func (s *Service) ReduceStock(ctx context.Context, order *orderdomain.Order) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current orderdomain.Order
		if err := lockForUpdate(tx).Where("id = ?", order.ID).First(&current).Error; err != nil {
			return err
		}
		if current.StockReduced {
			return nil
		}
		items, err := s.items.WithTrx(tx).Find(ctx, &orderdomain.OrderItem{OrderID: order.ID})
		if err != nil {
			return err
		}
		for _, item := range items {
			if item == nil || item.ProductID == 0 {
				continue
			}
			if err := tx.Model(&orderdomain.Product{}).
				Where("id = ?", item.ProductID).
				Updates(map[string]any{
					"stock":      gorm.Expr("stock - ?", item.Quantity),
					"updated_at": time.Now().UTC(),
				}).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&orderdomain.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{"stock_reduced": true, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		order.StockReduced = true
		return nil
	})
}

func (s *Service) GetProduct(ctx context.Context, id snowflake.ID) (*orderdomain.Product, error) {
	if id == 0 {
		return nil, orderdomain.ErrProductNotFound
	}
	product, err := s.products.FindOne(ctx, &orderdomain.Product{ID: id})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, orderdomain.ErrProductNotFound
	}
	return product, nil
}

func (s *Service) updateStatus(ctx context.Context, order *orderdomain.Order, values map[string]any) error {
	return s.db.WithContext(ctx).Model(&orderdomain.Order{}).
		Where("id = ?", order.ID).
		Updates(values).Error
}
