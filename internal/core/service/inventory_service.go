package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

const adjustRetries = 3

type InventoryService struct {
	store  port.Store
	keys   cacheKeys
	logger *zap.Logger
}

func NewInventoryService(store port.Store, c *cache.Cache, logger *zap.Logger) *InventoryService {
	return &InventoryService{store: store, keys: newCacheKeys(c), logger: logger}
}

// AddInventory creates the stock row of a product. A product has at most one.
func (s *InventoryService) AddInventory(ctx context.Context, productID string, quantity int, location string) (*domain.Inventory, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative: %w", domain.ErrInvalidArgument)
	}
	product, err := s.store.Products().FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.NotFound("product", productID)
	}
	existing, err := s.store.Inventory().FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("inventory for product %s: %w", productID, domain.ErrAlreadyExists)
	}

	inv := &domain.Inventory{ProductID: productID, Quantity: quantity, Location: location}
	if err := s.store.Inventory().Save(ctx, inv); err != nil {
		return nil, err
	}
	s.keys.invalidateProduct(productID)

	s.logger.Info("inventory added", zap.String("productId", productID), zap.Int("quantity", quantity))
	return inv, nil
}

func (s *InventoryService) GetByProductID(ctx context.Context, productID string) (*domain.Inventory, error) {
	inv, err := s.keys.inventories.Get(productID, func() (*domain.Inventory, error) {
		return s.store.Inventory().FindByProductID(ctx, productID)
	})
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.NotFound("inventory for product", productID)
	}
	out := *inv
	return &out, nil
}

func (s *InventoryService) GetByID(ctx context.Context, id string) (*domain.Inventory, error) {
	inv, err := s.store.Inventory().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.NotFound("inventory", id)
	}
	return inv, nil
}

func (s *InventoryService) UpdateInventory(ctx context.Context, id string, upd domain.InventoryUpdate) (*domain.Inventory, error) {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Quantity != nil {
		if *upd.Quantity < 0 {
			return nil, fmt.Errorf("quantity must not be negative: %w", domain.ErrInvalidArgument)
		}
		inv.Quantity = *upd.Quantity
	}
	if upd.Location != nil {
		inv.Location = *upd.Location
	}

	err = s.store.Inventory().Save(ctx, inv)
	s.keys.invalidateProduct(inv.ProductID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// AdjustQuantity adds delta to the stock level, retrying when a concurrent
// writer bumped the row version. The result is never negative.
func (s *InventoryService) AdjustQuantity(ctx context.Context, id string, delta int) (*domain.Inventory, error) {
	var lastErr error
	for attempt := 0; attempt < adjustRetries; attempt++ {
		inv, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv.Quantity+delta < 0 {
			return nil, fmt.Errorf("available %d, required %d: %w", inv.Quantity, -delta, domain.ErrOutOfStock)
		}
		inv.Quantity += delta

		err = s.store.Inventory().Save(ctx, inv)
		s.keys.invalidateProduct(inv.ProductID)
		if err == nil {
			s.logger.Info("inventory adjusted",
				zap.String("inventoryId", id), zap.Int("delta", delta), zap.Int("quantity", inv.Quantity))
			return inv, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug("inventory adjust retry", zap.String("inventoryId", id), zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

func (s *InventoryService) DeleteInventory(ctx context.Context, id string) error {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Inventory().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete inventory %s: %w", id, err)
	}
	s.keys.invalidateProduct(inv.ProductID)

	s.logger.Info("inventory deleted", zap.String("inventoryId", id), zap.String("productId", inv.ProductID))
	return nil
}
