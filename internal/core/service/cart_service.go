package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

type CartService struct {
	store  port.Store
	orders *OrderService
	keys   cacheKeys
	logger *zap.Logger
}

func NewCartService(store port.Store, c *cache.Cache, orders *OrderService, logger *zap.Logger) *CartService {
	return &CartService{store: store, orders: orders, keys: newCacheKeys(c), logger: logger}
}

// GetCart returns the user's cart, creating an empty one on first use.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.CartDetails, error) {
	cart, err := s.openCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, cart)
}

// AddItem adds the quantity to the cart's line for the product, creating the
// line when there is none.
func (s *CartService) AddItem(ctx context.Context, userID string, line domain.LineItem) (*domain.CartDetails, error) {
	if line.ProductID == "" || line.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", domain.ErrInvalidArgument)
	}
	product, err := s.product(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.NotFound("product", line.ProductID)
	}

	cart, err := s.openCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	item := &domain.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: line.Quantity}
	if err := s.store.CartItems().Add(ctx, item); err != nil {
		return nil, err
	}
	if err := s.touch(ctx, cart); err != nil {
		return nil, err
	}

	s.logger.Info("cart item added",
		zap.String("userId", userID),
		zap.String("productId", product.ID),
		zap.Int("quantity", item.Quantity))
	return s.details(ctx, cart)
}

// UpdateItem sets the quantity of a line in the user's own cart.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*domain.CartDetails, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", domain.ErrInvalidArgument)
	}
	cart, item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	item.Quantity = quantity
	if err := s.store.CartItems().Save(ctx, item); err != nil {
		return nil, err
	}
	if err := s.touch(ctx, cart); err != nil {
		return nil, err
	}
	return s.details(ctx, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*domain.CartDetails, error) {
	cart, item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.store.CartItems().Delete(ctx, item.ID); err != nil {
		return nil, err
	}
	if err := s.touch(ctx, cart); err != nil {
		return nil, err
	}
	return s.details(ctx, cart)
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	cart, err := s.store.Carts().FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if cart == nil {
		return domain.NotFound("cart for user", userID)
	}
	if err := s.store.CartItems().DeleteByCartID(ctx, cart.ID); err != nil {
		return err
	}

	s.logger.Info("cart cleared", zap.String("userId", userID))
	return nil
}

// Checkout places an order for every line of the cart through the order
// pipeline. The lines are removed only after the order has committed; a
// rejected order leaves the cart as it was.
func (s *CartService) Checkout(ctx context.Context, userID, requestID string) (*domain.OrderDetails, error) {
	cart, err := s.store.Carts().FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, domain.NotFound("cart for user", userID)
	}
	items, err := s.store.CartItems().FindByCartID(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("cannot checkout an empty cart: %w", domain.ErrInvalidArgument)
	}

	lines := make([]domain.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	order, err := s.orders.CreateOrder(ctx, domain.CreateOrderRequest{
		RequestID: requestID,
		UserID:    userID,
		Items:     lines,
	})
	if err != nil {
		return nil, err
	}

	// only the lines that went into the order; lines added meanwhile stay
	for _, it := range items {
		if err := s.store.CartItems().Delete(ctx, it.ID); err != nil {
			s.logger.Warn("failed to remove checked out cart item",
				zap.String("cartId", cart.ID), zap.String("itemId", it.ID), zap.Error(err))
		}
	}

	s.logger.Info("cart checked out", zap.String("userId", userID), zap.String("orderId", order.ID))
	return order, nil
}

// openCart returns the user's cart, creating it when missing. A concurrent
// creation for the same user is resolved by reading the winner's cart.
func (s *CartService) openCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.store.Carts().FindByUserID(ctx, userID)
	if err != nil || cart != nil {
		return cart, err
	}

	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NotFound("user", userID)
	}

	cart = &domain.Cart{UserID: userID}
	err = s.store.Carts().Save(ctx, cart)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return s.store.Carts().FindByUserID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ownedItem loads a line and checks that it belongs to the user's cart. A
// line in someone else's cart is reported as not found.
func (s *CartService) ownedItem(ctx context.Context, userID, itemID string) (*domain.Cart, *domain.CartItem, error) {
	item, err := s.store.CartItems().FindByID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	cart, err := s.store.Carts().FindByUserID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if item == nil || cart == nil || item.CartID != cart.ID {
		return nil, nil, domain.NotFound("cart item", itemID)
	}
	return cart, item, nil
}

func (s *CartService) touch(ctx context.Context, cart *domain.Cart) error {
	return s.store.Carts().Save(ctx, cart)
}

func (s *CartService) product(ctx context.Context, id string) (*domain.Product, error) {
	return s.keys.products.Get(id, func() (*domain.Product, error) {
		return s.store.Products().FindByID(ctx, id)
	})
}

// details prices every line at the product's current price. Lines whose
// product no longer exists are left out.
func (s *CartService) details(ctx context.Context, cart *domain.Cart) (*domain.CartDetails, error) {
	items, err := s.store.CartItems().FindByCartID(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	out := &domain.CartDetails{
		ID:          cart.ID,
		UserID:      cart.UserID,
		Items:       make([]domain.CartItemDetails, 0, len(items)),
		TotalAmount: decimal.Zero,
		CreatedAt:   cart.CreatedAt,
		UpdatedAt:   cart.UpdatedAt,
	}
	for _, it := range items {
		product, err := s.product(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			continue
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		out.Items = append(out.Items, domain.CartItemDetails{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			Quantity:     it.Quantity,
			TotalPrice:   lineTotal,
			CreatedAt:    it.CreatedAt,
			UpdatedAt:    it.UpdatedAt,
		})
		out.TotalAmount = out.TotalAmount.Add(lineTotal)
		out.TotalItems += it.Quantity
	}
	return out, nil
}
