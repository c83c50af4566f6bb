package port

import (
	"context"

	"github.com/rl1809/smart-shop/internal/core/domain"
)

// Find methods return (nil, nil) when the row does not exist.

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Product], error)
	// ExistsByName compares names case-insensitively.
	ExistsByName(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id string) error
}

type CategoryRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Category, error)
	Save(ctx context.Context, category *domain.Category) error
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
}

type InventoryRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Inventory, error)
	FindByProductID(ctx context.Context, productID string) (*domain.Inventory, error)
	Save(ctx context.Context, inventory *domain.Inventory) error
	SaveAll(ctx context.Context, inventories []*domain.Inventory) error
	Delete(ctx context.Context, id string) error

	// DecrementIfSufficient atomically subtracts quantity from the product's
	// stock, returns false if the row is missing or holds less than quantity.
	DecrementIfSufficient(ctx context.Context, productID string, quantity int) (bool, error)
}

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Order], error)
	FindByUserID(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Order], error)
	Save(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id string) error
}

type OrderItemRepository interface {
	FindByOrderID(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	SaveAll(ctx context.Context, items []domain.OrderItem) error
	DeleteByOrderID(ctx context.Context, orderID string) error
}

type CartRepository interface {
	FindByUserID(ctx context.Context, userID string) (*domain.Cart, error)
	// Save fails with domain.ErrAlreadyExists when the user already has
	// another cart.
	Save(ctx context.Context, cart *domain.Cart) error
}

type CartItemRepository interface {
	FindByID(ctx context.Context, id string) (*domain.CartItem, error)
	FindByCartID(ctx context.Context, cartID string) ([]domain.CartItem, error)

	// Add inserts the line, or adds its quantity to the cart's existing line
	// for the same product, in one step. item is updated to the stored row.
	Add(ctx context.Context, item *domain.CartItem) error

	Save(ctx context.Context, item *domain.CartItem) error
	Delete(ctx context.Context, id string) error
	DeleteByCartID(ctx context.Context, cartID string) error
}

// Tx exposes the repositories that take part in a transaction.
type Tx interface {
	Inventory() InventoryRepository
	Orders() OrderRepository
	OrderItems() OrderItemRepository
}

type UnitOfWork interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the full entity store.
type Store interface {
	UnitOfWork
	Products() ProductRepository
	Categories() CategoryRepository
	Users() UserRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Carts() CartRepository
	CartItems() CartItemRepository
}
