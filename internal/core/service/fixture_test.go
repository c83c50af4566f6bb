package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/adapter/storage"
	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

type fixture struct {
	store     *storage.MemoryStore
	cache     *cache.Cache
	orders    *OrderService
	catalog   *CatalogService
	inventory *InventoryService
	carts     *CartService
	category  *domain.Category
	user      *domain.User
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, storage.NewMemoryStore(), nil, nil)
}

// newFixtureWith seeds mem and runs the services against store, which
// defaults to mem.
func newFixtureWith(t *testing.T, mem *storage.MemoryStore, store port.Store, idem port.IdempotencyStore) *fixture {
	t.Helper()
	if store == nil {
		store = mem
	}
	ctx := context.Background()

	f := &fixture{store: mem, cache: cache.New()}
	f.orders = NewOrderService(store, f.cache, idem, zap.NewNop(), 100)
	f.catalog = NewCatalogService(store, f.cache, zap.NewNop())
	f.inventory = NewInventoryService(store, f.cache, zap.NewNop())
	f.carts = NewCartService(store, f.cache, f.orders, zap.NewNop())
	t.Cleanup(f.orders.Close)

	f.category = &domain.Category{Name: "Electronics", Description: "gadgets"}
	require.NoError(t, mem.Categories().Save(ctx, f.category))
	f.user = &domain.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	require.NoError(t, mem.Users().Save(ctx, f.user))
	return f
}

// addProduct stores a product and, when stock is not negative, its inventory row.
func (f *fixture) addProduct(t *testing.T, name, price string, available bool, stock int) *domain.Product {
	t.Helper()
	ctx := context.Background()
	p := &domain.Product{
		Name:       name,
		CategoryID: f.category.ID,
		SKU:        "SKU-" + name,
		Price:      decimal.RequireFromString(price),
		Available:  available,
	}
	require.NoError(t, f.store.Products().Save(ctx, p))
	if stock >= 0 {
		require.NoError(t, f.store.Inventory().Save(ctx, &domain.Inventory{ProductID: p.ID, Quantity: stock}))
	}
	return p
}

func (f *fixture) addUser(t *testing.T, first, last string) *domain.User {
	t.Helper()
	u := &domain.User{FirstName: first, LastName: last, Email: first + "@example.com"}
	require.NoError(t, f.store.Users().Save(context.Background(), u))
	return u
}

func (f *fixture) stockOf(t *testing.T, productID string) int {
	t.Helper()
	inv, err := f.store.Inventory().FindByProductID(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv.Quantity
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	page, err := f.store.Orders().FindAll(context.Background(), domain.PageRequest{})
	require.NoError(t, err)
	return page.Total
}

func lines(items ...domain.LineItem) []domain.LineItem { return items }

func line(productID string, qty int) domain.LineItem {
	return domain.LineItem{ProductID: productID, Quantity: qty}
}

type mockIdempotencyStore struct {
	mu       sync.Mutex
	keys     map[string]bool
	released []string
}

func newMockIdempotencyStore() *mockIdempotencyStore {
	return &mockIdempotencyStore{keys: make(map[string]bool)}
}

func (m *mockIdempotencyStore) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

var errDiskFull = errors.New("disk full")

// failingStore fails the order item insert of every transaction.
type failingStore struct {
	*storage.MemoryStore
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return s.MemoryStore.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return fn(ctx, failingTx{Tx: tx})
	})
}

type failingTx struct {
	port.Tx
}

func (t failingTx) OrderItems() port.OrderItemRepository {
	return failingItems{OrderItemRepository: t.Tx.OrderItems()}
}

type failingItems struct {
	port.OrderItemRepository
}

func (failingItems) SaveAll(context.Context, []domain.OrderItem) error {
	return errDiskFull
}

var errReadTimeout = errors.New("read replica timeout")

// readAfterCommitStore fails every product read once a transaction has
// committed.
type readAfterCommitStore struct {
	*storage.MemoryStore
	committed atomic.Bool
}

func (s *readAfterCommitStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	err := s.MemoryStore.WithinTx(ctx, fn)
	if err == nil {
		s.committed.Store(true)
	}
	return err
}

func (s *readAfterCommitStore) Products() port.ProductRepository {
	return flakyProducts{ProductRepository: s.MemoryStore.Products(), fail: &s.committed}
}

type flakyProducts struct {
	port.ProductRepository
	fail *atomic.Bool
}

func (r flakyProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if r.fail.Load() {
		return nil, errReadTimeout
	}
	return r.ProductRepository.FindByID(ctx, id)
}

// hookStore runs afterList once, right after the next order page is read.
type hookStore struct {
	*storage.MemoryStore
	afterList func()
}

func (s *hookStore) Orders() port.OrderRepository {
	return hookOrders{OrderRepository: s.MemoryStore.Orders(), s: s}
}

type hookOrders struct {
	port.OrderRepository
	s *hookStore
}

func (r hookOrders) FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Order], error) {
	p, err := r.OrderRepository.FindAll(ctx, page)
	if hook := r.s.afterList; hook != nil {
		r.s.afterList = nil
		hook()
	}
	return p, err
}
