package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/adapter/storage"
	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/core/service"
)

type testEnv struct {
	store     *storage.MemoryStore
	cache     *cache.Cache
	orders    *service.OrderService
	catalog   *service.CatalogService
	inventory *service.InventoryService
	carts     *service.CartService
	http      http.Handler
	user      *domain.User
	product   *domain.Product
	hidden    *domain.Product
}

// newTestEnv seeds one user, an available product priced 20.00 with 10 in
// stock, and an unavailable product.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	e := &testEnv{store: storage.NewMemoryStore(), cache: cache.New()}
	e.orders = service.NewOrderService(e.store, e.cache, nil, zap.NewNop(), 100)
	e.catalog = service.NewCatalogService(e.store, e.cache, zap.NewNop())
	e.inventory = service.NewInventoryService(e.store, e.cache, zap.NewNop())
	e.carts = service.NewCartService(e.store, e.cache, e.orders, zap.NewNop())
	e.http = NewHTTPHandler(e.orders, e.catalog, e.inventory, e.carts, e.cache, zap.NewNop()).Routes()
	t.Cleanup(e.orders.Close)

	category, err := e.catalog.AddCategory(ctx, "Books", "")
	require.NoError(t, err)

	e.user = &domain.User{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"}
	require.NoError(t, e.store.Users().Save(ctx, e.user))

	e.product, err = e.catalog.AddProduct(ctx, domain.NewProduct{
		Name: "Compilers", CategoryID: category.ID, Price: decimal.RequireFromString("20.00"), Available: true,
	})
	require.NoError(t, err)
	_, err = e.inventory.AddInventory(ctx, e.product.ID, 10, "A1")
	require.NoError(t, err)

	e.hidden, err = e.catalog.AddProduct(ctx, domain.NewProduct{
		Name: "Out of print", CategoryID: category.ID, Price: decimal.RequireFromString("5.00"), Available: false,
	})
	require.NoError(t, err)
	_, err = e.inventory.AddInventory(ctx, e.hidden.ID, 10, "A2")
	require.NoError(t, err)
	return e
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.http.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
