package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/adapter/handler"
	"github.com/rl1809/smart-shop/internal/adapter/messaging"
	"github.com/rl1809/smart-shop/internal/adapter/storage"
	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/core/service"
)

func TestSeededServer_CheckoutFlow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, seedDemoData(ctx, store))

	c := cache.New()
	orders := service.NewOrderService(store, c, nil, zap.NewNop(), 10)
	catalog := service.NewCatalogService(store, c, zap.NewNop())
	inventory := service.NewInventoryService(store, c, zap.NewNop())
	carts := service.NewCartService(store, c, orders, zap.NewNop())
	wait := service.StartEventWorkers(orders.GetEventQueue(), messaging.NewLogPublisher(zap.NewNop()), 1, zap.NewNop())
	srv := httptest.NewServer(handler.NewHTTPHandler(orders, catalog, inventory, carts, c, zap.NewNop()).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/products?size=10")
	require.NoError(t, err)
	var page domain.Page[domain.ProductDetails]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	resp.Body.Close()
	require.Equal(t, len(demoProducts), page.Total)

	var monitor domain.ProductDetails
	for _, p := range page.Items {
		if p.Name == "27in Monitor" {
			monitor = p
		}
	}
	require.NotEmpty(t, monitor.ID)
	assert.Equal(t, 10, monitor.Quantity)

	body, _ := json.Marshal(handler.CreateOrderHTTPRequest{
		UserID: "demo-user",
		Items:  []domain.LineItem{{ProductID: monitor.ID, Quantity: 2}},
	})
	resp, err = http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var order domain.OrderDetails
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "458.00", order.TotalAmount.StringFixed(2))

	resp, err = http.Get(srv.URL + "/api/products/" + monitor.ID)
	require.NoError(t, err)
	var after domain.ProductDetails
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&after))
	resp.Body.Close()
	assert.Equal(t, 8, after.Quantity)

	orders.Close()
	wait()
}
