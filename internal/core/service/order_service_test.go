package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/smart-shop/internal/adapter/storage"
	"github.com/rl1809/smart-shop/internal/core/domain"
)

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Keyboard", "20.0", true, 10)

	details, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 3)),
	})
	require.NoError(t, err)

	assert.Equal(t, "60.00", details.TotalAmount.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, details.Status)
	assert.Equal(t, "Ada Lovelace", details.UserName)
	require.Len(t, details.Items, 1)
	assert.Equal(t, "Keyboard", details.Items[0].ProductName)
	assert.Equal(t, 3, details.Items[0].Quantity)
	assert.Equal(t, "60.00", details.Items[0].TotalPrice.StringFixed(2))
	assert.Equal(t, 7, f.stockOf(t, a.ID))
}

func TestCreateOrder_AtomicWhenLaterLineHasNoInventory(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Mouse", "5.0", true, 5)
	b := f.addProduct(t, "Monitor", "150.0", true, -1)

	_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 3), line(b.ID, 1)),
	})
	require.ErrorIs(t, err, domain.ErrOutOfStock)

	var lineErr *domain.LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 1, lineErr.Line)
	assert.Equal(t, b.ID, lineErr.ProductID)

	assert.Equal(t, 5, f.stockOf(t, a.ID))
	assert.Equal(t, 0, f.orderCount(t))
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Mouse", "5.0", true, 2)

	_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 3)),
	})
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 2, f.stockOf(t, a.ID))
}

func TestCreateOrder_UnavailableProduct(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Discontinued", "9.99", false, 100)

	_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 1)),
	})
	assert.ErrorIs(t, err, domain.ErrProductUnavailable)
	assert.Equal(t, 100, f.stockOf(t, a.ID))
}

func TestCreateOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Mouse", "5.0", true, 5)

	_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: "no-such-user",
		Items:  lines(line(a.ID, 1)),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 1), line("no-such-product", 1)),
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	var lineErr *domain.LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, "no-such-product", lineErr.ProductID)
	assert.Equal(t, 5, f.stockOf(t, a.ID))
}

func TestCreateOrder_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Mouse", "5.0", true, 5)

	tests := []struct {
		name string
		req  domain.CreateOrderRequest
	}{
		{"no user", domain.CreateOrderRequest{Items: lines(line(a.ID, 1))}},
		{"no items", domain.CreateOrderRequest{UserID: f.user.ID}},
		{"zero quantity", domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 0))}},
		{"negative quantity", domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, -2))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
	assert.Equal(t, 5, f.stockOf(t, a.ID))
}

func TestCreateOrder_SameProductTwiceAccumulates(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Cable", "2.50", true, 5)

	_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 3), line(a.ID, 3)),
	})
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 5, f.stockOf(t, a.ID))

	details, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 2), line(a.ID, 3)),
	})
	require.NoError(t, err)
	assert.Len(t, details.Items, 2)
	assert.Equal(t, "12.50", details.TotalAmount.StringFixed(2))
	assert.Equal(t, 0, f.stockOf(t, a.ID))
}

func TestCreateOrder_ConcurrentSameProductNeverOversells(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Console", "499.00", true, 10)

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
				UserID: f.user.ID,
				Items:  lines(line(a.ID, 6)),
			})
		}()
	}
	wg.Wait()

	var ok, outOfStock int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, 4, f.stockOf(t, a.ID))
}

func TestCreateOrder_ManyConcurrentBuyers(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Ticket", "1.00", true, 20)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
				UserID: f.user.ID,
				Items:  lines(line(a.ID, 1)),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	assert.Equal(t, 0, f.stockOf(t, a.ID))
	assert.Equal(t, 20, f.orderCount(t))
}

func TestCreateOrder_InvalidatesProductCache(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Headset", "80.00", true, 10)
	ctx := context.Background()

	before, err := f.catalog.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, before.Quantity)

	inv, err := f.inventory.GetByProductID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, inv.Quantity)

	_, err = f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 4))})
	require.NoError(t, err)

	after, err := f.catalog.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, after.Quantity)

	inv, err = f.inventory.GetByProductID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, inv.Quantity)
}

func TestCreateOrder_DuplicateRequestRejected(t *testing.T) {
	idem := newMockIdempotencyStore()
	f := newFixtureWith(t, storage.NewMemoryStore(), nil, idem)
	a := f.addProduct(t, "Lamp", "15.00", true, 10)
	req := domain.CreateOrderRequest{RequestID: "req-1", UserID: f.user.ID, Items: lines(line(a.ID, 1))}

	_, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 9, f.stockOf(t, a.ID))
	assert.Empty(t, idem.released)
}

func TestCreateOrder_FailureReleasesRequestID(t *testing.T) {
	idem := newMockIdempotencyStore()
	f := newFixtureWith(t, storage.NewMemoryStore(), nil, idem)
	a := f.addProduct(t, "Lamp", "15.00", true, 1)

	req := domain.CreateOrderRequest{RequestID: "req-2", UserID: f.user.ID, Items: lines(line(a.ID, 2))}
	_, err := f.orders.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, []string{checkoutKeyPrefix + "req-2"}, idem.released)

	req.Items = lines(line(a.ID, 1))
	_, err = f.orders.CreateOrder(context.Background(), req)
	assert.NoError(t, err)
}

func TestCreateOrder_CommittedOrderKeepsRequestID(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &readAfterCommitStore{MemoryStore: mem}
	idem := newMockIdempotencyStore()
	f := newFixtureWith(t, mem, store, idem)
	a := f.addProduct(t, "Kettle", "20.00", true, 10)
	ctx := context.Background()
	req := domain.CreateOrderRequest{RequestID: "r1", UserID: f.user.ID, Items: lines(line(a.ID, 3))}

	details, err := f.orders.CreateOrder(ctx, req)
	require.NoError(t, err)
	require.Len(t, details.Items, 1)
	assert.Equal(t, "Kettle", details.Items[0].ProductName)
	assert.Equal(t, "Ada Lovelace", details.UserName)
	assert.Empty(t, idem.released)

	_, err = f.orders.CreateOrder(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 7, f.stockOf(t, a.ID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestCreateOrder_PersistenceFailureRollsBack(t *testing.T) {
	mem := storage.NewMemoryStore()
	f := newFixtureWith(t, mem, failingStore{MemoryStore: mem}, nil)
	a := f.addProduct(t, "Speaker", "35.00", true, 8)

	_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: f.user.ID,
		Items:  lines(line(a.ID, 2)),
	})
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, 8, f.stockOf(t, a.ID))
	assert.Equal(t, 0, f.orderCount(t))
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Desk", "120.00", true, 3)
	ctx := context.Background()

	created, err := f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 1))})
	require.NoError(t, err)

	got, err := f.orders.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.TotalAmount.StringFixed(2), got.TotalAmount.StringFixed(2))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Desk", got.Items[0].ProductName)

	_, err = f.orders.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Pen", "1.00", true, 100)
	ctx := context.Background()

	for range 3 {
		_, err := f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 1))})
		require.NoError(t, err)
	}

	page, err := f.orders.ListOrders(ctx, domain.PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	page, err = f.orders.ListOrdersByUser(ctx, f.user.ID, domain.PageRequest{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	_, err = f.orders.ListOrdersByUser(ctx, "nobody", domain.PageRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOrders_RereadsOrderBeforeCaching(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &hookStore{MemoryStore: mem}
	f := newFixtureWith(t, mem, store, nil)
	a := f.addProduct(t, "Mug", "8.00", true, 5)
	ctx := context.Background()

	created, err := f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 1))})
	require.NoError(t, err)

	// the status changes after the page is read but before the cache is filled
	store.afterList = func() {
		o, err := mem.Orders().FindByID(ctx, created.ID)
		require.NoError(t, err)
		o.Status = domain.OrderStatusShipped
		require.NoError(t, mem.Orders().Save(ctx, o))
		f.cache.Invalidate(orderKeyPrefix + created.ID)
	}

	page, err := f.orders.ListOrders(ctx, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.OrderStatusShipped, page.Items[0].Status)

	got, err := f.orders.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status)
}

func TestGetOrder_ReflectsRenamedProduct(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Lamp", "30.00", true, 5)
	ctx := context.Background()

	created, err := f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 1))})
	require.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, created.ID)
	require.NoError(t, err)

	name := "Desk Lamp"
	_, err = f.catalog.UpdateProduct(ctx, a.ID, domain.ProductUpdate{Name: &name})
	require.NoError(t, err)

	got, err := f.orders.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Desk Lamp", got.Items[0].ProductName)
}

func TestUpdateOrderStatus_InvalidatesCachedOrder(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Chair", "60.00", true, 3)
	ctx := context.Background()

	created, err := f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 1))})
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, created.ID)
	require.NoError(t, err)

	updated, err := f.orders.UpdateOrderStatus(ctx, created.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)

	got, err := f.orders.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status)

	_, err = f.orders.UpdateOrderStatus(ctx, created.ID, "LOST")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = f.orders.UpdateOrderStatus(ctx, "missing", domain.OrderStatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteOrder_RemovesItems(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Shelf", "45.00", true, 3)
	ctx := context.Background()

	created, err := f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 2))})
	require.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.orders.DeleteOrder(ctx, created.ID))

	_, err = f.orders.GetOrder(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	items, err := f.store.OrderItems().FindByOrderID(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, f.orders.DeleteOrder(ctx, created.ID), domain.ErrNotFound)
}

func TestOrderEvents_Queued(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Bag", "30.00", true, 5)
	ctx := context.Background()

	created, err := f.orders.CreateOrder(ctx, domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 1))})
	require.NoError(t, err)
	_, err = f.orders.UpdateOrderStatus(ctx, created.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)

	want := []string{domain.EventOrderCreated, domain.EventOrderStatusChanged}
	for _, typ := range want {
		select {
		case evt := <-f.orders.GetEventQueue():
			assert.Equal(t, typ, evt.Type)
			assert.Equal(t, created.ID, evt.OrderID)
			assert.Equal(t, f.user.ID, evt.UserID)
			assert.NotEmpty(t, evt.EventID)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", typ)
		}
	}
}

func TestOrderEvents_DroppedAfterClose(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(t, "Bag", "30.00", true, 5)

	f.orders.Close()
	_, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderRequest{UserID: f.user.ID, Items: lines(line(a.ID, 1))})
	require.NoError(t, err)

	_, open := <-f.orders.GetEventQueue()
	assert.False(t, open)
}
