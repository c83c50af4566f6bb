package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/adapter/storage"
	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()

	store := storage.NewMemoryStore()
	user := &domain.User{FirstName: "Stress", LastName: "Test", Email: "stress@example.com"}
	if err := store.Users().Save(ctx, user); err != nil {
		log.Fatalf("failed to seed user: %v", err)
	}
	category := &domain.Category{Name: "Flash sale"}
	if err := store.Categories().Save(ctx, category); err != nil {
		log.Fatalf("failed to seed category: %v", err)
	}
	product := &domain.Product{
		Name:       "flash-sale-item",
		CategoryID: category.ID,
		Price:      decimal.RequireFromString("9.99"),
		Available:  true,
	}
	if err := store.Products().Save(ctx, product); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}
	if err := store.Inventory().Save(ctx, &domain.Inventory{ProductID: product.ID, Quantity: initialStock}); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	c := cache.New()
	orderService := service.NewOrderService(store, c, nil, zap.NewNop(), queueSize)
	defer orderService.Close()
	catalog := service.NewCatalogService(store, c, zap.NewNop())

	// Drain the event queue in background
	go func() {
		for range orderService.GetEventQueue() {
		}
	}()

	var successCount, outOfStockCount, otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// readers race the writers through the cache
			_, _ = catalog.GetProduct(ctx, product.ID)

			_, err := orderService.CreateOrder(ctx, domain.CreateOrderRequest{
				UserID: user.ID,
				Items:  []domain.LineItem{{ProductID: product.ID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrOutOfStock):
				outOfStockCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := outOfStockCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", fail)
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	inv, err := store.Inventory().FindByProductID(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", inv.Quantity)
	if inv.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", inv.Quantity)
	}

	// a read after the run must observe the committed stock, not a cached one
	details, err := catalog.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}
	if details.Quantity == inv.Quantity {
		fmt.Println("PASS: Cached stock matches store")
	} else {
		fmt.Printf("FAIL: Cached stock %d, store %d\n", details.Quantity, inv.Quantity)
	}
}
