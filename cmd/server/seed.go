package main

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

type demoProduct struct {
	name      string
	sku       string
	price     string
	available bool
	stock     int
}

var demoProducts = []demoProduct{
	{"Mechanical Keyboard", "KB-001", "89.90", true, 50},
	{"Wireless Mouse", "MS-002", "24.50", true, 120},
	{"27in Monitor", "MN-003", "229.00", true, 10},
	{"USB-C Hub", "HB-004", "39.99", false, 30},
}

// seedDemoData fills an empty store with one user and a small catalog so the
// API can be exercised without a database.
func seedDemoData(ctx context.Context, store port.Store) error {
	category := &domain.Category{Name: "Peripherals", Description: "Desk peripherals"}
	if err := store.Categories().Save(ctx, category); err != nil {
		return err
	}
	user := &domain.User{ID: "demo-user", FirstName: "Demo", LastName: "User", Email: "demo@example.com"}
	if err := store.Users().Save(ctx, user); err != nil {
		return err
	}

	for _, dp := range demoProducts {
		price, err := decimal.NewFromString(dp.price)
		if err != nil {
			return err
		}
		p := &domain.Product{
			Name:       dp.name,
			CategoryID: category.ID,
			SKU:        dp.sku,
			Price:      price,
			Available:  dp.available,
		}
		if err := store.Products().Save(ctx, p); err != nil {
			return err
		}
		if err := store.Inventory().Save(ctx, &domain.Inventory{ProductID: p.ID, Quantity: dp.stock, Location: "main"}); err != nil {
			return err
		}
	}
	return nil
}
