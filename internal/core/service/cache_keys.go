package service

import (
	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
)

const (
	productKeyPrefix           = "product:"
	categoryKeyPrefix          = "category:"
	inventoryQuantityKeyPrefix = "inventory:quantity:"
	inventoryProductKeyPrefix  = "inventory:product:"
	orderKeyPrefix             = "order:"
)

// cacheKeys groups the typed cache namespaces shared by the services.
// Cached values are shared between callers and must not be mutated.
type cacheKeys struct {
	products    cache.Namespace[*domain.Product]
	categories  cache.Namespace[*domain.Category]
	quantities  cache.Namespace[int]
	inventories cache.Namespace[*domain.Inventory]
	orders      cache.Namespace[*orderRecord]
}

func newCacheKeys(c *cache.Cache) cacheKeys {
	return cacheKeys{
		products:    cache.NewNamespace[*domain.Product](c, productKeyPrefix),
		categories:  cache.NewNamespace[*domain.Category](c, categoryKeyPrefix),
		quantities:  cache.NewNamespace[int](c, inventoryQuantityKeyPrefix),
		inventories: cache.NewNamespace[*domain.Inventory](c, inventoryProductKeyPrefix),
		orders:      cache.NewNamespace[*orderRecord](c, orderKeyPrefix),
	}
}

// invalidateProduct drops every entry derived from the product or its stock.
func (k cacheKeys) invalidateProduct(productID string) {
	k.products.Invalidate(productID)
	k.quantities.Invalidate(productID)
	k.inventories.Invalidate(productID)
}
