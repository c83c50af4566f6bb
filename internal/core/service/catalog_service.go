package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

type CatalogService struct {
	store  port.Store
	keys   cacheKeys
	logger *zap.Logger
}

func NewCatalogService(store port.Store, c *cache.Cache, logger *zap.Logger) *CatalogService {
	return &CatalogService{store: store, keys: newCacheKeys(c), logger: logger}
}

// GetProduct returns the product with its category name and stock level,
// each read through the cache.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.ProductDetails, error) {
	product, err := s.product(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.NotFound("product", id)
	}
	return s.details(ctx, product)
}

func (s *CatalogService) ListProducts(ctx context.Context, page domain.PageRequest) (domain.Page[*domain.ProductDetails], error) {
	products, err := s.store.Products().FindAll(ctx, page)
	if err != nil {
		return domain.Page[*domain.ProductDetails]{}, err
	}
	return domain.MapPage(products, func(p domain.Product) (*domain.ProductDetails, error) {
		return s.details(ctx, &p)
	})
}

func (s *CatalogService) AddProduct(ctx context.Context, in domain.NewProduct) (*domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("product name is required: %w", domain.ErrInvalidArgument)
	}
	if !in.Price.IsPositive() {
		return nil, fmt.Errorf("price must be positive: %w", domain.ErrInvalidArgument)
	}
	if err := s.checkName(ctx, name); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:       name,
		CategoryID: in.CategoryID,
		VendorID:   in.VendorID,
		SKU:        in.SKU,
		Price:      in.Price,
		Available:  in.Available,
	}
	if err := s.store.Products().Save(ctx, product); err != nil {
		return nil, err
	}
	s.keys.invalidateProduct(product.ID)

	s.logger.Info("product added", zap.String("productId", product.ID), zap.String("name", product.Name))
	return product, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, upd domain.ProductUpdate) (*domain.Product, error) {
	product, err := s.store.Products().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.NotFound("product", id)
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("product name is required: %w", domain.ErrInvalidArgument)
		}
		if !strings.EqualFold(name, product.Name) {
			if err := s.checkName(ctx, name); err != nil {
				return nil, err
			}
		}
		product.Name = name
	}
	if upd.CategoryID != nil && *upd.CategoryID != product.CategoryID {
		if err := s.checkCategory(ctx, *upd.CategoryID); err != nil {
			return nil, err
		}
		product.CategoryID = *upd.CategoryID
	}
	if upd.SKU != nil {
		product.SKU = *upd.SKU
	}
	if upd.Price != nil {
		if !upd.Price.IsPositive() {
			return nil, fmt.Errorf("price must be positive: %w", domain.ErrInvalidArgument)
		}
		product.Price = *upd.Price
	}
	if upd.Available != nil {
		product.Available = *upd.Available
	}

	if err := s.store.Products().Save(ctx, product); err != nil {
		return nil, err
	}
	s.keys.invalidateProduct(id)

	s.logger.Info("product updated", zap.String("productId", id))
	return product, nil
}

// DeleteProduct fails with a conflict while inventory or order items still
// reference the product.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.store.Products().FindByID(ctx, id)
	if err != nil {
		return err
	}
	if product == nil {
		return domain.NotFound("product", id)
	}
	if err := s.store.Products().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	s.keys.invalidateProduct(id)

	s.logger.Info("product deleted", zap.String("productId", id))
	return nil
}

func (s *CatalogService) AddCategory(ctx context.Context, name, description string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name is required: %w", domain.ErrInvalidArgument)
	}
	category := &domain.Category{Name: name, Description: description}
	if err := s.store.Categories().Save(ctx, category); err != nil {
		return nil, err
	}
	s.keys.categories.Invalidate(category.ID)
	return category, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	category, err := s.category(ctx, id)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, domain.NotFound("category", id)
	}
	return category, nil
}

func (s *CatalogService) checkName(ctx context.Context, name string) error {
	exists, err := s.store.Products().ExistsByName(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("product %q: %w", name, domain.ErrAlreadyExists)
	}
	return nil
}

func (s *CatalogService) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("category id is required: %w", domain.ErrInvalidArgument)
	}
	category, err := s.category(ctx, id)
	if err != nil {
		return err
	}
	if category == nil {
		return domain.NotFound("category", id)
	}
	return nil
}

func (s *CatalogService) product(ctx context.Context, id string) (*domain.Product, error) {
	return s.keys.products.Get(id, func() (*domain.Product, error) {
		return s.store.Products().FindByID(ctx, id)
	})
}

func (s *CatalogService) category(ctx context.Context, id string) (*domain.Category, error) {
	return s.keys.categories.Get(id, func() (*domain.Category, error) {
		return s.store.Categories().FindByID(ctx, id)
	})
}

func (s *CatalogService) quantity(ctx context.Context, productID string) (int, error) {
	return s.keys.quantities.Get(productID, func() (int, error) {
		inv, err := s.store.Inventory().FindByProductID(ctx, productID)
		if err != nil || inv == nil {
			return 0, err
		}
		return inv.Quantity, nil
	})
}

func (s *CatalogService) details(ctx context.Context, p *domain.Product) (*domain.ProductDetails, error) {
	out := &domain.ProductDetails{
		ID:         p.ID,
		Name:       p.Name,
		SKU:        p.SKU,
		Price:      p.Price,
		Available:  p.Available,
		CategoryID: p.CategoryID,
		VendorID:   p.VendorID,
	}
	if p.CategoryID != "" {
		category, err := s.category(ctx, p.CategoryID)
		if err != nil {
			return nil, err
		}
		if category != nil {
			out.CategoryName = category.Name
		}
	}
	qty, err := s.quantity(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	out.Quantity = qty
	return out, nil
}
