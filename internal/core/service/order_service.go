package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/cache"
	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

const checkoutKeyPrefix = "checkout:"

type OrderService struct {
	store  port.Store
	idem   port.IdempotencyStore
	keys   cacheKeys
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	events chan domain.OrderEvent
}

// NewOrderService wires the order pipeline. idem may be nil, in which case
// request IDs are not deduplicated.
func NewOrderService(store port.Store, c *cache.Cache, idem port.IdempotencyStore, logger *zap.Logger, queueSize int) *OrderService {
	return &OrderService{
		store:  store,
		idem:   idem,
		keys:   newCacheKeys(c),
		logger: logger,
		events: make(chan domain.OrderEvent, queueSize),
	}
}

// reservation is the staged result of validating every line.
type reservation struct {
	items     []domain.OrderItem
	total     decimal.Decimal
	stock     map[string]*domain.Inventory // staged rows by product ID
	reserved  map[string]int               // units to take per product
	firstLine map[string]int
	names     map[string]string
	products  []string // product IDs in first-seen order
}

// CreateOrder validates every line, then decrements stock and persists the
// order and its items in one transaction. Nothing is written unless every
// line passes.
func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (_ *domain.OrderDetails, err error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}

	// committed is set once the order is durable; from then on the request ID
	// stays claimed whatever happens.
	var committed bool
	if req.RequestID != "" && s.idem != nil {
		key := checkoutKeyPrefix + req.RequestID
		ok, claimErr := s.idem.Claim(ctx, key)
		if claimErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil || committed {
				return
			}
			if releaseErr := s.idem.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}()
	}

	user, err := s.store.Users().FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NotFound("user", req.UserID)
	}

	res, err := s.reserve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		UserID:      user.ID,
		TotalAmount: res.total,
		Status:      domain.OrderStatusPending,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		for _, pid := range res.products {
			ok, err := tx.Inventory().DecrementIfSufficient(ctx, pid, res.reserved[pid])
			if err != nil {
				return err
			}
			if !ok {
				return &domain.LineError{
					Line:      res.firstLine[pid],
					ProductID: pid,
					Err:       fmt.Errorf("product %q: %w", res.names[pid], domain.ErrOutOfStock),
				}
			}
		}

		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}
		for i := range res.items {
			res.items[i].OrderID = order.ID
		}
		return tx.OrderItems().SaveAll(ctx, res.items)
	})

	// touched products are invalidated whether or not the transaction committed
	for _, pid := range res.products {
		s.keys.invalidateProduct(pid)
	}
	if err != nil {
		s.logger.Info("order rejected", zap.String("userId", user.ID), zap.Error(err))
		return nil, err
	}
	committed = true
	s.keys.orders.Invalidate(order.ID)

	s.logger.Info("order created",
		zap.String("orderId", order.ID),
		zap.String("userId", user.ID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(res.items)))

	s.emit(domain.EventOrderCreated, order)
	// built from what the reservation already read, so a committed order is
	// never reported as failed
	return newOrderDetails(order, res.items, user.FullName(), func(id string) string { return res.names[id] }), nil
}

func validateOrderRequest(req domain.CreateOrderRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrInvalidArgument)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("order has no items: %w", domain.ErrInvalidArgument)
	}
	for i, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return &domain.LineError{
				Line:      i,
				ProductID: it.ProductID,
				Err:       fmt.Errorf("quantity must be positive: %w", domain.ErrInvalidArgument),
			}
		}
	}
	return nil
}

// reserve checks each line in input order and stages the decrements. It
// stops at the first failing line.
func (s *OrderService) reserve(ctx context.Context, lines []domain.LineItem) (*reservation, error) {
	res := &reservation{
		items:     make([]domain.OrderItem, 0, len(lines)),
		total:     decimal.Zero,
		stock:     make(map[string]*domain.Inventory),
		reserved:  make(map[string]int),
		firstLine: make(map[string]int),
		names:     make(map[string]string),
	}

	for i, line := range lines {
		product, err := s.store.Products().FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, &domain.LineError{Line: i, ProductID: line.ProductID, Err: domain.NotFound("product", line.ProductID)}
		}
		if !product.Available {
			return nil, &domain.LineError{
				Line:      i,
				ProductID: product.ID,
				Err:       fmt.Errorf("product %q: %w", product.Name, domain.ErrProductUnavailable),
			}
		}

		inv, staged := res.stock[product.ID]
		if !staged {
			inv, err = s.store.Inventory().FindByProductID(ctx, product.ID)
			if err != nil {
				return nil, err
			}
		}
		if inv == nil || !inv.CanReserve(line.Quantity) {
			return nil, &domain.LineError{
				Line:      i,
				ProductID: product.ID,
				Err:       fmt.Errorf("product %q: %w", product.Name, domain.ErrOutOfStock),
			}
		}
		inv.Reserve(line.Quantity)

		if !staged {
			res.stock[product.ID] = inv
			res.firstLine[product.ID] = i
			res.names[product.ID] = product.Name
			res.products = append(res.products, product.ID)
		}
		res.reserved[product.ID] += line.Quantity

		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		res.total = res.total.Add(lineTotal)
		res.items = append(res.items, domain.OrderItem{
			ProductID:  product.ID,
			Quantity:   line.Quantity,
			TotalPrice: lineTotal,
		})
	}
	return res, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.OrderDetails, error) {
	rec, err := s.cachedRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.NotFound("order", id)
	}
	return s.resolveDetails(ctx, rec)
}

func (s *OrderService) ListOrders(ctx context.Context, page domain.PageRequest) (domain.Page[*domain.OrderDetails], error) {
	orders, err := s.store.Orders().FindAll(ctx, page)
	if err != nil {
		return domain.Page[*domain.OrderDetails]{}, err
	}
	return domain.MapPage(orders, s.listedDetails(ctx))
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[*domain.OrderDetails], error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return domain.Page[*domain.OrderDetails]{}, err
	}
	if user == nil {
		return domain.Page[*domain.OrderDetails]{}, domain.NotFound("user", userID)
	}

	orders, err := s.store.Orders().FindByUserID(ctx, userID, page)
	if err != nil {
		return domain.Page[*domain.OrderDetails]{}, err
	}
	return domain.MapPage(orders, s.listedDetails(ctx))
}

// listedDetails goes through the order cache by ID. The page row is only a
// fallback for an order deleted after the page was read; it is never cached,
// since it may predate a write whose invalidation already happened.
func (s *OrderService) listedDetails(ctx context.Context) func(domain.Order) (*domain.OrderDetails, error) {
	return func(o domain.Order) (*domain.OrderDetails, error) {
		rec, err := s.cachedRecord(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			rec = &orderRecord{order: o}
		}
		return s.resolveDetails(ctx, rec)
	}
}

// UpdateOrderStatus is an administrative transition; any status may follow any other.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.OrderDetails, error) {
	status, err := domain.ParseOrderStatus(string(status))
	if err != nil {
		return nil, err
	}

	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.NotFound("order", id)
	}

	order.Status = status
	if err := s.store.Orders().Save(ctx, order); err != nil {
		return nil, err
	}
	s.keys.orders.Invalidate(id)

	s.logger.Info("order status updated", zap.String("orderId", id), zap.String("status", string(status)))
	s.emit(domain.EventOrderStatusChanged, order)
	return s.GetOrder(ctx, id)
}

// DeleteOrder removes the order and its items together.
func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.NotFound("order", id)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		if err := tx.OrderItems().DeleteByOrderID(ctx, id); err != nil {
			return err
		}
		return tx.Orders().Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	s.keys.orders.Invalidate(id)

	s.logger.Info("order deleted", zap.String("orderId", id))
	s.emit(domain.EventOrderDeleted, order)
	return nil
}

// orderRecord is what the order cache holds. Product names are not part of
// it; they come from the product cache on every read.
type orderRecord struct {
	order    domain.Order
	items    []domain.OrderItem
	userName string
}

func (s *OrderService) cachedRecord(ctx context.Context, id string) (*orderRecord, error) {
	return s.keys.orders.Get(id, func() (*orderRecord, error) {
		return s.loadRecord(ctx, id)
	})
}

// loadRecord reads the order, its items and its owner. It returns nil when
// the order does not exist.
func (s *OrderService) loadRecord(ctx context.Context, id string) (*orderRecord, error) {
	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil || order == nil {
		return nil, err
	}
	items, err := s.store.OrderItems().FindByOrderID(ctx, id)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users().FindByID(ctx, order.UserID)
	if err != nil {
		return nil, err
	}

	rec := &orderRecord{order: *order, items: items}
	if user != nil {
		rec.userName = user.FullName()
	}
	return rec, nil
}

func (s *OrderService) resolveDetails(ctx context.Context, rec *orderRecord) (*domain.OrderDetails, error) {
	names := make(map[string]string, len(rec.items))
	for _, it := range rec.items {
		if _, ok := names[it.ProductID]; ok {
			continue
		}
		product, err := s.keys.products.Get(it.ProductID, func() (*domain.Product, error) {
			return s.store.Products().FindByID(ctx, it.ProductID)
		})
		if err != nil {
			return nil, err
		}
		if product != nil {
			names[it.ProductID] = product.Name
		} else {
			names[it.ProductID] = ""
		}
	}
	return newOrderDetails(&rec.order, rec.items, rec.userName, func(id string) string { return names[id] }), nil
}

func newOrderDetails(order *domain.Order, items []domain.OrderItem, userName string, productName func(id string) string) *domain.OrderDetails {
	details := &domain.OrderDetails{
		ID:          order.ID,
		UserID:      order.UserID,
		UserName:    userName,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		Items:       make([]domain.OrderItemDetails, 0, len(items)),
	}
	for _, it := range items {
		details.Items = append(details.Items, domain.OrderItemDetails{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: productName(it.ProductID),
			Quantity:    it.Quantity,
			TotalPrice:  it.TotalPrice,
		})
	}
	return details
}

// emit queues an order event without blocking the caller; events are
// dropped when the queue is full or closed.
func (s *OrderService) emit(eventType string, order *domain.Order) {
	evt := domain.OrderEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("event queue full, dropping event",
			zap.String("eventType", eventType), zap.String("orderId", order.ID))
	}
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderEvent {
	return s.events
}

// Close stops accepting events and closes the queue so workers can drain it.
func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
