package storage

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

type memoryData struct {
	products   map[string]domain.Product
	categories map[string]domain.Category
	users      map[string]domain.User
	inventory  map[string]domain.Inventory
	orders     map[string]domain.Order
	orderItems map[string]memItem
	carts      map[string]domain.Cart
	cartItems  map[string]memCartItem
	nextSeq    uint64
}

type memCartItem struct {
	item domain.CartItem
	seq  uint64
}

// memItem keeps insertion order so items come back in the order they were saved.
type memItem struct {
	item domain.OrderItem
	seq  uint64
}

func newMemoryData() *memoryData {
	return &memoryData{
		products:   make(map[string]domain.Product),
		categories: make(map[string]domain.Category),
		users:      make(map[string]domain.User),
		inventory:  make(map[string]domain.Inventory),
		orders:     make(map[string]domain.Order),
		orderItems: make(map[string]memItem),
		carts:      make(map[string]domain.Cart),
		cartItems:  make(map[string]memCartItem),
	}
}

func (d *memoryData) clone() *memoryData {
	return &memoryData{
		products:   maps.Clone(d.products),
		categories: maps.Clone(d.categories),
		users:      maps.Clone(d.users),
		inventory:  maps.Clone(d.inventory),
		orders:     maps.Clone(d.orders),
		orderItems: maps.Clone(d.orderItems),
		carts:      maps.Clone(d.carts),
		cartItems:  maps.Clone(d.cartItems),
		nextSeq:    d.nextSeq,
	}
}

// MemoryStore keeps every entity in process memory. Transactions hold the
// store lock for their whole duration and restore a snapshot on failure, so
// they are serializable. Inside WithinTx only the repositories of the given
// port.Tx may be used.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

// access returns the data and a release func. Transaction-bound repositories
// run under the lock already held by WithinTx.
func (s *MemoryStore) access(inTx bool) (*memoryData, func()) {
	if inTx {
		return s.data, func() {}
	}
	s.mu.Lock()
	return s.data, s.mu.Unlock
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if r := recover(); r != nil {
			s.data = snapshot
			panic(r)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, memoryTx{s: s})
}

func (s *MemoryStore) Products() port.ProductRepository     { return memProducts{s: s} }
func (s *MemoryStore) Categories() port.CategoryRepository  { return memCategories{s: s} }
func (s *MemoryStore) Users() port.UserRepository           { return memUsers{s: s} }
func (s *MemoryStore) Inventory() port.InventoryRepository  { return memInventory{s: s} }
func (s *MemoryStore) Orders() port.OrderRepository         { return memOrders{s: s} }
func (s *MemoryStore) OrderItems() port.OrderItemRepository { return memOrderItems{s: s} }
func (s *MemoryStore) Carts() port.CartRepository           { return memCarts{s: s} }
func (s *MemoryStore) CartItems() port.CartItemRepository   { return memCartItems{s: s} }

type memoryTx struct{ s *MemoryStore }

func (t memoryTx) Inventory() port.InventoryRepository  { return memInventory{s: t.s, tx: true} }
func (t memoryTx) Orders() port.OrderRepository         { return memOrders{s: t.s, tx: true} }
func (t memoryTx) OrderItems() port.OrderItemRepository { return memOrderItems{s: t.s, tx: true} }

func paginate[T any](rows []T, page domain.PageRequest) domain.Page[T] {
	page = page.Normalize()
	out := domain.Page[T]{Page: page.Page, Size: page.Size, Total: len(rows), Items: []T{}}
	start := page.Offset()
	if start >= len(rows) {
		return out
	}
	end := min(start+page.Size, len(rows))
	out.Items = append(out.Items, rows[start:end]...)
	return out
}

type memProducts struct {
	s  *MemoryStore
	tx bool
}

func (r memProducts) FindByID(_ context.Context, id string) (*domain.Product, error) {
	d, release := r.s.access(r.tx)
	defer release()
	p, ok := d.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memProducts) FindAll(_ context.Context, page domain.PageRequest) (domain.Page[domain.Product], error) {
	d, release := r.s.access(r.tx)
	defer release()
	rows := slices.Collect(maps.Values(d.products))
	slices.SortFunc(rows, func(a, b domain.Product) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return paginate(rows, page), nil
}

func (r memProducts) ExistsByName(_ context.Context, name string) (bool, error) {
	d, release := r.s.access(r.tx)
	defer release()
	for _, p := range d.products {
		if strings.EqualFold(p.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r memProducts) Save(_ context.Context, p *domain.Product) error {
	d, release := r.s.access(r.tx)
	defer release()
	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if prev, ok := d.products[p.ID]; ok {
		p.CreatedAt = prev.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	d.products[p.ID] = *p
	return nil
}

func (r memProducts) Delete(_ context.Context, id string) error {
	d, release := r.s.access(r.tx)
	defer release()
	for _, inv := range d.inventory {
		if inv.ProductID == id {
			return ErrForeignKey
		}
	}
	for _, it := range d.orderItems {
		if it.item.ProductID == id {
			return ErrForeignKey
		}
	}
	for _, it := range d.cartItems {
		if it.item.ProductID == id {
			return ErrForeignKey
		}
	}
	delete(d.products, id)
	return nil
}

type memCategories struct {
	s  *MemoryStore
	tx bool
}

func (r memCategories) FindByID(_ context.Context, id string) (*domain.Category, error) {
	d, release := r.s.access(r.tx)
	defer release()
	c, ok := d.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r memCategories) Save(_ context.Context, c *domain.Category) error {
	d, release := r.s.access(r.tx)
	defer release()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	d.categories[c.ID] = *c
	return nil
}

type memUsers struct {
	s  *MemoryStore
	tx bool
}

func (r memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	d, release := r.s.access(r.tx)
	defer release()
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r memUsers) Save(_ context.Context, u *domain.User) error {
	d, release := r.s.access(r.tx)
	defer release()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	d.users[u.ID] = *u
	return nil
}

type memInventory struct {
	s  *MemoryStore
	tx bool
}

func (r memInventory) FindByID(_ context.Context, id string) (*domain.Inventory, error) {
	d, release := r.s.access(r.tx)
	defer release()
	inv, ok := d.inventory[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (r memInventory) FindByProductID(_ context.Context, productID string) (*domain.Inventory, error) {
	d, release := r.s.access(r.tx)
	defer release()
	for _, inv := range d.inventory {
		if inv.ProductID == productID {
			return &inv, nil
		}
	}
	return nil, nil
}

func saveInventory(d *memoryData, inv *domain.Inventory) error {
	if inv.Quantity < 0 {
		return domain.ErrOutOfStock
	}
	now := time.Now()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	for id, other := range d.inventory {
		if other.ProductID == inv.ProductID && id != inv.ID {
			return domain.ErrAlreadyExists
		}
	}
	if prev, ok := d.inventory[inv.ID]; ok {
		if prev.Version != inv.Version {
			return ErrOptimisticLock
		}
		inv.CreatedAt = prev.CreatedAt
		inv.Version = prev.Version + 1
	} else if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	d.inventory[inv.ID] = *inv
	return nil
}

func (r memInventory) Save(_ context.Context, inv *domain.Inventory) error {
	d, release := r.s.access(r.tx)
	defer release()
	row := *inv
	if err := saveInventory(d, &row); err != nil {
		return err
	}
	*inv = row
	return nil
}

// SaveAll is all-or-nothing outside a transaction too. The callers' values
// are only updated when every row was saved.
func (r memInventory) SaveAll(_ context.Context, invs []*domain.Inventory) error {
	d, release := r.s.access(r.tx)
	defer release()
	staged := &memoryData{inventory: maps.Clone(d.inventory)}
	rows := make([]domain.Inventory, len(invs))
	for i, inv := range invs {
		rows[i] = *inv
		if err := saveInventory(staged, &rows[i]); err != nil {
			return err
		}
	}
	d.inventory = staged.inventory
	for i, inv := range invs {
		*inv = rows[i]
	}
	return nil
}

func (r memInventory) Delete(_ context.Context, id string) error {
	d, release := r.s.access(r.tx)
	defer release()
	delete(d.inventory, id)
	return nil
}

func (r memInventory) DecrementIfSufficient(_ context.Context, productID string, quantity int) (bool, error) {
	d, release := r.s.access(r.tx)
	defer release()
	for id, inv := range d.inventory {
		if inv.ProductID != productID {
			continue
		}
		if inv.Quantity < quantity {
			return false, nil
		}
		inv.Quantity -= quantity
		inv.Version++
		inv.UpdatedAt = time.Now()
		d.inventory[id] = inv
		return true, nil
	}
	return false, nil
}

type memOrders struct {
	s  *MemoryStore
	tx bool
}

func (r memOrders) FindByID(_ context.Context, id string) (*domain.Order, error) {
	d, release := r.s.access(r.tx)
	defer release()
	o, ok := d.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r memOrders) find(page domain.PageRequest, keep func(domain.Order) bool) domain.Page[domain.Order] {
	d, release := r.s.access(r.tx)
	defer release()
	var rows []domain.Order
	for _, o := range d.orders {
		if keep(o) {
			rows = append(rows, o)
		}
	}
	slices.SortFunc(rows, func(a, b domain.Order) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return paginate(rows, page)
}

func (r memOrders) FindAll(_ context.Context, page domain.PageRequest) (domain.Page[domain.Order], error) {
	return r.find(page, func(domain.Order) bool { return true }), nil
}

func (r memOrders) FindByUserID(_ context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Order], error) {
	return r.find(page, func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (r memOrders) Save(_ context.Context, o *domain.Order) error {
	d, release := r.s.access(r.tx)
	defer release()
	now := time.Now()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if prev, ok := d.orders[o.ID]; ok {
		o.CreatedAt = prev.CreatedAt
	} else if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	d.orders[o.ID] = *o
	return nil
}

func (r memOrders) Delete(_ context.Context, id string) error {
	d, release := r.s.access(r.tx)
	defer release()
	for _, it := range d.orderItems {
		if it.item.OrderID == id {
			return ErrForeignKey
		}
	}
	delete(d.orders, id)
	return nil
}

type memOrderItems struct {
	s  *MemoryStore
	tx bool
}

func (r memOrderItems) FindByOrderID(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	d, release := r.s.access(r.tx)
	defer release()
	var rows []memItem
	for _, it := range d.orderItems {
		if it.item.OrderID == orderID {
			rows = append(rows, it)
		}
	}
	slices.SortFunc(rows, func(a, b memItem) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.OrderItem, 0, len(rows))
	for _, it := range rows {
		out = append(out, it.item)
	}
	return out, nil
}

func (r memOrderItems) SaveAll(_ context.Context, items []domain.OrderItem) error {
	d, release := r.s.access(r.tx)
	defer release()
	for _, it := range items {
		if _, ok := d.orders[it.OrderID]; !ok {
			return ErrForeignKey
		}
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		d.nextSeq++
		d.orderItems[items[i].ID] = memItem{item: items[i], seq: d.nextSeq}
	}
	return nil
}

func (r memOrderItems) DeleteByOrderID(_ context.Context, orderID string) error {
	d, release := r.s.access(r.tx)
	defer release()
	for id, it := range d.orderItems {
		if it.item.OrderID == orderID {
			delete(d.orderItems, id)
		}
	}
	return nil
}

type memCarts struct {
	s  *MemoryStore
	tx bool
}

func (r memCarts) FindByUserID(_ context.Context, userID string) (*domain.Cart, error) {
	d, release := r.s.access(r.tx)
	defer release()
	for _, c := range d.carts {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, nil
}

func (r memCarts) Save(_ context.Context, c *domain.Cart) error {
	d, release := r.s.access(r.tx)
	defer release()
	if _, ok := d.users[c.UserID]; !ok {
		return ErrForeignKey
	}
	for id, other := range d.carts {
		if other.UserID == c.UserID && id != c.ID {
			return domain.ErrAlreadyExists
		}
	}
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if prev, ok := d.carts[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	d.carts[c.ID] = *c
	return nil
}

type memCartItems struct {
	s  *MemoryStore
	tx bool
}

func (r memCartItems) FindByID(_ context.Context, id string) (*domain.CartItem, error) {
	d, release := r.s.access(r.tx)
	defer release()
	it, ok := d.cartItems[id]
	if !ok {
		return nil, nil
	}
	return &it.item, nil
}

func (r memCartItems) FindByCartID(_ context.Context, cartID string) ([]domain.CartItem, error) {
	d, release := r.s.access(r.tx)
	defer release()
	var rows []memCartItem
	for _, it := range d.cartItems {
		if it.item.CartID == cartID {
			rows = append(rows, it)
		}
	}
	slices.SortFunc(rows, func(a, b memCartItem) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.CartItem, 0, len(rows))
	for _, it := range rows {
		out = append(out, it.item)
	}
	return out, nil
}

func (r memCartItems) Add(_ context.Context, item *domain.CartItem) error {
	d, release := r.s.access(r.tx)
	defer release()
	if _, ok := d.carts[item.CartID]; !ok {
		return ErrForeignKey
	}
	if _, ok := d.products[item.ProductID]; !ok {
		return ErrForeignKey
	}
	now := time.Now()
	for id, it := range d.cartItems {
		if it.item.CartID == item.CartID && it.item.ProductID == item.ProductID {
			it.item.Quantity += item.Quantity
			it.item.UpdatedAt = now
			d.cartItems[id] = it
			*item = it.item
			return nil
		}
	}
	row := *item
	row.ID = uuid.NewString()
	row.CreatedAt, row.UpdatedAt = now, now
	d.nextSeq++
	d.cartItems[row.ID] = memCartItem{item: row, seq: d.nextSeq}
	*item = row
	return nil
}

func (r memCartItems) Save(_ context.Context, item *domain.CartItem) error {
	d, release := r.s.access(r.tx)
	defer release()
	prev, ok := d.cartItems[item.ID]
	if !ok {
		return domain.NotFound("cart item", item.ID)
	}
	prev.item.Quantity = item.Quantity
	prev.item.UpdatedAt = time.Now()
	d.cartItems[item.ID] = prev
	*item = prev.item
	return nil
}

func (r memCartItems) Delete(_ context.Context, id string) error {
	d, release := r.s.access(r.tx)
	defer release()
	delete(d.cartItems, id)
	return nil
}

func (r memCartItems) DeleteByCartID(_ context.Context, cartID string) error {
	d, release := r.s.access(r.tx)
	defer release()
	for id, it := range d.cartItems {
		if it.item.CartID == cartID {
			delete(d.cartItems, id)
		}
	}
	return nil
}

var _ port.Store = (*MemoryStore)(nil)
