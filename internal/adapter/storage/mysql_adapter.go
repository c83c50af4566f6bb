package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, mysqlTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Products() port.ProductRepository     { return mysqlProducts{q: m.db} }
func (m *MySQLAdapter) Categories() port.CategoryRepository  { return mysqlCategories{q: m.db} }
func (m *MySQLAdapter) Users() port.UserRepository           { return mysqlUsers{q: m.db} }
func (m *MySQLAdapter) Inventory() port.InventoryRepository  { return mysqlInventory{q: m.db, db: m.db} }
func (m *MySQLAdapter) Orders() port.OrderRepository         { return mysqlOrders{q: m.db} }
func (m *MySQLAdapter) OrderItems() port.OrderItemRepository { return mysqlOrderItems{q: m.db} }
func (m *MySQLAdapter) Carts() port.CartRepository           { return mysqlCarts{q: m.db} }
func (m *MySQLAdapter) CartItems() port.CartItemRepository   { return mysqlCartItems{q: m.db} }

type mysqlTx struct{ q *sql.Tx }

func (t mysqlTx) Inventory() port.InventoryRepository  { return mysqlInventory{q: t.q} }
func (t mysqlTx) Orders() port.OrderRepository         { return mysqlOrders{q: t.q} }
func (t mysqlTx) OrderItems() port.OrderItemRepository { return mysqlOrderItems{q: t.q} }

func countRows(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type mysqlProducts struct{ q queryer }

const productColumns = `id, name, category_id, COALESCE(vendor_id, ''), sku, price, available, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.VendorID, &p.SKU, &p.Price, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r mysqlProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (r mysqlProducts) FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Product], error) {
	page = page.Normalize()
	out := domain.Page[domain.Product]{Page: page.Page, Size: page.Size, Items: []domain.Product{}}

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM products`)
	if err != nil {
		return out, fmt.Errorf("count products: %w", err)
	}
	out.Total = total

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		ORDER BY created_at, id LIMIT ? OFFSET ?`, page.Size, page.Offset())
	if err != nil {
		return out, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return out, fmt.Errorf("scan product: %w", err)
		}
		out.Items = append(out.Items, p)
	}
	return out, rows.Err()
}

func (r mysqlProducts) ExistsByName(ctx context.Context, name string) (bool, error) {
	n, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM products WHERE LOWER(name) = LOWER(?)`, name)
	if err != nil {
		return false, fmt.Errorf("query product name: %w", err)
	}
	return n > 0, nil
}

func (r mysqlProducts) Save(ctx context.Context, p *domain.Product) error {
	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var vendor sql.NullString
	if p.VendorID != "" {
		vendor = sql.NullString{String: p.VendorID, Valid: true}
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (id, name, category_id, vendor_id, sku, price, available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), category_id = VALUES(category_id), vendor_id = VALUES(vendor_id),
			sku = VALUES(sku), price = VALUES(price), available = VALUES(available), updated_at = VALUES(updated_at)`,
		p.ID, p.Name, p.CategoryID, vendor, p.SKU, p.Price, p.Available, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save product: %w", translate(err))
	}
	return nil
}

func (r mysqlProducts) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete product: %w", translate(err))
	}
	return nil
}

type mysqlCategories struct{ q queryer }

func (r mysqlCategories) FindByID(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := r.q.QueryRowContext(ctx, `SELECT id, name, description FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query category: %w", err)
	}
	return &c, nil
}

func (r mysqlCategories) Save(ctx context.Context, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, description) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), description = VALUES(description)`,
		c.ID, c.Name, c.Description,
	)
	if err != nil {
		return fmt.Errorf("save category: %w", translate(err))
	}
	return nil
}

type mysqlUsers struct{ q queryer }

func (r mysqlUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.q.QueryRowContext(ctx, `SELECT id, first_name, last_name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r mysqlUsers) Save(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE first_name = VALUES(first_name), last_name = VALUES(last_name), email = VALUES(email)`,
		u.ID, u.FirstName, u.LastName, u.Email,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", translate(err))
	}
	return nil
}

// mysqlInventory carries db when it is not bound to a transaction, so that
// SaveAll can open its own.
type mysqlInventory struct {
	q  queryer
	db *sql.DB
}

const inventoryColumns = `id, product_id, quantity, location, version, created_at, updated_at`

func scanInventory(row rowScanner) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := row.Scan(&inv.ID, &inv.ProductID, &inv.Quantity, &inv.Location, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

func (r mysqlInventory) FindByID(ctx context.Context, id string) (*domain.Inventory, error) {
	return scanInventory(r.q.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE id = ?`, id))
}

func (r mysqlInventory) FindByProductID(ctx context.Context, productID string) (*domain.Inventory, error) {
	return scanInventory(r.q.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE product_id = ?`, productID))
}

// Save inserts a new row or updates an existing one with a version check.
func (r mysqlInventory) Save(ctx context.Context, inv *domain.Inventory) error {
	return saveInventoryRow(ctx, r.q, inv)
}

func saveInventoryRow(ctx context.Context, q queryer, inv *domain.Inventory) error {
	if inv.Quantity < 0 {
		return domain.ErrOutOfStock
	}
	now := time.Now()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
		inv.CreatedAt, inv.UpdatedAt, inv.Version = now, now, 0
		_, err := q.ExecContext(ctx, `
			INSERT INTO inventory (id, product_id, quantity, location, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)`,
			inv.ID, inv.ProductID, inv.Quantity, inv.Location, inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert inventory: %w", translate(err))
		}
		return nil
	}

	result, err := q.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = ?, location = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		inv.Quantity, inv.Location, now, inv.ID, inv.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", translate(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if rows == 0 {
		return ErrOptimisticLock
	}
	inv.Version++
	inv.UpdatedAt = now
	return nil
}

func (r mysqlInventory) SaveAll(ctx context.Context, invs []*domain.Inventory) error {
	if r.db == nil {
		for _, inv := range invs {
			if err := saveInventoryRow(ctx, r.q, inv); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, inv := range invs {
		if err := saveInventoryRow(ctx, tx, inv); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r mysqlInventory) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM inventory WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete inventory: %w", translate(err))
	}
	return nil
}

func (r mysqlInventory) DecrementIfSufficient(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - ?, version = version + 1, updated_at = NOW()
		WHERE product_id = ? AND quantity >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement inventory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement inventory: %w", err)
	}
	return rows == 1, nil
}

type mysqlOrders struct{ q queryer }

const orderColumns = `id, user_id, total_amount, status, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r mysqlOrders) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (r mysqlOrders) page(ctx context.Context, page domain.PageRequest, where string, args ...any) (domain.Page[domain.Order], error) {
	page = page.Normalize()
	out := domain.Page[domain.Order]{Page: page.Page, Size: page.Size, Items: []domain.Order{}}

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM orders`+where, args...)
	if err != nil {
		return out, fmt.Errorf("count orders: %w", err)
	}
	out.Total = total

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders`+where+` ORDER BY created_at, id LIMIT ? OFFSET ?`,
		append(args, page.Size, page.Offset())...,
	)
	if err != nil {
		return out, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return out, fmt.Errorf("scan order: %w", err)
		}
		out.Items = append(out.Items, o)
	}
	return out, rows.Err()
}

func (r mysqlOrders) FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Order], error) {
	return r.page(ctx, page, "")
}

func (r mysqlOrders) FindByUserID(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.Order], error) {
	return r.page(ctx, page, ` WHERE user_id = ?`, userID)
}

func (r mysqlOrders) Save(ctx context.Context, o *domain.Order) error {
	now := time.Now()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), total_amount = VALUES(total_amount), updated_at = VALUES(updated_at)`,
		o.ID, o.UserID, o.TotalAmount, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save order: %w", translate(err))
	}
	return nil
}

func (r mysqlOrders) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete order: %w", translate(err))
	}
	return nil
}

type mysqlOrderItems struct{ q queryer }

func (r mysqlOrderItems) FindByOrderID(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, total_price
		FROM order_items WHERE order_id = ? ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r mysqlOrderItems) SaveAll(ctx context.Context, items []domain.OrderItem) error {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, total_price)
			VALUES (?, ?, ?, ?, ?)`,
			items[i].ID, items[i].OrderID, items[i].ProductID, items[i].Quantity, items[i].TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", translate(err))
		}
	}
	return nil
}

func (r mysqlOrderItems) DeleteByOrderID(ctx context.Context, orderID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", translate(err))
	}
	return nil
}

type mysqlCarts struct{ q queryer }

func (r mysqlCarts) FindByUserID(ctx context.Context, userID string) (*domain.Cart, error) {
	var c domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?`, userID,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	return &c, nil
}

func (r mysqlCarts) Save(ctx context.Context, c *domain.Cart) error {
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE updated_at = IF(id = VALUES(id), VALUES(updated_at), updated_at)`,
		c.ID, c.UserID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save cart: %w", translate(err))
	}

	// a duplicate user_id under another id leaves the existing cart untouched
	var owner string
	if err := r.q.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = ?`, c.UserID).Scan(&owner); err != nil {
		return fmt.Errorf("query cart: %w", err)
	}
	if owner != c.ID {
		return fmt.Errorf("cart for user %s: %w", c.UserID, domain.ErrAlreadyExists)
	}
	return nil
}

type mysqlCartItems struct{ q queryer }

const cartItemColumns = `id, cart_id, product_id, quantity, created_at, updated_at`

func scanCartItem(row rowScanner) (domain.CartItem, error) {
	var it domain.CartItem
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r mysqlCartItems) FindByID(ctx context.Context, id string) (*domain.CartItem, error) {
	it, err := scanCartItem(r.q.QueryRowContext(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item: %w", err)
	}
	return &it, nil
}

func (r mysqlCartItems) FindByCartID(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = ? ORDER BY seq`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	out := []domain.CartItem{}
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r mysqlCartItems) Add(ctx context.Context, item *domain.CartItem) error {
	now := time.Now()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), updated_at = VALUES(updated_at)`,
		uuid.NewString(), item.CartID, item.ProductID, item.Quantity, now, now,
	)
	if err != nil {
		return fmt.Errorf("add cart item: %w", translate(err))
	}

	stored, err := scanCartItem(r.q.QueryRowContext(ctx, `
		SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = ? AND product_id = ?`,
		item.CartID, item.ProductID,
	))
	if err != nil {
		return fmt.Errorf("query cart item: %w", err)
	}
	*item = stored
	return nil
}

func (r mysqlCartItems) Save(ctx context.Context, item *domain.CartItem) error {
	now := time.Now()
	result, err := r.q.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ?`,
		item.Quantity, now, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", translate(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if rows == 0 {
		// the driver reports changed rows, so an unchanged row also lands here
		existing, err := r.FindByID(ctx, item.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.NotFound("cart item", item.ID)
		}
	}
	item.UpdatedAt = now
	return nil
}

func (r mysqlCartItems) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (r mysqlCartItems) DeleteByCartID(ctx context.Context, cartID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}

var _ port.Store = (*MySQLAdapter)(nil)
