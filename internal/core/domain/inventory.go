package domain

import "time"

type Inventory struct {
	ID        string
	ProductID string
	Quantity  int
	Location  string
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanReserve reports whether quantity units are available.
func (i *Inventory) CanReserve(quantity int) bool {
	return quantity > 0 && i.Quantity >= quantity
}

// Reserve decrements the in-memory quantity. Callers check CanReserve first.
func (i *Inventory) Reserve(quantity int) {
	i.Quantity -= quantity
	i.UpdatedAt = time.Now()
}

// InventoryUpdate changes only the non-nil fields.
type InventoryUpdate struct {
	Quantity *int
	Location *string
}
