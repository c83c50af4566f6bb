package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          string
	Name        string
	Description string
}

type Product struct {
	ID         string
	Name       string
	CategoryID string
	VendorID   string // empty when the product has no vendor
	SKU        string
	Price      decimal.Decimal
	Available  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ProductDetails is a product enriched with its category name and stock level.
type ProductDetails struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Price        decimal.Decimal `json:"price"`
	Available    bool            `json:"available"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name,omitempty"`
	VendorID     string          `json:"vendor_id,omitempty"`
	Quantity     int             `json:"quantity"`
}

type NewProduct struct {
	Name       string
	CategoryID string
	VendorID   string
	SKU        string
	Price      decimal.Decimal
	Available  bool
}

// ProductUpdate changes only the non-nil fields.
type ProductUpdate struct {
	Name       *string
	CategoryID *string
	SKU        *string
	Price      *decimal.Decimal
	Available  *bool
}
