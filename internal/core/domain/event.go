package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"
)

type OrderEvent struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"event_type"`
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Status      OrderStatus     `json:"status,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
