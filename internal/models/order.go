package models

import "encoding/json"

// Order status values as the SPA presents them.
const (
	OrderStatusOpen      = "open"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

// OrderItem is one line of an order. Prices are integer cents.
type OrderItem struct {
	ProductID UUID   `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

// OrderItems is stored as a JSON column.
type OrderItems []OrderItem

// MarshalDB serializes the items for storage.
func (o OrderItems) MarshalDB() (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalDB deserializes the items from storage.
func (o *OrderItems) UnmarshalDB(data string) error {
	if data == "" {
		*o = nil
		return nil
	}
	return json.Unmarshal([]byte(data), o)
}

// Order represents a customer order.
type Order struct {
	SyncMeta
	CustomerID   UUID       `db:"customer_id" json:"customer_id,omitempty"`
	CustomerName string     `db:"customer_name" json:"customer_name"`
	Items        OrderItems `db:"items" json:"items"`
	TotalCents   int64      `db:"total_cents" json:"total_cents"`
	Status       string     `db:"status" json:"status"`
	Notes        string     `db:"notes" json:"notes,omitempty"`
	CreatedAt    int64      `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Order.
func (Order) TableName() string {
	return "orders"
}

// Kind implements Entity.
func (*Order) Kind() EntityKind {
	return KindOrder
}

// PayloadEquals implements Entity.
func (o *Order) PayloadEquals(other Entity) bool {
	b, ok := other.(*Order)
	if !ok {
		return false
	}
	if o.CustomerID != b.CustomerID || o.CustomerName != b.CustomerName ||
		o.TotalCents != b.TotalCents || o.Status != b.Status || o.Notes != b.Notes {
		return false
	}
	if len(o.Items) != len(b.Items) {
		return false
	}
	for i := range o.Items {
		if o.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}

// Clone implements Entity.
func (o *Order) Clone() Entity {
	cp := *o
	cp.Items = make(OrderItems, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}

// RecalculateTotal sets TotalCents from the line items.
func (o *Order) RecalculateTotal() {
	var total int64
	for _, it := range o.Items {
		total += it.UnitCents * int64(it.Quantity)
	}
	o.TotalCents = total
}
