package models

import "time"

// Customer is a local-only record referenced by orders. Customers are not
// synchronized; the remote contract covers orders and products.
type Customer struct {
	ID        UUID   `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	Email     string `db:"email" json:"email,omitempty"`
	IsDeleted bool   `db:"is_deleted" json:"is_deleted"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Customer.
func (Customer) TableName() string {
	return "customers"
}

// Touch updates the UpdatedAt timestamp.
func (c *Customer) Touch() {
	c.UpdatedAt = time.Now().UnixMilli()
}
