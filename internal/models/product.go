package models

// Product represents a sellable item in the catalog.
type Product struct {
	SyncMeta
	Name       string `db:"name" json:"name"`
	SKU        string `db:"sku" json:"sku,omitempty"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Stock      int    `db:"stock" json:"stock"`
	Category   string `db:"category" json:"category,omitempty"`
	CreatedAt  int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Product.
func (Product) TableName() string {
	return "products"
}

// Kind implements Entity.
func (*Product) Kind() EntityKind {
	return KindProduct
}

// PayloadEquals implements Entity.
func (p *Product) PayloadEquals(other Entity) bool {
	b, ok := other.(*Product)
	if !ok {
		return false
	}
	return p.Name == b.Name && p.SKU == b.SKU && p.PriceCents == b.PriceCents &&
		p.Stock == b.Stock && p.Category == b.Category
}

// Clone implements Entity.
func (p *Product) Clone() Entity {
	cp := *p
	return &cp
}
