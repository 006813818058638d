// CRUD repository operations for PedidoList data models.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/models"
	"github.com/pedidolist/backend/internal/uuid"
)

// Repository provides the Local Store operations for entities, customers
// and the sync queue. It is the single owner of the queue; the sync engine
// reads and drains through it and holds no private copy.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// storageErr maps a low-level database error to the storage taxonomy so
// the sync engine can isolate failures per item instead of crashing the
// drain loop.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "disk is full") || strings.Contains(err.Error(), "database or disk is full") {
		return apperrors.Wrap(apperrors.ErrStorageFull, op, err)
	}
	return apperrors.Wrap(apperrors.ErrStorage, op, err)
}

// =====================================================
// Order Operations
// =====================================================

const orderColumns = `local_id, server_id, version, synced_version, last_modified_at, sync_status, is_deleted,
	customer_id, customer_name, items, total_cents, status, notes, created_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	var o models.Order
	var items string
	err := row.Scan(
		&o.LocalID, &o.ServerID, &o.Version, &o.SyncedVersion, &o.LastModifiedAt,
		&o.SyncStatus, &o.IsDeleted,
		&o.CustomerID, &o.CustomerName, &items, &o.TotalCents, &o.Status,
		&o.Notes, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := o.Items.UnmarshalDB(items); err != nil {
		return nil, fmt.Errorf("corrupt order items for %s: %w", o.LocalID, err)
	}
	return &o, nil
}

// GetOrder retrieves an order by local id, including soft-deleted rows so
// a queued delete can still be drained.
func (r *Repository) GetOrder(localID models.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE local_id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	o, err := scanOrder(stmt.QueryRow(localID))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("order not found: %s", localID))
	}
	if err != nil {
		return nil, storageErr("get order", err)
	}
	return o, nil
}

// ListOrders returns non-deleted orders, newest first.
func (r *Repository) ListOrders(limit, offset int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE is_deleted = 0
		ORDER BY created_at DESC LIMIT ? OFFSET ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	rows, err := stmt.Query(limit, offset)
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr("list orders", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list orders", err)
	}
	return orders, nil
}

func (r *Repository) putOrder(tx *sql.Tx, o *models.Order) error {
	query := `
	INSERT INTO orders (` + orderColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(local_id) DO UPDATE SET
		server_id = excluded.server_id,
		version = excluded.version,
		synced_version = excluded.synced_version,
		last_modified_at = excluded.last_modified_at,
		sync_status = excluded.sync_status,
		is_deleted = excluded.is_deleted,
		customer_id = excluded.customer_id,
		customer_name = excluded.customer_name,
		items = excluded.items,
		total_cents = excluded.total_cents,
		status = excluded.status,
		notes = excluded.notes
	`
	items, err := o.Items.MarshalDB()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode order items", err)
	}
	_, err = tx.Exec(query,
		o.LocalID, o.ServerID, o.Version, o.SyncedVersion, o.LastModifiedAt,
		o.SyncStatus, o.IsDeleted,
		o.CustomerID, o.CustomerName, items, o.TotalCents, o.Status,
		o.Notes, o.CreatedAt,
	)
	return storageErr("put order", err)
}

// =====================================================
// Product Operations
// =====================================================

const productColumns = `local_id, server_id, version, synced_version, last_modified_at, sync_status, is_deleted,
	name, sku, price_cents, stock, category, created_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.LocalID, &p.ServerID, &p.Version, &p.SyncedVersion, &p.LastModifiedAt,
		&p.SyncStatus, &p.IsDeleted,
		&p.Name, &p.SKU, &p.PriceCents, &p.Stock, &p.Category, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct retrieves a product by local id, including soft-deleted rows.
func (r *Repository) GetProduct(localID models.UUID) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE local_id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("get product", err)
	}
	p, err := scanProduct(stmt.QueryRow(localID))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("product not found: %s", localID))
	}
	if err != nil {
		return nil, storageErr("get product", err)
	}
	return p, nil
}

// ListProducts returns non-deleted products ordered by name.
func (r *Repository) ListProducts(limit, offset int) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE is_deleted = 0
		ORDER BY name LIMIT ? OFFSET ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	rows, err := stmt.Query(limit, offset)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storageErr("list products", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}
	return products, nil
}

func (r *Repository) putProduct(tx *sql.Tx, p *models.Product) error {
	query := `
	INSERT INTO products (` + productColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(local_id) DO UPDATE SET
		server_id = excluded.server_id,
		version = excluded.version,
		synced_version = excluded.synced_version,
		last_modified_at = excluded.last_modified_at,
		sync_status = excluded.sync_status,
		is_deleted = excluded.is_deleted,
		name = excluded.name,
		sku = excluded.sku,
		price_cents = excluded.price_cents,
		stock = excluded.stock,
		category = excluded.category
	`
	_, err := tx.Exec(query,
		p.LocalID, p.ServerID, p.Version, p.SyncedVersion, p.LastModifiedAt,
		p.SyncStatus, p.IsDeleted,
		p.Name, p.SKU, p.PriceCents, p.Stock, p.Category, p.CreatedAt,
	)
	return storageErr("put product", err)
}

// =====================================================
// Generic Entity Operations
// =====================================================

// GetEntity retrieves an entity by kind and local id.
func (r *Repository) GetEntity(kind models.EntityKind, localID models.UUID) (models.Entity, error) {
	switch kind {
	case models.KindOrder:
		return r.GetOrder(localID)
	case models.KindProduct:
		return r.GetProduct(localID)
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind: %s", kind))
	}
}

// FindByServerID locates a local entity by its server-assigned id.
func (r *Repository) FindByServerID(kind models.EntityKind, serverID string) (models.Entity, error) {
	var table string
	switch kind {
	case models.KindOrder:
		table = models.Order{}.TableName()
	case models.KindProduct:
		table = models.Product{}.TableName()
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind: %s", kind))
	}

	query := `SELECT local_id FROM ` + table + ` WHERE server_id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("find by server id", err)
	}
	var localID models.UUID
	err = stmt.QueryRow(serverID).Scan(&localID)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("no %s with server id %s", kind, serverID))
	}
	if err != nil {
		return nil, storageErr("find by server id", err)
	}
	return r.GetEntity(kind, localID)
}

// PutEntity inserts or overwrites an entity by local id. A fresh local id
// is assigned on insert; the creation timestamp is set once.
func (r *Repository) PutEntity(e models.Entity) (models.UUID, error) {
	meta := e.Meta()
	if meta.LocalID == "" {
		meta.LocalID = models.UUID(uuid.New())
	}
	if meta.LastModifiedAt == 0 {
		meta.LastModifiedAt = time.Now().UnixMilli()
	}
	if meta.SyncStatus == "" {
		meta.SyncStatus = models.SyncStatusPending
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", storageErr("put entity", err)
	}
	if err := r.putEntityTx(tx, e); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", storageErr("put entity", err)
	}
	return meta.LocalID, nil
}

func (r *Repository) putEntityTx(tx *sql.Tx, e models.Entity) error {
	switch v := e.(type) {
	case *models.Order:
		if v.CreatedAt == 0 {
			v.CreatedAt = time.Now().UnixMilli()
		}
		return r.putOrder(tx, v)
	case *models.Product:
		if v.CreatedAt == 0 {
			v.CreatedAt = time.Now().UnixMilli()
		}
		return r.putProduct(tx, v)
	default:
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity type %T", e))
	}
}

// RecordMutation persists a local mutation and enqueues it for sync in a
// single transaction: the write and its queue item are never observed
// separately. Returns the entity's local id.
func (r *Repository) RecordMutation(e models.Entity, action models.Action) (models.UUID, error) {
	meta := e.Meta()
	if meta.LocalID == "" {
		meta.LocalID = models.UUID(uuid.New())
	}
	meta.Touch()
	if action == models.ActionDelete {
		meta.IsDeleted = true
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", storageErr("record mutation", err)
	}
	if err := r.putEntityTx(tx, e); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := r.enqueueTx(tx, e.Kind(), meta.LocalID, action); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", storageErr("record mutation", err)
	}
	return meta.LocalID, nil
}

// ApplyServerRecord overwrites local state with the canonical server record
// after a successful sync or a server-wins resolution. The entity must carry
// the server's version and timestamp; SyncedVersion is aligned and the row
// marked synced.
func (r *Repository) ApplyServerRecord(e models.Entity) error {
	meta := e.Meta()
	meta.SyncedVersion = meta.Version
	meta.SyncStatus = models.SyncStatusSynced

	tx, err := r.db.Begin()
	if err != nil {
		return storageErr("apply server record", err)
	}
	if err := r.putEntityTx(tx, e); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("apply server record", err)
	}
	return nil
}

// MarkEntityError flags an entity whose last sync attempt failed.
func (r *Repository) MarkEntityError(kind models.EntityKind, localID models.UUID) error {
	var table string
	switch kind {
	case models.KindOrder:
		table = models.Order{}.TableName()
	case models.KindProduct:
		table = models.Product{}.TableName()
	default:
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind: %s", kind))
	}
	_, err := r.db.Exec(`UPDATE `+table+` SET sync_status = ? WHERE local_id = ?`,
		models.SyncStatusError, localID)
	return storageErr("mark entity error", err)
}

// PurgeEntity hard-deletes an entity row once the server confirmed its
// deletion.
func (r *Repository) PurgeEntity(kind models.EntityKind, localID models.UUID) error {
	var table string
	switch kind {
	case models.KindOrder:
		table = models.Order{}.TableName()
	case models.KindProduct:
		table = models.Product{}.TableName()
	default:
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind: %s", kind))
	}
	_, err := r.db.Exec(`DELETE FROM `+table+` WHERE local_id = ?`, localID)
	return storageErr("purge entity", err)
}

// =====================================================
// Customer Operations
// =====================================================

// CreateCustomer creates a new customer.
func (r *Repository) CreateCustomer(c *models.Customer) error {
	now := time.Now().UnixMilli()
	c.ID = models.UUID(uuid.New())
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
	INSERT INTO customers (id, name, phone, email, is_deleted, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, c.ID, c.Name, c.Phone, c.Email, c.IsDeleted,
		c.CreatedAt, c.UpdatedAt)
	return storageErr("create customer", err)
}

// GetCustomer retrieves a customer by ID.
func (r *Repository) GetCustomer(id models.UUID) (*models.Customer, error) {
	query := `SELECT id, name, phone, email, is_deleted, created_at, updated_at
		FROM customers WHERE id = ? AND is_deleted = 0`
	var c models.Customer
	err := r.db.QueryRow(query, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email,
		&c.IsDeleted, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("customer not found: %s", id))
	}
	if err != nil {
		return nil, storageErr("get customer", err)
	}
	return &c, nil
}

// ListCustomers returns all customers ordered by name.
func (r *Repository) ListCustomers() ([]*models.Customer, error) {
	query := `SELECT id, name, phone, email, is_deleted, created_at, updated_at
		FROM customers WHERE is_deleted = 0 ORDER BY name`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, storageErr("list customers", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.IsDeleted,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, storageErr("list customers", err)
		}
		customers = append(customers, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list customers", err)
	}
	return customers, nil
}

// UpdateCustomer updates an existing customer.
func (r *Repository) UpdateCustomer(c *models.Customer) error {
	c.Touch()
	query := `UPDATE customers SET name = ?, phone = ?, email = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0`
	result, err := r.db.Exec(query, c.Name, c.Phone, c.Email, c.UpdatedAt, c.ID)
	if err != nil {
		return storageErr("update customer", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("customer not found: %s", c.ID))
	}
	return nil
}

// DeleteCustomer soft deletes a customer.
func (r *Repository) DeleteCustomer(id models.UUID) error {
	query := `UPDATE customers SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0`
	result, err := r.db.Exec(query, time.Now().UnixMilli(), id)
	if err != nil {
		return storageErr("delete customer", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("customer not found: %s", id))
	}
	return nil
}
