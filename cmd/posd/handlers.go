// HTTP handlers for the local SPA API.
package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pedidolist/backend/internal/connectivity"
	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/metrics"
	"github.com/pedidolist/backend/internal/models"
	"github.com/pedidolist/backend/internal/store"
	syncpkg "github.com/pedidolist/backend/internal/sync"
	"github.com/pedidolist/backend/internal/sync/scheduler"
	"github.com/pedidolist/backend/internal/uuid"
)

// Server bundles the components the HTTP surface exposes.
type Server struct {
	repo      *store.Repository
	engine    *syncpkg.Engine
	scheduler *scheduler.Scheduler
	monitor   *connectivity.Monitor
	reporter  *metrics.Reporter
	hub       *WSHub
	retention int
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/sync", s.handleSyncNow)
	mux.HandleFunc("POST /api/sync/retry", s.handleRetryUnsyncable)
	mux.HandleFunc("GET /api/conflicts", s.handleConflicts)
	mux.HandleFunc("GET /api/events", s.hub.ServeWS)

	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("PUT /api/orders/{id}", s.handleUpdateOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", s.handleDeleteOrder)

	mux.HandleFunc("GET /api/products", s.handleListProducts)
	mux.HandleFunc("POST /api/products", s.handleCreateProduct)
	mux.HandleFunc("GET /api/products/{id}", s.handleGetProduct)
	mux.HandleFunc("PUT /api/products/{id}", s.handleUpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", s.handleDeleteProduct)

	mux.HandleFunc("GET /api/customers", s.handleListCustomers)
	mux.HandleFunc("POST /api/customers", s.handleCreateCustomer)
	mux.HandleFunc("PUT /api/customers/{id}", s.handleUpdateCustomer)
	mux.HandleFunc("DELETE /api/customers/{id}", s.handleDeleteCustomer)

	return mux
}

// pathID extracts the {id} path parameter, rejecting malformed ids before
// they reach the store.
func pathID(r *http.Request) (models.UUID, error) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "malformed id", err)
	}
	return models.UUID(id), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		status = http.StatusBadRequest
	case apperrors.ErrSyncInProgress:
		status = http.StatusConflict
	case apperrors.ErrStorageFull:
		status = http.StatusInsufficientStorage
	}
	writeJSON(w, status, map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "pedidolist-posd"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.repo.CountPending()
	if err != nil {
		writeError(w, err)
		return
	}
	daysRemaining, _, err := s.repo.ExpireStaleRecords(s.retention)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":          s.monitor.IsOnline(),
		"engine_state":    string(s.engine.State()),
		"pending_items":   pending,
		"last_sync":       s.engine.LastSync(),
		"retention_days":  daysRemaining,
		"metrics":         s.reporter.Snapshot(),
	})
}

func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRetryUnsyncable(w http.ResponseWriter, r *http.Request) {
	reset, err := s.repo.RetryUnsyncable()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	logs, err := s.repo.ListConflictLogs(100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// =====================================================
// Orders
// =====================================================

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.repo.ListOrders(500, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := s.repo.GetOrder(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var order models.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed order", err))
		return
	}
	order.LocalID = ""
	order.ServerID = ""
	order.RecalculateTotal()
	if order.Status == "" {
		order.Status = models.OrderStatusOpen
	}
	if _, err := s.repo.RecordMutation(&order, models.ActionCreate); err != nil {
		writeError(w, err)
		return
	}
	s.drainIfOnline()
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	existing, err := s.repo.GetOrder(id)
	if err != nil {
		writeError(w, err)
		return
	}
	var order models.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed order", err))
		return
	}
	// Sync metadata is owned locally; only the payload is client-writable
	order.SyncMeta = existing.SyncMeta
	order.CreatedAt = existing.CreatedAt
	order.RecalculateTotal()
	if _, err := s.repo.RecordMutation(&order, models.ActionUpdate); err != nil {
		writeError(w, err)
		return
	}
	s.drainIfOnline()
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := s.repo.GetOrder(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.repo.RecordMutation(order, models.ActionDelete); err != nil {
		writeError(w, err)
		return
	}
	s.drainIfOnline()
	w.WriteHeader(http.StatusNoContent)
}

// =====================================================
// Products
// =====================================================

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.repo.ListProducts(500, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	product, err := s.repo.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed product", err))
		return
	}
	if product.Name == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, "product name is required"))
		return
	}
	product.LocalID = ""
	product.ServerID = ""
	if _, err := s.repo.RecordMutation(&product, models.ActionCreate); err != nil {
		writeError(w, err)
		return
	}
	s.drainIfOnline()
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	existing, err := s.repo.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed product", err))
		return
	}
	product.SyncMeta = existing.SyncMeta
	product.CreatedAt = existing.CreatedAt
	if _, err := s.repo.RecordMutation(&product, models.ActionUpdate); err != nil {
		writeError(w, err)
		return
	}
	s.drainIfOnline()
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	product, err := s.repo.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.repo.RecordMutation(product, models.ActionDelete); err != nil {
		writeError(w, err)
		return
	}
	s.drainIfOnline()
	w.WriteHeader(http.StatusNoContent)
}

// =====================================================
// Customers
// =====================================================

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.repo.ListCustomers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed customer", err))
		return
	}
	if c.Name == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, "customer name is required"))
		return
	}
	if err := s.repo.CreateCustomer(&c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed customer", err))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c.ID = id
	if err := s.repo.UpdateCustomer(&c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.repo.DeleteCustomer(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// drainIfOnline attempts an immediate background sync after a local
// mutation; offline it stays queued for the next settled reconnect.
// The drain outlives the request, so it runs on its own context; each
// network call inside it is bounded by the API client's timeout.
func (s *Server) drainIfOnline() {
	if s.monitor.IsOnline() {
		s.engine.TriggerDrain(context.Background())
	}
}
