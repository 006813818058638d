// Package sync orchestrates the offline mutation queue against the remote
// PedidoList API.
package sync

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/logging"
	"github.com/pedidolist/backend/internal/models"
	"github.com/pedidolist/backend/internal/store"
	"github.com/pedidolist/backend/internal/sync/conflict"
)

// State is the engine's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// RemoteAPI is the contract the engine requires of the remote side.
type RemoteAPI interface {
	Create(ctx context.Context, e models.Entity) (models.Entity, error)
	Update(ctx context.Context, e models.Entity) (models.Entity, error)
	Delete(ctx context.Context, kind models.EntityKind, serverID string, version int) error
	Fetch(ctx context.Context, kind models.EntityKind, serverID string) (models.Entity, error)
}

// Result summarizes one drain cycle.
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Synced    int
	Failed    int
	Conflicts int
	Remaining int
}

// Engine drains the sync queue: one cycle at a time, items strictly in
// enqueue order, per-item failures isolated so a single bad record never
// stalls the rest of the queue.
type Engine struct {
	repo     *store.Repository
	api      RemoteAPI
	resolver *conflict.Resolver

	mu        sync.Mutex
	state     State
	lastErr   error
	lastSync  *time.Time
	observers []Observer
}

// NewEngine creates an Engine.
func NewEngine(repo *store.Repository, api RemoteAPI) *Engine {
	return &Engine{
		repo:     repo,
		api:      api,
		resolver: conflict.NewResolver(),
		state:    StateIdle,
	}
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastSync returns the completion time of the last successful cycle.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastError returns the error that aborted the last cycle, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// AddObserver registers a read-only event observer.
func (e *Engine) AddObserver(o Observer) {
	if o == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	obs := make([]Observer, len(e.observers))
	copy(obs, e.observers)
	e.mu.Unlock()

	for _, o := range obs {
		o.OnSyncEvent(ev)
	}
}

// TriggerDrain starts a drain cycle in the background. A trigger received
// while a cycle is running is a no-op (not queued): the next natural
// trigger picks up remaining work. Returns whether a cycle was started.
func (e *Engine) TriggerDrain(ctx context.Context) bool {
	e.mu.Lock()
	if e.state == StateSyncing {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	go func() {
		if _, err := e.Drain(ctx); err != nil && !apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.ErrorWithCode("Drain cycle failed", string(apperrors.CodeOf(err)), err, nil)
		}
	}()
	return true
}

// Drain runs one complete pass over all currently due queue items.
func (e *Engine) Drain(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.state == StateSyncing {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	e.state = StateSyncing
	e.lastErr = nil
	e.mu.Unlock()

	result := &Result{StartTime: time.Now()}

	items, err := e.repo.ListPending(result.StartTime)
	if err != nil {
		// Failing to read the queue aborts the whole cycle
		e.finish(result, err)
		return result, err
	}

	e.emit(SyncStarted{Pending: len(items), At: result.StartTime})
	logging.Info("Drain cycle started", map[string]interface{}{"pending": len(items)})

	for _, item := range items {
		// Cancellation is honored between items only, never mid-item, so
		// a queue item and its entity are never left half-updated.
		select {
		case <-ctx.Done():
			e.finishCancelled(result)
			return result, ctx.Err()
		default:
		}

		e.processItem(ctx, item, result)
	}

	e.finish(result, nil)
	return result, nil
}

// finish commits the cycle outcome and emits the terminal event.
func (e *Engine) finish(result *Result, cycleErr error) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if remaining, err := e.repo.CountPending(); err == nil {
		result.Remaining = remaining
	}

	e.mu.Lock()
	if cycleErr != nil {
		e.state = StateError
		e.lastErr = cycleErr
	} else {
		e.state = StateIdle
		end := result.EndTime
		e.lastSync = &end
	}
	e.mu.Unlock()

	if cycleErr != nil {
		e.emit(SyncError{Error: cycleErr.Error(), At: result.EndTime})
		return
	}
	e.emit(SyncCompleted{
		Synced:    result.Synced,
		Failed:    result.Failed,
		Conflicts: result.Conflicts,
		Remaining: result.Remaining,
		Duration:  result.Duration,
		At:        result.EndTime,
	})
	logging.Info("Drain cycle completed", map[string]interface{}{
		"synced":    result.Synced,
		"failed":    result.Failed,
		"conflicts": result.Conflicts,
		"remaining": result.Remaining,
	})
}

// finishCancelled ends a cycle interrupted between items. Processed items
// keep their committed state; the rest stay queued. Not an error state.
func (e *Engine) finishCancelled(result *Result) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()

	logging.Info("Drain cycle cancelled between items", map[string]interface{}{
		"synced": result.Synced,
	})
}

// processItem runs the per-item drain algorithm. All failures are isolated
// to the item: bookkeeping is updated and the loop moves on.
func (e *Engine) processItem(ctx context.Context, item *models.SyncQueueItem, result *Result) {
	// The cycle works off a snapshot; an earlier item for the same entity
	// may already have confirmed and cleared this one.
	if exists, err := e.repo.QueueItemExists(item.ID); err == nil && !exists {
		return
	}

	local, err := e.repo.GetEntity(item.EntityKind, item.EntityID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		// Entity vanished locally; nothing left to sync for this item
		logging.Warn("Queue item references missing entity, dropping", map[string]interface{}{
			"queue_id":  item.ID,
			"entity_id": item.EntityID,
		})
		e.repo.RemoveQueueItem(item.ID)
		return
	}
	if err != nil {
		e.itemFailed(item, local, err, result)
		return
	}

	meta := local.Meta()
	action := item.Action
	// A record deleted locally before its create/update ever synced is
	// drained as a delete of the current state.
	if meta.IsDeleted && action != models.ActionDelete {
		action = models.ActionDelete
	}

	// Conflict pre-check: only meaningful when the server already knows
	// the record. Fetch failures here are logged and treated as "no
	// conflict data available"; the submit proceeds optimistically.
	if (action == models.ActionUpdate || action == models.ActionDelete) && meta.ServerID != "" {
		server := e.fetchForComparison(ctx, item.EntityKind, meta.ServerID)
		if server != nil && e.resolver.DetectConflict(local, server) {
			if e.resolveConflict(local, server, item, result) {
				return // server won; pending change discarded, no write sent
			}
			// Local won: submit against the server's version so the write
			// is not rejected as stale.
			meta.Version = server.Meta().Version
			meta.SyncedVersion = server.Meta().Version
		}
	}

	serverRec, err := e.submit(ctx, action, local)

	if err != nil && apperrors.Is(err, apperrors.ErrSyncConflict) {
		// Server-detected conflict: re-fetch, re-resolve, and retry the
		// submission once. A second 409 leaves the item queued.
		var settled bool
		serverRec, settled, err = e.retryAfterConflict(ctx, action, local, item, result)
		if settled {
			return // resolution applied server state; nothing to submit
		}
	}

	if err != nil {
		e.itemFailed(item, local, err, result)
		return
	}

	e.commitSuccess(action, local, serverRec, item, result)
}

// fetchForComparison best-effort loads the server representation.
func (e *Engine) fetchForComparison(ctx context.Context, kind models.EntityKind, serverID string) models.Entity {
	server, err := e.api.Fetch(ctx, kind, serverID)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			logging.Warn("Conflict comparison fetch failed, proceeding optimistically", map[string]interface{}{
				"server_id": serverID,
				"error":     err.Error(),
			})
		}
		return nil
	}
	return server
}

// resolveConflict adjudicates via last-write-wins. Returns true when the
// server won and the item is fully settled (local overwritten, queue
// cleared, no network write).
func (e *Engine) resolveConflict(local, server models.Entity, item *models.SyncQueueItem, result *Result) bool {
	res := e.resolver.ResolveLastWriteWins(local, server)
	result.Conflicts++

	if err := e.repo.CreateConflictLog(res.Log); err != nil {
		logging.Error("Failed to persist conflict log", err, nil)
	}
	e.emit(ConflictDetected{
		Kind:    local.Kind(),
		LocalID: local.Meta().LocalID,
		Winner:  string(res.Winner),
		At:      time.Now(),
	})

	if res.Winner != conflict.WinnerServer {
		return false
	}

	// Whole-record overwrite: the local pending change is discarded.
	resolved := res.Resolved
	resolved.Meta().LocalID = local.Meta().LocalID
	if err := e.repo.ApplyServerRecord(resolved); err != nil {
		e.itemFailed(item, local, err, result)
		return true
	}
	if err := e.repo.MarkSynced(item.EntityKind, item.EntityID); err != nil {
		e.itemFailed(item, local, err, result)
		return true
	}
	result.Synced++
	e.emit(ItemSynced{
		Kind:     item.EntityKind,
		LocalID:  item.EntityID,
		ServerID: resolved.Meta().ServerID,
		Action:   item.Action,
		At:       time.Now(),
	})
	return true
}

// submit issues the mutation to the remote API.
func (e *Engine) submit(ctx context.Context, action models.Action, local models.Entity) (models.Entity, error) {
	meta := local.Meta()
	switch action {
	case models.ActionCreate:
		return e.api.Create(ctx, local)
	case models.ActionUpdate:
		if meta.ServerID == "" {
			// Created offline and the create has not landed yet; the
			// idempotency key makes this safe either way.
			return e.api.Create(ctx, local)
		}
		return e.api.Update(ctx, local)
	case models.ActionDelete:
		if meta.ServerID == "" {
			// Never reached the server; settles locally
			return nil, nil
		}
		return nil, e.api.Delete(ctx, local.Kind(), meta.ServerID, meta.Version)
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown action "+string(action))
	}
}

// retryAfterConflict handles an HTTP 409: one re-fetch, one re-resolution,
// one resubmit. settled is true only when the resolution applied the server
// state and the item needs no further commit; a resubmitted delete that
// succeeds returns (nil, false, nil) and still commits normally.
func (e *Engine) retryAfterConflict(ctx context.Context, action models.Action, local models.Entity, item *models.SyncQueueItem, result *Result) (serverRec models.Entity, settled bool, err error) {
	meta := local.Meta()
	if meta.ServerID == "" {
		return nil, false, apperrors.New(apperrors.ErrSyncConflict, "conflict on create")
	}
	server := e.fetchForComparison(ctx, item.EntityKind, meta.ServerID)
	if server == nil {
		return nil, false, apperrors.New(apperrors.ErrSyncConflict, "conflict state unavailable")
	}
	if e.resolver.DetectConflict(local, server) {
		if e.resolveConflict(local, server, item, result) {
			return nil, true, nil
		}
	}
	// Local still current: align to the server's version and resubmit once
	meta.Version = server.Meta().Version
	meta.SyncedVersion = server.Meta().Version
	serverRec, err = e.submit(ctx, action, local)
	return serverRec, false, err
}

// commitSuccess reconciles the server's canonical record into local state
// and clears the entity's queue items. Committed immediately per item,
// never batched.
func (e *Engine) commitSuccess(action models.Action, local models.Entity, serverRec models.Entity, item *models.SyncQueueItem, result *Result) {
	meta := local.Meta()

	if action == models.ActionDelete {
		if err := e.repo.PurgeEntity(item.EntityKind, item.EntityID); err != nil {
			e.itemFailed(item, local, err, result)
			return
		}
	} else {
		merged := serverRec
		merged.Meta().LocalID = meta.LocalID
		if err := e.repo.ApplyServerRecord(merged); err != nil {
			e.itemFailed(item, local, err, result)
			return
		}
		meta = merged.Meta()
	}

	if err := e.repo.MarkSynced(item.EntityKind, item.EntityID); err != nil {
		e.itemFailed(item, local, err, result)
		return
	}

	result.Synced++
	e.emit(ItemSynced{
		Kind:     item.EntityKind,
		LocalID:  item.EntityID,
		ServerID: meta.ServerID,
		Action:   action,
		At:       time.Now(),
	})
}

// itemFailed records a failed attempt. Non-retryable errors flag the item
// unsyncable and mark the entity, but the item is never deleted: a human
// may need to intervene.
func (e *Engine) itemFailed(item *models.SyncQueueItem, local models.Entity, cause error, result *Result) {
	result.Failed++
	code := apperrors.CodeOf(cause)
	unsyncable := !apperrors.Retryable(cause)

	if unsyncable {
		if err := e.repo.MarkUnsyncable(item.ID, cause); err != nil {
			logging.Error("Failed to flag queue item", err, nil)
		}
		if err := e.repo.MarkEntityError(item.EntityKind, item.EntityID); err != nil {
			logging.Error("Failed to mark entity error", err, nil)
		}
	} else {
		if err := e.repo.IncrementRetry(item.ID, cause); err != nil {
			logging.Error("Failed to record retry", err, nil)
		}
	}

	var localID models.UUID
	if local != nil {
		localID = local.Meta().LocalID
	}
	e.emit(ItemFailed{
		Kind:       item.EntityKind,
		LocalID:    localID,
		Code:       string(code),
		Error:      cause.Error(),
		Retries:    item.Retries + 1,
		Unsyncable: unsyncable,
		At:         time.Now(),
	})
}
