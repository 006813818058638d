// Sync queue persistence: the queue lives in the same database as the
// entities and is owned exclusively by the Repository.
package store

import (
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/logging"
	"github.com/pedidolist/backend/internal/models"
	"github.com/pedidolist/backend/internal/uuid"
)

const queueColumns = `id, entity_kind, entity_id, action, enqueued_at, retries, last_error, next_attempt_at, unsyncable`

// Enqueue appends a mutation to the sync queue. Never blocks on network.
func (r *Repository) Enqueue(kind models.EntityKind, entityID models.UUID, action models.Action) (models.UUID, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", storageErr("enqueue", err)
	}
	id, err := r.enqueueItemTx(tx, kind, entityID, action)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", storageErr("enqueue", err)
	}
	return id, nil
}

func (r *Repository) enqueueTx(tx *sql.Tx, kind models.EntityKind, entityID models.UUID, action models.Action) error {
	_, err := r.enqueueItemTx(tx, kind, entityID, action)
	return err
}

func (r *Repository) enqueueItemTx(tx *sql.Tx, kind models.EntityKind, entityID models.UUID, action models.Action) (models.UUID, error) {
	now := time.Now().UnixMilli()
	id := models.UUID(uuid.New())

	query := `
	INSERT INTO sync_queue (` + queueColumns + `)
	VALUES (?, ?, ?, ?, ?, 0, '', ?, 0)
	`
	if _, err := tx.Exec(query, id, kind, entityID, action, now, now); err != nil {
		return "", storageErr("enqueue", err)
	}

	logging.Debug("Mutation enqueued", map[string]interface{}{
		"queue_id":    id,
		"entity_kind": kind,
		"entity_id":   entityID,
		"action":      action,
	})
	return id, nil
}

func scanQueueItem(row interface{ Scan(...interface{}) error }) (*models.SyncQueueItem, error) {
	var item models.SyncQueueItem
	err := row.Scan(&item.ID, &item.EntityKind, &item.EntityID, &item.Action,
		&item.EnqueuedAt, &item.Retries, &item.LastError, &item.NextAttemptAt,
		&item.Unsyncable)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListPending returns queue items due for a drain attempt, in FIFO order by
// enqueue time. Items flagged unsyncable or still inside their backoff
// window are excluded.
func (r *Repository) ListPending(now time.Time) ([]*models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
		WHERE unsyncable = 0 AND next_attempt_at <= ?
		ORDER BY enqueued_at ASC, id ASC`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	rows, err := stmt.Query(now.UnixMilli())
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, storageErr("list pending", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list pending", err)
	}
	return items, nil
}

// CountPending returns the number of queue items not yet confirmed,
// including ones waiting out a backoff or flagged unsyncable.
func (r *Repository) CountPending() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&count)
	if err != nil {
		return 0, storageErr("count pending", err)
	}
	return count, nil
}

// MarkSynced removes all queue items for an entity once the server
// confirmed the corresponding write.
func (r *Repository) MarkSynced(kind models.EntityKind, entityID models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM sync_queue WHERE entity_kind = ? AND entity_id = ?`,
		kind, entityID)
	return storageErr("mark synced", err)
}

// QueueItemExists reports whether a queue item is still present. An item
// can disappear mid-cycle when an earlier item for the same entity is
// confirmed and MarkSynced clears its siblings.
func (r *Repository) QueueItemExists(queueID models.UUID) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sync_queue WHERE id = ?`, queueID).Scan(&n)
	if err != nil {
		return false, storageErr("queue item exists", err)
	}
	return n > 0, nil
}

// RemoveQueueItem removes a single queue item. Used when the underlying
// entity no longer exists locally.
func (r *Repository) RemoveQueueItem(queueID models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, queueID)
	return storageErr("remove queue item", err)
}

// IncrementRetry bumps the retry count, records the error and pushes the
// next attempt out by an exponential backoff. The item is never removed.
func (r *Repository) IncrementRetry(queueID models.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	var retries int
	err := r.db.QueryRow(`SELECT retries FROM sync_queue WHERE id = ?`, queueID).Scan(&retries)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("queue item not found: %s", queueID))
	}
	if err != nil {
		return storageErr("increment retry", err)
	}

	retries++
	next := time.Now().Add(Backoff(retries)).UnixMilli()

	_, err = r.db.Exec(`UPDATE sync_queue SET retries = ?, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		retries, msg, next, queueID)
	if err != nil {
		return storageErr("increment retry", err)
	}

	logging.Warn("Sync attempt failed, retry scheduled", map[string]interface{}{
		"queue_id":   queueID,
		"retries":    retries,
		"backoff_ms": Backoff(retries).Milliseconds(),
		"error":      msg,
	})
	return nil
}

// MarkUnsyncable flags an item whose last error is non-retryable (bad
// credential, rejected payload). The item stays in the queue so a human
// can intervene; RetryUnsyncable puts it back in rotation.
func (r *Repository) MarkUnsyncable(queueID models.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	result, err := r.db.Exec(`UPDATE sync_queue SET unsyncable = 1, last_error = ? WHERE id = ?`,
		msg, queueID)
	if err != nil {
		return storageErr("mark unsyncable", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("queue item not found: %s", queueID))
	}
	return nil
}

// RetryUnsyncable resets all unsyncable items for another attempt, e.g.
// after the user re-authenticated. Returns the number reset.
func (r *Repository) RetryUnsyncable() (int, error) {
	now := time.Now().UnixMilli()
	result, err := r.db.Exec(
		`UPDATE sync_queue SET unsyncable = 0, retries = 0, last_error = '', next_attempt_at = ? WHERE unsyncable = 1`,
		now)
	if err != nil {
		return 0, storageErr("retry unsyncable", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// Backoff returns the exponential delay before retry n: 1s, 2s, 4s, ...
// capped at 5 minutes.
func Backoff(retries int) time.Duration {
	if retries < 1 {
		return 0
	}
	if retries > 9 { // 2^9 s > cap already
		retries = 9
	}
	d := time.Second << uint(retries-1)
	if max := 5 * time.Minute; d > max {
		d = max
	}
	return d
}

// =====================================================
// Conflict Log Operations
// =====================================================

// CreateConflictLog persists a resolved conflict for user awareness.
func (r *Repository) CreateConflictLog(log *models.ConflictLog) error {
	log.ID = models.UUID(uuid.New())
	if log.DetectedAt == 0 {
		log.DetectedAt = time.Now().UnixMilli()
	}

	query := `
	INSERT INTO conflict_log (id, entity_kind, entity_id, local_timestamp, server_timestamp, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, log.ID, log.EntityKind, log.EntityID,
		log.LocalTimestamp, log.ServerTimestamp, log.Resolution, log.DetectedAt)
	return storageErr("create conflict log", err)
}

// ListConflictLogs returns the most recent resolved conflicts.
func (r *Repository) ListConflictLogs(limit int) ([]*models.ConflictLog, error) {
	query := `SELECT id, entity_kind, entity_id, local_timestamp, server_timestamp, resolution, detected_at
		FROM conflict_log ORDER BY detected_at DESC LIMIT ?`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, storageErr("list conflict logs", err)
	}
	defer rows.Close()

	var logs []*models.ConflictLog
	for rows.Next() {
		var l models.ConflictLog
		if err := rows.Scan(&l.ID, &l.EntityKind, &l.EntityID, &l.LocalTimestamp,
			&l.ServerTimestamp, &l.Resolution, &l.DetectedAt); err != nil {
			return nil, storageErr("list conflict logs", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list conflict logs", err)
	}
	return logs, nil
}

// =====================================================
// Retention
// =====================================================

// ExpireStaleRecords purges synced entities whose last modification is older
// than maxAgeDays, bounding storage growth. Records with pending queue items
// are never purged. Returns the number of days until the next record would
// expire (for UI warnings) and the count purged.
func (r *Repository) ExpireStaleRecords(maxAgeDays int) (daysRemaining int, purged int, err error) {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays).UnixMilli()

	for _, table := range []string{models.Order{}.TableName(), models.Product{}.TableName()} {
		result, execErr := r.db.Exec(`
			DELETE FROM `+table+` WHERE last_modified_at < ? AND sync_status = ?
			AND local_id NOT IN (SELECT entity_id FROM sync_queue)`,
			cutoff, models.SyncStatusSynced)
		if execErr != nil {
			return 0, purged, storageErr("expire stale records", execErr)
		}
		rows, _ := result.RowsAffected()
		purged += int(rows)
	}

	// Oldest surviving record determines when the next expiry would hit.
	var oldest sql.NullInt64
	err = r.db.QueryRow(`
		SELECT MIN(t) FROM (
			SELECT MIN(last_modified_at) AS t FROM orders WHERE sync_status = ?
			UNION ALL
			SELECT MIN(last_modified_at) AS t FROM products WHERE sync_status = ?
		)`, models.SyncStatusSynced, models.SyncStatusSynced).Scan(&oldest)
	if err != nil {
		return 0, purged, storageErr("expire stale records", err)
	}

	daysRemaining = maxAgeDays
	if oldest.Valid {
		ageDays := int(time.Since(time.UnixMilli(oldest.Int64)).Hours() / 24)
		daysRemaining = maxAgeDays - ageDays
		if daysRemaining < 0 {
			daysRemaining = 0
		}
	}

	if purged > 0 {
		logging.Info("Stale records purged", map[string]interface{}{
			"purged":       purged,
			"max_age_days": maxAgeDays,
		})
	}
	return daysRemaining, purged, nil
}
