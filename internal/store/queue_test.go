package store

import (
	"fmt"
	"testing"
	"time"

	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/models"
	"github.com/pedidolist/backend/internal/uuid"
)

// insertQueueItem writes a queue row with an explicit enqueue time so
// ordering tests do not depend on the wall clock.
func insertQueueItem(t *testing.T, repo *Repository, entityID models.UUID, enqueuedAt int64) models.UUID {
	t.Helper()
	id := models.UUID(uuid.New())
	_, err := repo.db.Exec(`
		INSERT INTO sync_queue (id, entity_kind, entity_id, action, enqueued_at, retries, last_error, next_attempt_at, unsyncable)
		VALUES (?, ?, ?, ?, ?, 0, '', 0, 0)`,
		id, models.KindOrder, entityID, models.ActionUpdate, enqueuedAt)
	if err != nil {
		t.Fatalf("insert queue item: %v", err)
	}
	return id
}

func TestListPendingFIFO(t *testing.T) {
	repo := newTestRepo(t)

	insertQueueItem(t, repo, "entity-c", 3000)
	insertQueueItem(t, repo, "entity-a", 1000)
	insertQueueItem(t, repo, "entity-b", 2000)

	items, err := repo.ListPending(time.Now())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	want := []models.UUID{"entity-a", "entity-b", "entity-c"}
	for i, item := range items {
		if item.EntityID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, item.EntityID, want[i])
		}
	}
}

func TestListPendingSkipsBackoffWindow(t *testing.T) {
	repo := newTestRepo(t)

	due := insertQueueItem(t, repo, "due", 1000)
	waiting := insertQueueItem(t, repo, "waiting", 2000)
	future := time.Now().Add(time.Hour).UnixMilli()
	if _, err := repo.db.Exec(`UPDATE sync_queue SET next_attempt_at = ? WHERE id = ?`, future, waiting); err != nil {
		t.Fatalf("update: %v", err)
	}

	items, err := repo.ListPending(time.Now())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 1 || items[0].ID != due {
		t.Errorf("expected only the due item, got %d items", len(items))
	}

	// Still counted: the backoff window defers work, it does not drop it
	count, err := repo.CountPending()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestIncrementRetrySchedulesBackoff(t *testing.T) {
	repo := newTestRepo(t)

	id := insertQueueItem(t, repo, "entity-a", 1000)
	if err := repo.IncrementRetry(id, fmt.Errorf("connection refused")); err != nil {
		t.Fatalf("increment retry: %v", err)
	}

	items, err := repo.ListPending(time.Now())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 0 {
		t.Error("item inside its backoff window must not be listed")
	}

	items, err = repo.ListPending(time.Now().Add(2 * time.Second))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 1 {
		t.Fatal("item must be due again after the backoff")
	}
	if items[0].Retries != 1 {
		t.Errorf("retries = %d, want 1", items[0].Retries)
	}
	if items[0].LastError == "" {
		t.Error("last error not recorded")
	}

	if err := repo.IncrementRetry("missing", nil); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND for unknown item, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{9, 5 * time.Minute},
		{20, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := Backoff(tt.retries); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.retries, got, tt.want)
		}
	}
}

func TestMarkUnsyncableAndRetry(t *testing.T) {
	repo := newTestRepo(t)

	id := insertQueueItem(t, repo, "entity-a", 1000)
	if err := repo.MarkUnsyncable(id, fmt.Errorf("401 unauthorized")); err != nil {
		t.Fatalf("mark unsyncable: %v", err)
	}

	items, err := repo.ListPending(time.Now())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 0 {
		t.Error("unsyncable items must be excluded from the drain")
	}

	// Never deleted, a human may intervene
	count, _ := repo.CountPending()
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	reset, err := repo.RetryUnsyncable()
	if err != nil {
		t.Fatalf("retry unsyncable: %v", err)
	}
	if reset != 1 {
		t.Errorf("reset = %d, want 1", reset)
	}
	items, _ = repo.ListPending(time.Now())
	if len(items) != 1 || items[0].Retries != 0 {
		t.Error("reset item must be due again with a clean retry count")
	}
}

func TestMarkSyncedRemovesAllItemsForEntity(t *testing.T) {
	repo := newTestRepo(t)

	insertQueueItem(t, repo, "entity-a", 1000)
	insertQueueItem(t, repo, "entity-a", 2000)
	insertQueueItem(t, repo, "entity-b", 3000)

	if err := repo.MarkSynced(models.KindOrder, "entity-a"); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	items, err := repo.ListPending(time.Now())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 1 || items[0].EntityID != "entity-b" {
		t.Errorf("expected only entity-b to remain, got %d items", len(items))
	}
}

func TestConflictLogRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	log := &models.ConflictLog{
		EntityKind:      models.KindProduct,
		EntityID:        "entity-a",
		LocalTimestamp:  4000,
		ServerTimestamp: 5000,
		Resolution:      "server_wins",
	}
	if err := repo.CreateConflictLog(log); err != nil {
		t.Fatalf("create: %v", err)
	}
	if log.ID == "" || log.DetectedAt == 0 {
		t.Error("id and detection time must be assigned")
	}

	logs, err := repo.ListConflictLogs(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("len = %d, want 1", len(logs))
	}
	if logs[0].Resolution != "server_wins" || logs[0].ServerTimestamp != 5000 {
		t.Errorf("unexpected log: %+v", logs[0])
	}
}

func TestExpireStaleRecords(t *testing.T) {
	repo := newTestRepo(t)

	// Old and fully synced: eligible for purge
	stale := testProduct()
	if _, err := repo.PutEntity(stale); err != nil {
		t.Fatalf("put: %v", err)
	}
	old := time.Now().AddDate(0, 0, -40).UnixMilli()
	if _, err := repo.db.Exec(`UPDATE products SET sync_status = ?, last_modified_at = ? WHERE local_id = ?`,
		models.SyncStatusSynced, old, stale.LocalID); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Old but with a pending queue item: must survive
	queued := testOrder()
	queuedID, err := repo.RecordMutation(queued, models.ActionCreate)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := repo.db.Exec(`UPDATE orders SET sync_status = ?, last_modified_at = ? WHERE local_id = ?`,
		models.SyncStatusSynced, old, queuedID); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, purged, err := repo.ExpireStaleRecords(30)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if _, err := repo.GetProduct(stale.LocalID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Error("stale synced product should be gone")
	}
	if _, err := repo.GetOrder(queuedID); err != nil {
		t.Errorf("order with queued work must never be purged: %v", err)
	}
}

func TestExpireStaleRecordsDaysRemaining(t *testing.T) {
	repo := newTestRepo(t)

	p := testProduct()
	if _, err := repo.PutEntity(p); err != nil {
		t.Fatalf("put: %v", err)
	}
	aged := time.Now().AddDate(0, 0, -25).UnixMilli()
	if _, err := repo.db.Exec(`UPDATE products SET sync_status = ?, last_modified_at = ? WHERE local_id = ?`,
		models.SyncStatusSynced, aged, p.LocalID); err != nil {
		t.Fatalf("update: %v", err)
	}

	days, purged, err := repo.ExpireStaleRecords(30)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0", purged)
	}
	if days != 5 {
		t.Errorf("days remaining = %d, want 5", days)
	}
}
