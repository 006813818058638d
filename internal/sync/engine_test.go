package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/models"
	"github.com/pedidolist/backend/internal/store"
)

func newTestRepo(t *testing.T) *store.Repository {
	t.Helper()

	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := store.NewMigrator(db.DB).Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := store.NewRepository(db.DB)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// fakeAPI scripts the remote side and records every call in order.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	createFn func(e models.Entity) (models.Entity, error)
	updateFn func(e models.Entity) (models.Entity, error)
	deleteFn func(kind models.EntityKind, serverID string, version int) error
	fetchFn  func(kind models.EntityKind, serverID string) (models.Entity, error)
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) Create(ctx context.Context, e models.Entity) (models.Entity, error) {
	f.record("create:" + e.Meta().LocalID.String())
	if f.createFn != nil {
		return f.createFn(e)
	}
	return canonical(e, "srv-"+e.Meta().LocalID.String(), 1), nil
}

func (f *fakeAPI) Update(ctx context.Context, e models.Entity) (models.Entity, error) {
	f.record("update:" + e.Meta().LocalID.String())
	if f.updateFn != nil {
		return f.updateFn(e)
	}
	return canonical(e, e.Meta().ServerID, e.Meta().Version+1), nil
}

func (f *fakeAPI) Delete(ctx context.Context, kind models.EntityKind, serverID string, version int) error {
	f.record("delete:" + serverID)
	if f.deleteFn != nil {
		return f.deleteFn(kind, serverID, version)
	}
	return nil
}

func (f *fakeAPI) Fetch(ctx context.Context, kind models.EntityKind, serverID string) (models.Entity, error) {
	f.record("fetch:" + serverID)
	if f.fetchFn != nil {
		return f.fetchFn(kind, serverID)
	}
	return nil, apperrors.New(apperrors.ErrNotFound, "no such record")
}

// canonical builds the server's echo of a submitted entity.
func canonical(e models.Entity, serverID string, version int) models.Entity {
	rec := e.Clone()
	m := rec.Meta()
	m.ServerID = serverID
	m.Version = version
	m.LastModifiedAt = time.Now().UnixMilli()
	m.SyncStatus = models.SyncStatusSynced
	return rec
}

func newProduct(price int64) *models.Product {
	return &models.Product{Name: "Espresso", SKU: "ESP-01", PriceCents: price, Stock: 10}
}

// syncedProduct seeds a product that has already completed a round trip.
func syncedProduct(t *testing.T, repo *store.Repository, serverID string, version int) *models.Product {
	t.Helper()
	p := newProduct(1000)
	if _, err := repo.RecordMutation(p, models.ActionCreate); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	p.ServerID = serverID
	p.Version = version
	if err := repo.ApplyServerRecord(p); err != nil {
		t.Fatalf("seed apply: %v", err)
	}
	if err := repo.MarkSynced(models.KindProduct, p.LocalID); err != nil {
		t.Fatalf("seed mark synced: %v", err)
	}
	return p
}

func TestDrainReconcilesOfflineCreate(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{
		createFn: func(e models.Entity) (models.Entity, error) {
			return canonical(e, "srv-42", 1), nil
		},
	}
	engine := NewEngine(repo, api)

	p := newProduct(1500)
	id, err := repo.RecordMutation(p, models.ActionCreate)
	if err != nil {
		t.Fatalf("record mutation: %v", err)
	}

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Synced != 1 || result.Failed != 0 {
		t.Errorf("result = %d synced / %d failed, want 1/0", result.Synced, result.Failed)
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}

	got, err := repo.GetProduct(id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.ServerID != "srv-42" {
		t.Errorf("server id = %q, want srv-42", got.ServerID)
	}
	if got.Version != 1 || got.SyncedVersion != 1 {
		t.Errorf("versions = %d/%d, want 1/1", got.Version, got.SyncedVersion)
	}
	if got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("status = %s, want synced", got.SyncStatus)
	}
	if got.PriceCents != 1500 {
		t.Errorf("price = %d, payload must survive reconciliation", got.PriceCents)
	}
	if engine.State() != StateIdle {
		t.Errorf("state = %s, want idle", engine.State())
	}
}

func TestDrainIsIdempotentWhenQueueEmpty(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{}
	engine := NewEngine(repo, api)

	if _, err := repo.RecordMutation(newProduct(1000), models.ActionCreate); err != nil {
		t.Fatalf("record mutation: %v", err)
	}
	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("first drain: %v", err)
	}

	before := len(api.callLog())
	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if result.Synced != 0 || result.Failed != 0 {
		t.Errorf("second drain did work: %+v", result)
	}
	if len(api.callLog()) != before {
		t.Error("second drain must not touch the network")
	}
}

func TestDrainPreservesEnqueueOrder(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{}
	engine := NewEngine(repo, api)

	var ids []models.UUID
	for i := 0; i < 3; i++ {
		id, err := repo.RecordMutation(newProduct(int64(1000+i)), models.ActionCreate)
		if err != nil {
			t.Fatalf("record mutation: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(3 * time.Millisecond) // distinct enqueue timestamps
	}

	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	calls := api.callLog()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}
	for i, id := range ids {
		if want := "create:" + id.String(); calls[i] != want {
			t.Errorf("call %d = %s, want %s", i, calls[i], want)
		}
	}
}

func TestTransientFailureKeepsItemAndPayload(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{
		createFn: func(e models.Entity) (models.Entity, error) {
			return nil, apperrors.New(apperrors.ErrSyncUnavailable, "connection refused")
		},
	}
	engine := NewEngine(repo, api)

	id, err := repo.RecordMutation(newProduct(1000), models.ActionCreate)
	if err != nil {
		t.Fatalf("record mutation: %v", err)
	}

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Failed != 1 || result.Synced != 0 {
		t.Errorf("result = %d failed / %d synced, want 1/0", result.Failed, result.Synced)
	}
	if result.Remaining != 1 {
		t.Errorf("remaining = %d, item must stay queued", result.Remaining)
	}

	got, err := repo.GetProduct(id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.PriceCents != 1000 || got.ServerID != "" {
		t.Error("a failed attempt must leave the entity untouched")
	}

	// The item is inside its backoff window now
	items, err := repo.ListPending(time.Now())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 0 {
		t.Error("failed item must wait out its backoff")
	}
	items, err = repo.ListPending(time.Now().Add(2 * time.Second))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(items) != 1 || items[0].Retries != 1 {
		t.Error("item must be due after the backoff with retries = 1")
	}

	// An immediate second drain makes no network calls
	before := len(api.callLog())
	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(api.callLog()) != before {
		t.Error("backoff must gate retry attempts")
	}
}

func TestConflictServerWinsDiscardsLocalEdit(t *testing.T) {
	repo := newTestRepo(t)

	serverRec := &models.Product{
		SyncMeta: models.SyncMeta{
			ServerID:       "srv-1",
			Version:        2,
			LastModifiedAt: time.Now().Add(time.Minute).UnixMilli(),
			SyncStatus:     models.SyncStatusSynced,
		},
		Name: "Espresso", SKU: "ESP-01", PriceCents: 1200, Stock: 10,
	}
	api := &fakeAPI{
		fetchFn: func(kind models.EntityKind, serverID string) (models.Entity, error) {
			return serverRec.Clone(), nil
		},
	}
	engine := NewEngine(repo, api)

	p := syncedProduct(t, repo, "srv-1", 1)
	p.PriceCents = 1000
	if _, err := repo.RecordMutation(p, models.ActionUpdate); err != nil {
		t.Fatalf("record update: %v", err)
	}

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", result.Conflicts)
	}

	for _, call := range api.callLog() {
		if call == "update:"+p.LocalID.String() {
			t.Error("server-wins resolution must not send a write")
		}
	}

	got, err := repo.GetProduct(p.LocalID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.PriceCents != 1200 {
		t.Errorf("price = %d, want the server's 1200", got.PriceCents)
	}
	if got.Version != 2 || got.SyncedVersion != 2 {
		t.Errorf("versions = %d/%d, want 2/2", got.Version, got.SyncedVersion)
	}
	if got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("status = %s, want synced", got.SyncStatus)
	}

	count, _ := repo.CountPending()
	if count != 0 {
		t.Errorf("pending = %d, the local edit is settled", count)
	}

	logs, err := repo.ListConflictLogs(10)
	if err != nil {
		t.Fatalf("list conflict logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Resolution != "server_wins" {
		t.Errorf("unexpected conflict log: %+v", logs)
	}
}

func TestConflictLocalWinsSubmitsAgainstServerVersion(t *testing.T) {
	repo := newTestRepo(t)

	p := syncedProduct(t, repo, "srv-1", 1)
	p.PriceCents = 1000
	if _, err := repo.RecordMutation(p, models.ActionUpdate); err != nil {
		t.Fatalf("record update: %v", err)
	}

	// Server edited too, but before the local edit
	serverRec := &models.Product{
		SyncMeta: models.SyncMeta{
			ServerID:       "srv-1",
			Version:        2,
			LastModifiedAt: p.LastModifiedAt - 60_000,
			SyncStatus:     models.SyncStatusSynced,
		},
		Name: "Espresso", SKU: "ESP-01", PriceCents: 1200, Stock: 10,
	}

	var submittedVersion int
	api := &fakeAPI{
		fetchFn: func(kind models.EntityKind, serverID string) (models.Entity, error) {
			return serverRec.Clone(), nil
		},
	}
	api.updateFn = func(e models.Entity) (models.Entity, error) {
		submittedVersion = e.Meta().Version
		return canonical(e, "srv-1", 3), nil
	}
	engine := NewEngine(repo, api)

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Conflicts != 1 || result.Synced != 1 {
		t.Errorf("result = %+v, want one conflict and one synced item", result)
	}
	if submittedVersion != 2 {
		t.Errorf("submitted version = %d, must align to the server's 2", submittedVersion)
	}

	got, err := repo.GetProduct(p.LocalID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.PriceCents != 1000 {
		t.Errorf("price = %d, the local edit must survive", got.PriceCents)
	}
	if got.Version != 3 || got.SyncedVersion != 3 {
		t.Errorf("versions = %d/%d, want 3/3", got.Version, got.SyncedVersion)
	}

	logs, _ := repo.ListConflictLogs(10)
	if len(logs) != 1 || logs[0].Resolution != "local_wins" {
		t.Errorf("unexpected conflict log: %+v", logs)
	}
}

func TestServerDetectedConflictRetriedOnce(t *testing.T) {
	repo := newTestRepo(t)

	p := syncedProduct(t, repo, "srv-1", 1)
	p.PriceCents = 1000
	if _, err := repo.RecordMutation(p, models.ActionUpdate); err != nil {
		t.Fatalf("record update: %v", err)
	}

	// First fetch: nothing has changed (pre-check passes). The update then
	// races a server write and gets a 409; the re-fetch sees the new state.
	fetches := 0
	api := &fakeAPI{}
	api.fetchFn = func(kind models.EntityKind, serverID string) (models.Entity, error) {
		fetches++
		if fetches == 1 {
			stale := p.Clone().(*models.Product)
			stale.Version = 1
			stale.SyncStatus = models.SyncStatusSynced
			return stale, nil
		}
		raced := &models.Product{
			SyncMeta: models.SyncMeta{
				ServerID:       "srv-1",
				Version:        2,
				LastModifiedAt: p.LastModifiedAt - 60_000,
				SyncStatus:     models.SyncStatusSynced,
			},
			Name: "Espresso", SKU: "ESP-01", PriceCents: 1200, Stock: 10,
		}
		return raced, nil
	}
	updates := 0
	api.updateFn = func(e models.Entity) (models.Entity, error) {
		updates++
		if updates == 1 {
			return nil, apperrors.New(apperrors.ErrSyncConflict, "version conflict")
		}
		return canonical(e, "srv-1", 3), nil
	}
	engine := NewEngine(repo, api)

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if updates != 2 {
		t.Errorf("updates = %d, want exactly one resubmission", updates)
	}
	if result.Synced != 1 {
		t.Errorf("synced = %d, want 1", result.Synced)
	}

	got, _ := repo.GetProduct(p.LocalID)
	if got.PriceCents != 1000 || got.Version != 3 {
		t.Errorf("final state price=%d version=%d, want 1000/3", got.PriceCents, got.Version)
	}
}

func TestUnauthorizedFlagsItemUnsyncable(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{
		createFn: func(e models.Entity) (models.Entity, error) {
			return nil, apperrors.New(apperrors.ErrSyncUnauthorized, "credential expired")
		},
	}
	engine := NewEngine(repo, api)

	id, err := repo.RecordMutation(newProduct(1000), models.ActionCreate)
	if err != nil {
		t.Fatalf("record mutation: %v", err)
	}

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}

	// Excluded from future drains but never deleted
	items, _ := repo.ListPending(time.Now().Add(time.Hour))
	if len(items) != 0 {
		t.Error("unsyncable item must not be drained again")
	}
	count, _ := repo.CountPending()
	if count != 1 {
		t.Errorf("count = %d, item must survive for intervention", count)
	}

	got, err := repo.GetProduct(id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.SyncStatus != models.SyncStatusError {
		t.Errorf("status = %s, want error", got.SyncStatus)
	}
	if got.PriceCents != 1000 {
		t.Error("payload must be untouched")
	}
}

func TestDeleteNeverSyncedSettlesLocally(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{}
	engine := NewEngine(repo, api)

	p := newProduct(1000)
	id, err := repo.RecordMutation(p, models.ActionCreate)
	if err != nil {
		t.Fatalf("record create: %v", err)
	}
	if _, err := repo.RecordMutation(p, models.ActionDelete); err != nil {
		t.Fatalf("record delete: %v", err)
	}

	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if calls := api.callLog(); len(calls) != 0 {
		t.Errorf("unsynced delete must not touch the network, got %v", calls)
	}
	count, _ := repo.CountPending()
	if count != 0 {
		t.Errorf("pending = %d, want 0", count)
	}
	if _, err := repo.GetProduct(id); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Error("entity must be purged locally")
	}
}

func TestDeleteSyncedSendsDeleteAndPurges(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{}
	engine := NewEngine(repo, api)

	p := syncedProduct(t, repo, "srv-5", 1)
	if _, err := repo.RecordMutation(p, models.ActionDelete); err != nil {
		t.Fatalf("record delete: %v", err)
	}

	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var sawDelete bool
	for _, call := range api.callLog() {
		if call == "delete:srv-5" {
			sawDelete = true
		}
	}
	if !sawDelete {
		t.Error("expected a delete call for srv-5")
	}
	if _, err := repo.GetProduct(p.LocalID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Error("entity must be purged after the server confirms")
	}
	count, _ := repo.CountPending()
	if count != 0 {
		t.Errorf("pending = %d, want 0", count)
	}
}

func TestDeleteConflictRetriedThenPurges(t *testing.T) {
	repo := newTestRepo(t)

	p := syncedProduct(t, repo, "srv-9", 1)
	if _, err := repo.RecordMutation(p, models.ActionDelete); err != nil {
		t.Fatalf("record delete: %v", err)
	}

	// The delete races another writer and gets a 409; the re-fetch shows no
	// newer server state, so the delete is resubmitted once and lands.
	deletes := 0
	api := &fakeAPI{
		fetchFn: func(kind models.EntityKind, serverID string) (models.Entity, error) {
			stale := p.Clone().(*models.Product)
			stale.Version = 1
			stale.SyncStatus = models.SyncStatusSynced
			return stale, nil
		},
	}
	api.deleteFn = func(kind models.EntityKind, serverID string, version int) error {
		deletes++
		if deletes == 1 {
			return apperrors.New(apperrors.ErrSyncConflict, "version conflict")
		}
		return nil
	}
	engine := NewEngine(repo, api)

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if deletes != 2 {
		t.Errorf("deletes = %d, want exactly one resubmission", deletes)
	}
	if result.Synced != 1 || result.Failed != 0 {
		t.Errorf("result = %d synced / %d failed, want 1/0", result.Synced, result.Failed)
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}
	if _, err := repo.GetProduct(p.LocalID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Error("entity must be purged once the resubmitted delete lands")
	}
	count, _ := repo.CountPending()
	if count != 0 {
		t.Errorf("pending = %d, want 0", count)
	}
}

func TestUpdateBeforeCreateLandsCollapsesToOneSubmission(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{}
	engine := NewEngine(repo, api)

	p := newProduct(1000)
	if _, err := repo.RecordMutation(p, models.ActionCreate); err != nil {
		t.Fatalf("record create: %v", err)
	}
	time.Sleep(3 * time.Millisecond)
	p.PriceCents = 1100
	if _, err := repo.RecordMutation(p, models.ActionUpdate); err != nil {
		t.Fatalf("record update: %v", err)
	}

	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	calls := api.callLog()
	if len(calls) != 1 {
		t.Fatalf("calls = %v, the create submission covers the queued update", calls)
	}

	got, _ := repo.GetProduct(p.LocalID)
	if got.PriceCents != 1100 {
		t.Errorf("price = %d, the submission must carry current state", got.PriceCents)
	}
	count, _ := repo.CountPending()
	if count != 0 {
		t.Errorf("pending = %d, want 0", count)
	}
}

func TestTriggerWhileSyncingIsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewEngine(repo, &fakeAPI{})

	engine.mu.Lock()
	engine.state = StateSyncing
	engine.mu.Unlock()

	if engine.TriggerDrain(context.Background()) {
		t.Error("trigger during an active cycle must be ignored")
	}
	if _, err := engine.Drain(context.Background()); !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		t.Errorf("expected SYNC_IN_PROGRESS, got %v", err)
	}
}

func TestCancellationStopsBetweenItems(t *testing.T) {
	repo := newTestRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeAPI{
		createFn: func(e models.Entity) (models.Entity, error) {
			cancel() // cancel mid-cycle; takes effect before the next item
			return canonical(e, "srv-"+e.Meta().LocalID.String(), 1), nil
		},
	}
	engine := NewEngine(repo, api)

	for i := 0; i < 2; i++ {
		if _, err := repo.RecordMutation(newProduct(int64(1000+i)), models.ActionCreate); err != nil {
			t.Fatalf("record mutation: %v", err)
		}
		time.Sleep(3 * time.Millisecond)
	}

	result, err := engine.Drain(ctx)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result.Synced != 1 {
		t.Errorf("synced = %d, the in-flight item must commit", result.Synced)
	}
	if engine.State() != StateIdle {
		t.Errorf("state = %s, cancellation is not an error", engine.State())
	}

	count, _ := repo.CountPending()
	if count != 1 {
		t.Errorf("pending = %d, the unprocessed item must stay queued", count)
	}
}

func TestObserversSeeCycleEvents(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewEngine(repo, &fakeAPI{})

	var mu sync.Mutex
	var types []string
	engine.AddObserver(observerFunc(func(ev Event) {
		mu.Lock()
		types = append(types, ev.EventType())
		mu.Unlock()
	}))

	if _, err := repo.RecordMutation(newProduct(1000), models.ActionCreate); err != nil {
		t.Fatalf("record mutation: %v", err)
	}
	if _, err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"sync.started", "sync.item_synced", "sync.completed"}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestMissingEntityDropsQueueItem(t *testing.T) {
	repo := newTestRepo(t)
	api := &fakeAPI{}
	engine := NewEngine(repo, api)

	if _, err := repo.Enqueue(models.KindProduct, "no-such-entity", models.ActionUpdate); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Failed != 0 {
		t.Errorf("failed = %d, an orphaned item is dropped, not failed", result.Failed)
	}
	if len(api.callLog()) != 0 {
		t.Error("no network call for an orphaned item")
	}
	count, _ := repo.CountPending()
	if count != 0 {
		t.Errorf("pending = %d, want 0", count)
	}
}

// observerFunc adapts a function to the Observer interface.
type observerFunc func(Event)

func (f observerFunc) OnSyncEvent(ev Event) { f(ev) }
