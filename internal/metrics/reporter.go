// Package metrics aggregates sync outcomes and offline session durations
// for the status surface. The reporter is a read-only observer: nothing
// here feeds back into sync behavior.
package metrics

import (
	"sync"
	"time"

	"github.com/pedidolist/backend/internal/connectivity"
	syncpkg "github.com/pedidolist/backend/internal/sync"
)

// Snapshot is a point-in-time view of the session's sync health.
type Snapshot struct {
	Cycles          int           `json:"cycles"`
	CycleErrors     int           `json:"cycle_errors"`
	ItemsSynced     int           `json:"items_synced"`
	ItemsFailed     int           `json:"items_failed"`
	Conflicts       int           `json:"conflicts"`
	PendingItems    int           `json:"pending_items"`
	SuccessRate     float64       `json:"success_rate"`
	OfflineSessions int           `json:"offline_sessions"`
	OfflineTotal    time.Duration `json:"offline_total_ns"`
	LastCycleAt     *time.Time    `json:"last_cycle_at,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
}

// Reporter accumulates per-session counters from engine events and
// connectivity transitions.
type Reporter struct {
	mu sync.Mutex

	cycles      int
	cycleErrors int
	synced      int
	failed      int
	conflicts   int
	pending     int
	lastCycleAt *time.Time
	lastError   string

	offlineSessions int
	offlineTotal    time.Duration
	wentOfflineAt   *time.Time
}

// NewReporter creates a Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// OnSyncEvent implements sync.Observer.
func (r *Reporter) OnSyncEvent(ev syncpkg.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch v := ev.(type) {
	case syncpkg.SyncStarted:
		r.pending = v.Pending
	case syncpkg.ItemSynced:
		r.synced++
	case syncpkg.ItemFailed:
		r.failed++
		r.lastError = v.Error
	case syncpkg.ConflictDetected:
		r.conflicts++
	case syncpkg.SyncCompleted:
		r.cycles++
		r.pending = v.Remaining
		at := v.At
		r.lastCycleAt = &at
	case syncpkg.SyncError:
		r.cycles++
		r.cycleErrors++
		r.lastError = v.Error
		at := v.At
		r.lastCycleAt = &at
	}
}

// OnTransition records offline session boundaries. Call with every settled
// connectivity transition.
func (r *Reporter) OnTransition(t connectivity.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !t.Online {
		if r.wentOfflineAt == nil {
			at := t.At
			r.wentOfflineAt = &at
		}
		return
	}
	if r.wentOfflineAt != nil {
		r.offlineSessions++
		r.offlineTotal += t.At.Sub(*r.wentOfflineAt)
		r.wentOfflineAt = nil
	}
}

// Snapshot returns the current aggregates. An open offline session is
// counted up to now.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Cycles:          r.cycles,
		CycleErrors:     r.cycleErrors,
		ItemsSynced:     r.synced,
		ItemsFailed:     r.failed,
		Conflicts:       r.conflicts,
		PendingItems:    r.pending,
		OfflineSessions: r.offlineSessions,
		OfflineTotal:    r.offlineTotal,
		LastCycleAt:     r.lastCycleAt,
		LastError:       r.lastError,
	}
	if r.wentOfflineAt != nil {
		s.OfflineTotal += time.Since(*r.wentOfflineAt)
	}
	if attempts := r.synced + r.failed; attempts > 0 {
		s.SuccessRate = float64(r.synced) / float64(attempts) * 100
	}
	return s
}
