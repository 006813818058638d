package sync

import (
	"time"

	"github.com/pedidolist/backend/internal/models"
)

// Event is the sealed set of messages the engine publishes. Each variant
// carries only the fields relevant to it; observers switch on the concrete
// type.
type Event interface {
	// EventType is the wire name used when an event is forwarded to the SPA.
	EventType() string
}

// SyncStarted marks the beginning of a drain cycle.
type SyncStarted struct {
	Pending int
	At      time.Time
}

func (SyncStarted) EventType() string { return "sync.started" }

// ItemSynced reports one queue item confirmed by the server.
type ItemSynced struct {
	Kind     models.EntityKind
	LocalID  models.UUID
	ServerID string
	Action   models.Action
	At       time.Time
}

func (ItemSynced) EventType() string { return "sync.item_synced" }

// ConflictDetected reports a concurrent edit and how it was resolved.
type ConflictDetected struct {
	Kind    models.EntityKind
	LocalID models.UUID
	Winner  string
	At      time.Time
}

func (ConflictDetected) EventType() string { return "sync.conflict_detected" }

// ItemFailed reports a queue item that stays queued after a failed attempt.
type ItemFailed struct {
	Kind       models.EntityKind
	LocalID    models.UUID
	Code       string
	Error      string
	Retries    int
	Unsyncable bool
	At         time.Time
}

func (ItemFailed) EventType() string { return "sync.item_failed" }

// SyncCompleted marks a drain cycle that ran to completion.
type SyncCompleted struct {
	Synced    int
	Failed    int
	Conflicts int
	Remaining int
	Duration  time.Duration
	At        time.Time
}

func (SyncCompleted) EventType() string { return "sync.completed" }

// SyncError marks a drain cycle aborted by an unexpected failure.
type SyncError struct {
	Error string
	At    time.Time
}

func (SyncError) EventType() string { return "sync.failed" }

// Observer receives engine events. Observers are read-only: nothing they
// do feeds back into sync behavior.
type Observer interface {
	OnSyncEvent(Event)
}
