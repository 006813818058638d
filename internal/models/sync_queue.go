package models

import "time"

// SyncQueueItem represents one pending local mutation awaiting server
// confirmation. Items are drained in EnqueuedAt order so mutations against
// the same entity replay in the order they happened.
type SyncQueueItem struct {
	ID            UUID       `db:"id" json:"id"`
	EntityKind    EntityKind `db:"entity_kind" json:"entity_kind"`
	EntityID      UUID       `db:"entity_id" json:"entity_id"`
	Action        Action     `db:"action" json:"action"`
	EnqueuedAt    int64      `db:"enqueued_at" json:"enqueued_at"`
	Retries       int        `db:"retries" json:"retries"`
	LastError     string     `db:"last_error" json:"last_error,omitempty"`
	NextAttemptAt int64      `db:"next_attempt_at" json:"next_attempt_at"`
	Unsyncable    bool       `db:"unsyncable" json:"unsyncable"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// EnqueuedTime returns EnqueuedAt as time.Time.
func (i *SyncQueueItem) EnqueuedTime() time.Time {
	return time.UnixMilli(i.EnqueuedAt)
}
