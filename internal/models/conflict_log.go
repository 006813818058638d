package models

import "time"

// ConflictLog records resolved concurrent edits for user awareness.
type ConflictLog struct {
	ID              UUID       `db:"id" json:"id"`
	EntityKind      EntityKind `db:"entity_kind" json:"entity_kind"`
	EntityID        UUID       `db:"entity_id" json:"entity_id"`
	LocalTimestamp  int64      `db:"local_timestamp" json:"local_timestamp"`
	ServerTimestamp int64      `db:"server_timestamp" json:"server_timestamp"`
	Resolution      string     `db:"resolution" json:"resolution"` // local_wins, server_wins
	DetectedAt      int64      `db:"detected_at" json:"detected_at"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns the DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.UnixMilli(c.DetectedAt)
}
