// Package models provides data model definitions for the PedidoList backend.
package models

import (
	"database/sql/driver"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// EntityKind identifies a synchronizable record type.
type EntityKind string

const (
	KindOrder   EntityKind = "order"
	KindProduct EntityKind = "product"
)

// SyncStatus indicates whether a local record matches the server.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending" // has unsynced local changes
	SyncStatusSynced  SyncStatus = "synced"  // matches server
	SyncStatusError   SyncStatus = "error"   // last sync attempt failed
)

// Action is the kind of mutation recorded in the sync queue.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// SyncMeta carries the synchronization metadata shared by all entities.
//
// LocalID is assigned at insert time and never reused. ServerID stays empty
// until the remote API accepts the record. Version is incremented only by
// the server; SyncedVersion is the last version the server confirmed to us
// and is the staleness baseline for conflict detection. LastModifiedAt is
// set locally at mutation time and overwritten with the server's timestamp
// after a successful sync.
type SyncMeta struct {
	LocalID        UUID       `db:"local_id" json:"client_id"`
	ServerID       string     `db:"server_id" json:"id,omitempty"`
	Version        int        `db:"version" json:"version"`
	SyncedVersion  int        `db:"synced_version" json:"-"`
	LastModifiedAt int64      `db:"last_modified_at" json:"updated_at"`
	SyncStatus     SyncStatus `db:"sync_status" json:"-"`
	IsDeleted      bool       `db:"is_deleted" json:"-"`
}

// Meta returns the metadata itself so concrete entities satisfy Entity
// by embedding SyncMeta.
func (m *SyncMeta) Meta() *SyncMeta {
	return m
}

// Touch records a local mutation: bumps the timestamp and marks the record
// as pending. The version is left alone; only the server increments it.
func (m *SyncMeta) Touch() {
	m.LastModifiedAt = time.Now().UnixMilli()
	m.SyncStatus = SyncStatusPending
}

// LastModifiedTime returns LastModifiedAt as time.Time.
func (m *SyncMeta) LastModifiedTime() time.Time {
	return time.UnixMilli(m.LastModifiedAt)
}

// Entity is a synchronizable business record (order or product).
type Entity interface {
	Kind() EntityKind
	Meta() *SyncMeta

	// PayloadEquals reports whether the domain payload (everything except
	// sync metadata) matches the other entity's. Used by conflict detection.
	PayloadEquals(other Entity) bool

	// Clone returns a deep copy so resolution can hand out records without
	// aliasing store-owned state.
	Clone() Entity
}
