// Package conflict decides the winner when a local record and a server
// record for the same entity were edited concurrently.
package conflict

import (
	"time"

	"github.com/pedidolist/backend/internal/logging"
	"github.com/pedidolist/backend/internal/models"
)

// Winner identifies which side a resolution kept.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerServer Winner = "server"
)

// Resolution is the outcome of resolving one conflict. Resolved is the
// whole record to keep; the losing side is discarded entirely (no field
// merge).
type Resolution struct {
	Winner   Winner
	Resolved models.Entity
	Log      *models.ConflictLog
}

// Resolver implements whole-record last-write-wins. It is pure: no I/O,
// no mutation of its inputs.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// DetectConflict reports whether local and server were modified
// concurrently. Version is the authoritative staleness signal here: a
// conflict exists only when the local record has unsynced changes, the
// server has moved past the version we last synced against, and the
// payloads actually differ. A local record with no pending changes is
// never in conflict; the server record simply wins by replacing it.
func (r *Resolver) DetectConflict(local, server models.Entity) bool {
	if local == nil || server == nil {
		return false
	}
	lm := local.Meta()
	if lm.SyncStatus != models.SyncStatusPending {
		return false
	}
	if server.Meta().Version <= lm.SyncedVersion {
		return false
	}
	return !local.PayloadEquals(server)
}

// ResolveLastWriteWins keeps the record with the strictly later
// LastModifiedAt in full. Equal timestamps resolve in favor of the server
// so every replica converges without a secondary tiebreak key.
func (r *Resolver) ResolveLastWriteWins(local, server models.Entity) Resolution {
	lm, sm := local.Meta(), server.Meta()

	winner := WinnerServer
	resolved := server
	if lm.LastModifiedAt > sm.LastModifiedAt {
		winner = WinnerLocal
		resolved = local
	}

	log := &models.ConflictLog{
		EntityKind:      local.Kind(),
		EntityID:        lm.LocalID,
		LocalTimestamp:  lm.LastModifiedAt,
		ServerTimestamp: sm.LastModifiedAt,
		Resolution:      string(winner) + "_wins",
		DetectedAt:      time.Now().UnixMilli(),
	}

	logging.Info("Conflict resolved using last-write-wins", map[string]interface{}{
		"entity_kind":      local.Kind(),
		"entity_id":        lm.LocalID,
		"winner":           winner,
		"local_timestamp":  lm.LastModifiedAt,
		"server_timestamp": sm.LastModifiedAt,
	})

	return Resolution{
		Winner:   winner,
		Resolved: resolved.Clone(),
		Log:      log,
	}
}
