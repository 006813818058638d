// Package scheduler drives the sync engine from background triggers:
// settled online transitions, a periodic tick, and manual requests.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pedidolist/backend/internal/connectivity"
	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/logging"
	syncpkg "github.com/pedidolist/backend/internal/sync"
)

// Engine is the subset of the sync engine the scheduler drives. The
// engine's own idle/syncing guard makes every trigger safe to fire.
type Engine interface {
	Drain(ctx context.Context) (*syncpkg.Result, error)
	State() syncpkg.State
}

// Retention runs the store's expiry sweep; wired so stale synced records
// are purged alongside periodic syncs.
type Retention interface {
	ExpireStaleRecords(maxAgeDays int) (daysRemaining int, purged int, err error)
}

// Config holds scheduler configuration.
type Config struct {
	// SyncInterval is how often to drain while online.
	SyncInterval time.Duration
	// RetentionDays is passed to the expiry sweep; zero disables it.
	RetentionDays int
	// DrainTimeout bounds one full drain cycle.
	DrainTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval:  15 * time.Minute,
		RetentionDays: 30,
		DrainTimeout:  5 * time.Minute,
	}
}

// Scheduler owns the background goroutine that reacts to connectivity and
// time. Exactly one drain is started per settled went-online event.
type Scheduler struct {
	engine    Engine
	monitor   *connectivity.Monitor
	retention Retention
	config    Config

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(engine Engine, monitor *connectivity.Monitor, retention Retention, config Config) *Scheduler {
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultConfig().SyncInterval
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultConfig().DrainTimeout
	}
	return &Scheduler{
		engine:    engine,
		monitor:   monitor,
		retention: retention,
		config:    config,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"interval": s.config.SyncInterval.String(),
	})
}

// Stop stops the background loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	transitions := s.monitor.Subscribe()
	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case t := <-transitions:
			if t.Online {
				// One settled reconnect, one drain
				s.runDrain(ctx, "went_online")
			}
		case <-ticker.C:
			if s.monitor.IsOnline() {
				s.runDrain(ctx, "periodic")
			}
			s.runRetention()
		}
	}
}

// SyncNow runs a drain synchronously; used by the manual "sync now" action.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.Result, error) {
	drainCtx, cancel := context.WithTimeout(ctx, s.config.DrainTimeout)
	defer cancel()
	return s.engine.Drain(drainCtx)
}

func (s *Scheduler) runDrain(ctx context.Context, trigger string) {
	drainCtx, cancel := context.WithTimeout(ctx, s.config.DrainTimeout)
	defer cancel()

	result, err := s.engine.Drain(drainCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.Debug("Drain already in progress, trigger ignored", map[string]interface{}{
				"trigger": trigger,
			})
			return
		}
		logging.ErrorWithCode("Scheduled drain failed", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"trigger": trigger})
		return
	}

	logging.Info("Scheduled drain completed", map[string]interface{}{
		"trigger":   trigger,
		"synced":    result.Synced,
		"failed":    result.Failed,
		"remaining": result.Remaining,
	})
}

func (s *Scheduler) runRetention() {
	if s.retention == nil || s.config.RetentionDays <= 0 {
		return
	}
	if _, _, err := s.retention.ExpireStaleRecords(s.config.RetentionDays); err != nil {
		logging.Error("Retention sweep failed", err, nil)
	}
}
