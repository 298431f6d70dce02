// Package scheduler owns the background sync lifecycle for the host process:
// the periodic retry-queue drain and the periodic remote refresh that feeds
// the merge engine. It is the only component with recurring timers, and its
// lifecycle is explicitly started and stopped by the host.
package scheduler

import (
	"context"
	gosync "sync"
	"time"

	apperrors "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/errors"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/identity"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/logging"
	syncpkg "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync/queue"
)

// Config holds scheduler timing.
type Config struct {
	// SyncInterval is the retry-queue drain period. Default: 30 seconds.
	SyncInterval time.Duration

	// RefreshInterval is the remote fetch+merge period. Default: 15 minutes.
	RefreshInterval time.Duration
}

// DefaultConfig returns the default scheduler timing.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:    queue.DefaultSyncInterval,
		RefreshInterval: 15 * time.Minute,
	}
}

// Scheduler coordinates background synchronization.
type Scheduler struct {
	merger *syncpkg.Merger
	remote syncpkg.Remote
	conn   syncpkg.Connectivity
	ids    identity.Resolver
	queue  *queue.Queue

	syncInterval    time.Duration
	refreshInterval time.Duration

	mu                gosync.Mutex
	isRunning         bool
	refreshInProgress bool
	lastRefreshTime   time.Time

	stopCh    chan struct{}
	stopDrain func()
	wg        gosync.WaitGroup
}

// New creates a Scheduler. A nil config uses DefaultConfig.
func New(merger *syncpkg.Merger, remote syncpkg.Remote, conn syncpkg.Connectivity, ids identity.Resolver, q *queue.Queue, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = queue.DefaultSyncInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 15 * time.Minute
	}
	return &Scheduler{
		merger:          merger,
		remote:          remote,
		conn:            conn,
		ids:             ids,
		queue:           q,
		syncInterval:    config.SyncInterval,
		refreshInterval: config.RefreshInterval,
	}
}

// Start launches the background loops. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})

	// stopDrain must be set before the lock is released so a Stop racing
	// this Start cannot observe it nil and leave the drain loop running.
	s.stopDrain = s.queue.StartAutoSync(ctx, s.syncInterval)
	s.wg.Add(1)
	go s.refreshLoop(ctx)
	s.mu.Unlock()

	logging.Info("background sync scheduler started",
		map[string]interface{}{
			"sync_interval":    s.syncInterval.String(),
			"refresh_interval": s.refreshInterval.String(),
		})
}

// Stop halts future timer firings and waits for in-flight work to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	if s.stopDrain != nil {
		s.stopDrain()
	}
	s.wg.Wait()

	logging.Info("background sync scheduler stopped", nil)
}

// refreshLoop periodically fetches the remote snapshot and merges it into
// the local baseline.
func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh fetches the remote snapshot for the current user and folds it
// into the local store. The host calls this on app foreground; the refresh
// loop calls it periodically. Skips silently when offline, when no user is
// logged in, or when a refresh is already running.
func (s *Scheduler) Refresh(ctx context.Context) {
	if s.conn != nil && !s.conn.IsConnected() {
		logging.Debug("offline, skipping history refresh", nil)
		return
	}

	userID := s.ids.CurrentUserID()
	if userID == "" {
		return
	}

	s.mu.Lock()
	if s.refreshInProgress {
		s.mu.Unlock()
		logging.Debug("history refresh already in progress, skipping", nil)
		return
	}
	s.refreshInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshInProgress = false
		s.mu.Unlock()
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cloud, err := s.remote.FetchHistory(fetchCtx, userID)
	if err != nil {
		logging.ErrorWithCode("history fetch failed", string(apperrors.ErrSyncFailed), err,
			map[string]interface{}{"user_id": userID})
		return
	}

	merged := s.merger.MergeCloudHistory(cloud, userID)

	s.mu.Lock()
	s.lastRefreshTime = time.Now()
	s.mu.Unlock()

	logging.Info("history refreshed",
		map[string]interface{}{"user_id": userID, "events": merged.EventCount()})
}

// Status describes the scheduler for the host health endpoint.
type Status struct {
	IsRunning       bool           `json:"is_running"`
	RefreshRunning  bool           `json:"refresh_running"`
	LastRefreshTime *time.Time     `json:"last_refresh_time,omitempty"`
	QueueStats      map[string]int `json:"queue_stats"`
}

// GetStatus returns the current scheduler status.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		IsRunning:      s.isRunning,
		RefreshRunning: s.refreshInProgress,
		QueueStats:     s.queue.Stats(),
	}
	if !s.lastRefreshTime.IsZero() {
		t := s.lastRefreshTime
		status.LastRefreshTime = &t
	}
	return status
}

// IsRunning reports whether the scheduler has been started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
