// Package queue provides the durable retry queue that replays pending remote
// mutations (event creates and deletes) against the sync service.
//
// A task survives process restarts: the queue is persisted as a whole under
// a single storage key on every mutation. Tasks are drained in enqueue
// order; a failing add is re-enqueued at the tail so it cannot permanently
// block tasks behind it, and is dropped for good once it exhausts its retry
// ceiling. A dropped task's event stays visible locally and is never
// resurrected.
package queue

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	apperrors "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/errors"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/logging"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/storage"
	syncpkg "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/uuid"
)

// DefaultMaxRetries is the per-task retry ceiling.
const DefaultMaxRetries = 3

// DefaultSyncInterval is the auto-sync drain period.
const DefaultSyncInterval = 30 * time.Second

// Queue is the durable list of pending remote mutations.
type Queue struct {
	kv         *storage.Store
	remote     syncpkg.Remote
	conn       syncpkg.Connectivity
	maxRetries int

	mu       gosync.Mutex // guards queue load-modify-save
	draining bool         // reentrancy guard for overlapping drains
}

// New creates a Queue over the shared local store. maxRetries <= 0 falls
// back to DefaultMaxRetries.
func New(kv *storage.Store, remote syncpkg.Remote, conn syncpkg.Connectivity, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue{
		kv:         kv,
		remote:     remote,
		conn:       conn,
		maxRetries: maxRetries,
	}
}

// load reads the persisted queue, degrading to empty on storage failure.
func (q *Queue) load() []models.SyncTask {
	var tasks []models.SyncTask
	if _, err := q.kv.GetJSON(storage.QueueKey, &tasks); err != nil {
		logging.ErrorWithCode("failed to load sync queue", string(apperrors.ErrStorage), err, nil)
		return nil
	}
	return tasks
}

// save persists the full queue, dropping the write on storage failure.
func (q *Queue) save(tasks []models.SyncTask) {
	if err := q.kv.PutJSON(storage.QueueKey, tasks, time.Now().UnixMilli()); err != nil {
		logging.ErrorWithCode("failed to save sync queue", string(apperrors.ErrStorage), err,
			map[string]interface{}{"tasks": len(tasks)})
	}
}

// AddTask appends a pending mutation to the durable queue. A missing task
// ID is generated; EnqueuedAt and RetryCount are always reset here.
func (q *Queue) AddTask(task models.SyncTask) {
	if task.ID == "" {
		task.ID = uuid.New()
	}
	task.EnqueuedAt = time.Now().UnixMilli()
	task.RetryCount = 0

	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := append(q.load(), task)
	q.save(tasks)

	logging.Debug("sync task enqueued",
		map[string]interface{}{"task_id": task.ID, "kind": string(task.Kind), "event_id": task.Event.ID})
}

// GetQueue returns a copy of all pending tasks.
func (q *Queue) GetQueue() []models.SyncTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// ClearQueue removes every pending task.
func (q *Queue) ClearQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.save([]models.SyncTask{})
}

// RemoveTask deletes a task by ID. Removing an absent ID is a no-op.
func (q *Queue) RemoveTask(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(id)
}

func (q *Queue) removeLocked(id string) {
	tasks := q.load()
	filtered := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != id {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) != len(tasks) {
		q.save(filtered)
	}
}

// requeueLocked drops the task's old entry and appends a fresh one at the
// tail with an incremented retry count, so a repeatedly failing task does
// not block tasks behind it.
func (q *Queue) requeueLocked(task models.SyncTask) {
	tasks := q.load()
	filtered := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != task.ID {
			filtered = append(filtered, t)
		}
	}
	task.EnqueuedAt = time.Now().UnixMilli()
	q.save(append(filtered, task))
}

// Sync drains the queue against the remote service: one attempt per task,
// strictly in enqueue order. Offline is a no-op, not a failure. A second
// drain starting while one is in flight returns immediately.
func (q *Queue) Sync(ctx context.Context) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		logging.Debug("sync drain already in progress, skipping", nil)
		return
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	if q.conn != nil && !q.conn.IsConnected() {
		logging.Debug("offline, skipping sync drain", nil)
		return
	}

	tasks := q.GetQueue()
	if len(tasks) == 0 {
		return
	}

	// FIFO fairness: earliest writes sync first.
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].EnqueuedAt < tasks[j].EnqueuedAt
	})

	logging.Info("draining sync queue", map[string]interface{}{"tasks": len(tasks)})

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return
		default:
		}
		q.processTask(ctx, task)
	}
}

// processTask attempts one task's remote call. A panic from the remote
// implementation is contained here so one task cannot abort the drain pass.
func (q *Queue) processTask(ctx context.Context, task models.SyncTask) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("remote call panicked: %v", r)
			}
		}()
		err = q.dispatch(ctx, task)
	}()

	if err != nil {
		q.handleFailure(task, err)
	}
}

// dispatch performs the remote mutation for one task. A nil return means
// the task was handled and removed from the queue.
func (q *Queue) dispatch(ctx context.Context, task models.SyncTask) error {
	switch task.Kind {
	case models.TaskAdd:
		confirmed, err := q.remote.AddEvent(ctx, task.Event, task.TargetUserID)
		if err != nil {
			return err
		}
		if confirmed == nil {
			return apperrors.New(apperrors.ErrRemoteRejected, "remote store rejected event")
		}
		q.RemoveTask(task.ID)
		logging.Debug("event synced",
			map[string]interface{}{"task_id": task.ID, "remote_id": confirmed.ID})
		return nil

	case models.TaskDelete:
		// A local-only temp event never reached the remote store; there is
		// nothing to delete there.
		if !uuid.IsTemp(task.Event.ID) {
			if err := q.remote.DeleteEvent(ctx, task.Event.ID); err != nil {
				logging.Warn("remote delete failed, dropping task anyway",
					map[string]interface{}{"task_id": task.ID, "event_id": task.Event.ID, "error": err.Error()})
			}
		}
		q.RemoveTask(task.ID)
		return nil

	default:
		logging.Warn("unknown sync task kind, dropping",
			map[string]interface{}{"task_id": task.ID, "kind": string(task.Kind)})
		q.RemoveTask(task.ID)
		return nil
	}
}

// handleFailure applies retry accounting: under the ceiling the task is
// re-enqueued at the tail, at the ceiling it is dropped permanently. The
// event stays in the local store either way.
func (q *Queue) handleFailure(task models.SyncTask, cause error) {
	task.RetryCount++

	q.mu.Lock()
	defer q.mu.Unlock()

	if task.RetryCount >= q.maxRetries {
		q.removeLocked(task.ID)
		logging.ErrorWithCode("sync task dropped after retry ceiling",
			string(apperrors.ErrTaskDropped), cause,
			map[string]interface{}{
				"task_id":  task.ID,
				"event_id": task.Event.ID,
				"retries":  task.RetryCount,
			})
		return
	}

	q.requeueLocked(task)
	logging.Warn("sync task failed, re-enqueued",
		map[string]interface{}{
			"task_id": task.ID,
			"retry":   task.RetryCount,
			"max":     q.maxRetries,
			"error":   cause.Error(),
		})
}

// StartAutoSync runs a drain immediately and then on the given interval
// until the returned stop function is invoked. Stop prevents future firings
// synchronously; an in-flight drain is allowed to complete. interval <= 0
// falls back to DefaultSyncInterval.
func (q *Queue) StartAutoSync(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	stopCh := make(chan struct{})
	var wg gosync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		q.Sync(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				q.Sync(ctx)
			}
		}
	}()

	var once gosync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			wg.Wait()
		})
	}
}

// Stats returns queue counters keyed the way the health endpoint reports
// them.
func (q *Queue) Stats() map[string]int {
	tasks := q.GetQueue()
	stats := map[string]int{
		"total":   len(tasks),
		"adds":    0,
		"deletes": 0,
	}
	for _, t := range tasks {
		switch t.Kind {
		case models.TaskAdd:
			stats["adds"]++
		case models.TaskDelete:
			stats["deletes"]++
		}
	}
	return stats
}
