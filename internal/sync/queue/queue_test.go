package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/history"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/identity"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/storage"
	syncpkg "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/uuid"
)

// fakeRemote records calls and answers from canned behavior.
type fakeRemote struct {
	addCalls    []string // event IDs in call order
	deleteCalls []string
	failAdds    bool  // every AddEvent returns an error
	rejectAdds  bool  // every AddEvent returns (nil, nil)
	panicAdds   bool  // every AddEvent panics
	deleteErr   error // returned by DeleteEvent
	history     models.HistorySnapshot
}

func (f *fakeRemote) FetchHistory(ctx context.Context, userID string) (models.HistorySnapshot, error) {
	if f.history == nil {
		return models.HistorySnapshot{}, nil
	}
	return f.history.Clone(), nil
}

func (f *fakeRemote) AddEvent(ctx context.Context, event models.Event, targetUserID string) (*models.Event, error) {
	f.addCalls = append(f.addCalls, event.ID)
	if f.panicAdds {
		panic("remote exploded")
	}
	if f.failAdds {
		return nil, errors.New("network down")
	}
	if f.rejectAdds {
		return nil, nil
	}
	confirmed := event
	confirmed.ID = fmt.Sprintf("srv-%d", len(f.addCalls))
	if f.history != nil {
		f.history[confirmed.DateKey] = append(f.history[confirmed.DateKey], confirmed)
	}
	return &confirmed, nil
}

func (f *fakeRemote) DeleteEvent(ctx context.Context, eventID string) error {
	f.deleteCalls = append(f.deleteCalls, eventID)
	return f.deleteErr
}

type fakeConn struct{ online bool }

func (f *fakeConn) IsConnected() bool { return f.online }

func newTestQueue(t *testing.T, remote syncpkg.Remote, conn syncpkg.Connectivity) (*Queue, *storage.Store) {
	t.Helper()
	kv, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return New(kv, remote, conn, DefaultMaxRetries), kv
}

func addTask(eventID string) models.SyncTask {
	return models.SyncTask{
		Kind: models.TaskAdd,
		Event: models.Event{
			ID:        eventID,
			Type:      models.EventTypeMedication,
			Timestamp: 1000,
			DateKey:   "2024-01-05",
			MedID:     "med-1",
		},
		TargetUserID: "u1",
	}
}

func deleteTask(eventID string) models.SyncTask {
	t := addTask(eventID)
	t.Kind = models.TaskDelete
	return t
}

// TestAddTaskPersists verifies tasks survive a queue rebuild over the same
// storage.
func TestAddTaskPersists(t *testing.T) {
	remote := &fakeRemote{}
	q, kv := newTestQueue(t, remote, &fakeConn{online: true})

	q.AddTask(addTask("temp-a"))
	q.AddTask(deleteTask("srv-9"))

	reopened := New(kv, remote, &fakeConn{online: true}, DefaultMaxRetries)
	tasks := reopened.GetQueue()
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 persisted tasks, got %d", len(tasks))
	}
	if tasks[0].Event.ID != "temp-a" || tasks[1].Event.ID != "srv-9" {
		t.Errorf("Unexpected task order: %+v", tasks)
	}
	if tasks[0].ID == "" {
		t.Error("Expected generated task ID")
	}
}

// TestSyncOffline verifies offline drains touch neither the queue nor the
// remote.
func TestSyncOffline(t *testing.T) {
	remote := &fakeRemote{}
	q, _ := newTestQueue(t, remote, &fakeConn{online: false})
	q.AddTask(addTask("temp-a"))

	q.Sync(context.Background())

	if len(remote.addCalls) != 0 {
		t.Errorf("Expected no remote calls, got %v", remote.addCalls)
	}
	if n := len(q.GetQueue()); n != 1 {
		t.Errorf("Expected queue untouched, got %d tasks", n)
	}
}

// TestSyncDrainsInOrder verifies FIFO draining and removal on success.
func TestSyncDrainsInOrder(t *testing.T) {
	remote := &fakeRemote{}
	q, _ := newTestQueue(t, remote, &fakeConn{online: true})
	q.AddTask(addTask("temp-a"))
	q.AddTask(addTask("temp-b"))
	q.AddTask(addTask("temp-c"))

	q.Sync(context.Background())

	want := []string{"temp-a", "temp-b", "temp-c"}
	if len(remote.addCalls) != 3 {
		t.Fatalf("Expected 3 remote calls, got %d", len(remote.addCalls))
	}
	for i, id := range want {
		if remote.addCalls[i] != id {
			t.Errorf("Call %d = %q, want %q", i, remote.addCalls[i], id)
		}
	}
	if n := len(q.GetQueue()); n != 0 {
		t.Errorf("Expected empty queue, got %d tasks", n)
	}
}

// TestRetryCeiling verifies a failing add survives two drains and is gone
// after the third.
func TestRetryCeiling(t *testing.T) {
	remote := &fakeRemote{failAdds: true}
	q, _ := newTestQueue(t, remote, &fakeConn{online: true})
	q.AddTask(addTask("temp-a"))

	ctx := context.Background()
	for pass := 1; pass <= 2; pass++ {
		q.Sync(ctx)
		tasks := q.GetQueue()
		if len(tasks) != 1 {
			t.Fatalf("After pass %d: expected task still queued, got %d", pass, len(tasks))
		}
		if tasks[0].RetryCount != pass {
			t.Errorf("After pass %d: RetryCount = %d", pass, tasks[0].RetryCount)
		}
	}

	q.Sync(ctx)
	if n := len(q.GetQueue()); n != 0 {
		t.Errorf("Expected task dropped after third failure, got %d tasks", n)
	}
	if len(remote.addCalls) != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", len(remote.addCalls))
	}
}

// TestRejectedAddRetries verifies a nil confirmation counts as a failure.
func TestRejectedAddRetries(t *testing.T) {
	remote := &fakeRemote{rejectAdds: true}
	q, _ := newTestQueue(t, remote, &fakeConn{online: true})
	q.AddTask(addTask("temp-a"))

	q.Sync(context.Background())

	tasks := q.GetQueue()
	if len(tasks) != 1 || tasks[0].RetryCount != 1 {
		t.Errorf("Expected re-enqueued task with 1 retry, got %+v", tasks)
	}
}

// TestFailingTaskMovesToTail verifies a failing add does not block the task
// behind it and is re-enqueued at the tail.
func TestFailingTaskMovesToTail(t *testing.T) {
	remote := &fakeRemote{failAdds: true}
	q, _ := newTestQueue(t, remote, &fakeConn{online: true})
	q.AddTask(addTask("temp-a"))
	q.AddTask(deleteTask("temp-b"))

	q.Sync(context.Background())

	tasks := q.GetQueue()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 remaining task, got %d", len(tasks))
	}
	if tasks[0].Event.ID != "temp-a" || tasks[0].RetryCount != 1 {
		t.Errorf("Unexpected remaining task: %+v", tasks[0])
	}
}

// TestDeleteTasks covers the three delete flavors.
func TestDeleteTasks(t *testing.T) {
	t.Run("TempSkipsRemote", func(t *testing.T) {
		remote := &fakeRemote{}
		q, _ := newTestQueue(t, remote, &fakeConn{online: true})
		q.AddTask(deleteTask("temp-a"))

		q.Sync(context.Background())

		if len(remote.deleteCalls) != 0 {
			t.Errorf("Expected no remote delete for temp ID, got %v", remote.deleteCalls)
		}
		if n := len(q.GetQueue()); n != 0 {
			t.Errorf("Expected task removed, got %d", n)
		}
	})

	t.Run("ConfirmedCallsRemote", func(t *testing.T) {
		remote := &fakeRemote{}
		q, _ := newTestQueue(t, remote, &fakeConn{online: true})
		q.AddTask(deleteTask("srv-9"))

		q.Sync(context.Background())

		if len(remote.deleteCalls) != 1 || remote.deleteCalls[0] != "srv-9" {
			t.Errorf("deleteCalls = %v, want [srv-9]", remote.deleteCalls)
		}
		if n := len(q.GetQueue()); n != 0 {
			t.Errorf("Expected task removed, got %d", n)
		}
	})

	t.Run("RemovedEvenOnRemoteError", func(t *testing.T) {
		remote := &fakeRemote{deleteErr: errors.New("boom")}
		q, _ := newTestQueue(t, remote, &fakeConn{online: true})
		q.AddTask(deleteTask("srv-9"))

		q.Sync(context.Background())

		if n := len(q.GetQueue()); n != 0 {
			t.Errorf("Expected delete task dropped after one attempt, got %d", n)
		}
	})
}

// TestPanicContained verifies a panicking remote call is treated as a
// failure for that task only.
func TestPanicContained(t *testing.T) {
	remote := &fakeRemote{panicAdds: true}
	q, _ := newTestQueue(t, remote, &fakeConn{online: true})
	q.AddTask(addTask("temp-a"))
	q.AddTask(deleteTask("srv-9"))

	q.Sync(context.Background())

	if len(remote.deleteCalls) != 1 {
		t.Errorf("Expected delete still processed, got %v", remote.deleteCalls)
	}
	tasks := q.GetQueue()
	if len(tasks) != 1 || tasks[0].Event.ID != "temp-a" || tasks[0].RetryCount != 1 {
		t.Errorf("Expected panicking add re-enqueued once, got %+v", tasks)
	}
}

// TestClearAndRemove covers the maintenance operations.
func TestClearAndRemove(t *testing.T) {
	q, _ := newTestQueue(t, &fakeRemote{}, &fakeConn{online: true})
	q.AddTask(addTask("temp-a"))
	q.AddTask(addTask("temp-b"))

	tasks := q.GetQueue()
	q.RemoveTask(tasks[0].ID)
	if got := q.GetQueue(); len(got) != 1 || got[0].Event.ID != "temp-b" {
		t.Errorf("After remove: %+v", got)
	}

	q.RemoveTask("absent")
	if n := len(q.GetQueue()); n != 1 {
		t.Errorf("Remove of absent ID changed queue: %d", n)
	}

	q.ClearQueue()
	if n := len(q.GetQueue()); n != 0 {
		t.Errorf("Expected cleared queue, got %d", n)
	}
}

// TestStats verifies the health counters.
func TestStats(t *testing.T) {
	q, _ := newTestQueue(t, &fakeRemote{}, &fakeConn{online: true})
	q.AddTask(addTask("temp-a"))
	q.AddTask(addTask("temp-b"))
	q.AddTask(deleteTask("srv-9"))

	stats := q.Stats()
	if stats["total"] != 3 || stats["adds"] != 2 || stats["deletes"] != 1 {
		t.Errorf("Stats = %v", stats)
	}
}

// TestOfflineToOnlineRoundTrip walks the full journey: record while
// offline, fail to drain, come back online, drain, fetch and merge. The
// temp event must end up replaced by its confirmed counterpart with no
// duplicate.
func TestOfflineToOnlineRoundTrip(t *testing.T) {
	kv, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer kv.Close()

	ids := identity.NewStaticResolver("u1")
	h := history.NewStore(kv, ids)
	remote := &fakeRemote{history: models.HistorySnapshot{}}
	conn := &fakeConn{online: false}
	q := New(kv, remote, conn, DefaultMaxRetries)
	merger := syncpkg.NewMerger(h)
	ctx := context.Background()

	// Offline check-in: visible locally at once, queued for later.
	ev := models.Event{
		ID:        uuid.NewTemp(),
		Type:      models.EventTypeMedication,
		Timestamp: 1000,
		DateKey:   "2024-01-05",
		MedID:     "med-1",
		IsTaken:   true,
	}
	h.AddEventLocally(ev, "")
	q.AddTask(models.SyncTask{Kind: models.TaskAdd, Event: ev, TargetUserID: "u1"})

	q.Sync(ctx)
	if len(remote.addCalls) != 0 || len(q.GetQueue()) != 1 {
		t.Fatal("Offline drain should be a no-op")
	}
	if h.LoadHistory("").EventCount() != 1 {
		t.Fatal("Offline event not visible locally")
	}

	// Connectivity restored: the queued add reaches the remote store.
	conn.online = true
	q.Sync(ctx)
	if len(q.GetQueue()) != 0 {
		t.Fatal("Expected queue drained once online")
	}

	snapshot, err := remote.FetchHistory(ctx, "u1")
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	merged := merger.MergeCloudHistory(snapshot, "")

	bucket := merged["2024-01-05"]
	if len(bucket) != 1 {
		t.Fatalf("Expected exactly 1 event after merge, got %d", len(bucket))
	}
	if uuid.IsTemp(bucket[0].ID) {
		t.Errorf("Expected confirmed ID, got %q", bucket[0].ID)
	}
	if bucket[0].MedID != "med-1" || bucket[0].Timestamp != 1000 {
		t.Errorf("Confirmed event corrupted: %+v", bucket[0])
	}
}
