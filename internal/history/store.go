// Package history provides the per-user local event store: the read path of
// record for rendering medication and health history while offline.
//
// Every operation degrades to a safe default instead of returning an error:
// reads fall back to an empty snapshot, writes are dropped with a log entry.
// This code runs on hot UI paths and must never fail into its callers.
package history

import (
	"sync"
	"time"

	apperrors "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/errors"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/identity"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/logging"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/storage"
)

// Store persists a date-keyed mapping of events per user.
type Store struct {
	kv  *storage.Store
	ids identity.Resolver

	// Serializes load-modify-save cycles. SaveHistory is last-writer-wins
	// at the whole-snapshot level; concurrent add/remove must not interleave
	// their read-modify-write.
	mu sync.Mutex
}

// NewStore creates a Store over the shared local key-value store.
func NewStore(kv *storage.Store, ids identity.Resolver) *Store {
	return &Store{kv: kv, ids: ids}
}

// resolveUser returns the effective user ID: the explicit argument when
// non-empty, otherwise the identity resolver's current user. The second
// return value is false when no user is resolvable.
func (s *Store) resolveUser(explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	if s.ids == nil {
		return "", false
	}
	id := s.ids.CurrentUserID()
	return id, id != ""
}

// LoadHistory returns the user's history snapshot. Pass "" to use the
// current session's user. Returns an empty snapshot when no user is
// resolvable or the underlying read fails; the UI must always have
// something to render.
func (s *Store) LoadHistory(userID string) models.HistorySnapshot {
	uid, ok := s.resolveUser(userID)
	if !ok {
		return models.HistorySnapshot{}
	}

	snapshot := models.HistorySnapshot{}
	if _, err := s.kv.GetJSON(storage.HistoryKey(uid), &snapshot); err != nil {
		logging.ErrorWithCode("failed to load history", string(apperrors.ErrStorage), err,
			map[string]interface{}{"user_id": uid})
		return models.HistorySnapshot{}
	}
	if snapshot == nil {
		snapshot = models.HistorySnapshot{}
	}
	return snapshot
}

// SaveHistory overwrites the user's full snapshot. No partial writes; the
// last writer wins at the storage-key level. Write failures are logged and
// dropped.
func (s *Store) SaveHistory(snapshot models.HistorySnapshot, userID string) {
	uid, ok := s.resolveUser(userID)
	if !ok {
		return
	}
	if err := s.kv.PutJSON(storage.HistoryKey(uid), snapshot, time.Now().UnixMilli()); err != nil {
		logging.ErrorWithCode("failed to save history", string(apperrors.ErrStorage), err,
			map[string]interface{}{"user_id": uid, "events": snapshot.EventCount()})
	}
}

// AddEventLocally appends an event to its date bucket and persists. The
// event must carry a date key; a missing key is a logged no-op. Duplicates
// are skipped: same ID, or the same medication check-in (type, medId,
// dateKey) submitted twice with different client-generated IDs.
func (s *Store) AddEventLocally(event models.Event, userID string) {
	if event.DateKey == "" {
		logging.ErrorWithCode("event has no date key, dropping", string(apperrors.ErrMissingDateKey), nil,
			map[string]interface{}{"event_id": event.ID, "type": string(event.Type)})
		return
	}

	uid, ok := s.resolveUser(userID)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.LoadHistory(uid)
	bucket := snapshot[event.DateKey]

	for i := range bucket {
		if bucket[i].ID == event.ID || bucket[i].SameCheckIn(&event) {
			logging.Debug("duplicate event skipped",
				map[string]interface{}{"event_id": event.ID, "date_key": event.DateKey})
			return
		}
	}

	snapshot[event.DateKey] = append(bucket, event)
	s.SaveHistory(snapshot, uid)
}

// RemoveEventLocally filters an event out of the named date bucket and
// persists. A missing bucket or ID is a no-op.
func (s *Store) RemoveEventLocally(eventID, dateKey, userID string) {
	uid, ok := s.resolveUser(userID)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.LoadHistory(uid)
	bucket, ok := snapshot[dateKey]
	if !ok {
		return
	}

	filtered := bucket[:0:0]
	for _, e := range bucket {
		if e.ID != eventID {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == len(bucket) {
		return
	}

	snapshot[dateKey] = filtered
	s.SaveHistory(snapshot, uid)
}

// ReplaceHistory persists a fully merged snapshot as the user's new
// baseline under the store's write lock.
func (s *Store) ReplaceHistory(snapshot models.HistorySnapshot, userID string) {
	uid, ok := s.resolveUser(userID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveHistory(snapshot, uid)
}

// LastSyncTime returns the user's last-sync watermark in epoch millis, or 0
// when unset. Informational only; merge logic does not gate on it.
func (s *Store) LastSyncTime(userID string) int64 {
	uid, ok := s.resolveUser(userID)
	if !ok {
		return 0
	}
	var ts int64
	if _, err := s.kv.GetJSON(storage.LastSyncKey(uid), &ts); err != nil {
		logging.ErrorWithCode("failed to load last sync time", string(apperrors.ErrStorage), err,
			map[string]interface{}{"user_id": uid})
		return 0
	}
	return ts
}

// SaveLastSyncTime records now as the user's last-sync watermark.
func (s *Store) SaveLastSyncTime(userID string) {
	uid, ok := s.resolveUser(userID)
	if !ok {
		return
	}
	now := time.Now().UnixMilli()
	if err := s.kv.PutJSON(storage.LastSyncKey(uid), now, now); err != nil {
		logging.ErrorWithCode("failed to save last sync time", string(apperrors.ErrStorage), err,
			map[string]interface{}{"user_id": uid})
	}
}
