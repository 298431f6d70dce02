package sync

import (
	apperrors "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/errors"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/history"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/logging"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/uuid"
)

// Merger reconciles a freshly fetched remote snapshot with whatever is
// cached locally into a single snapshot that is safe to display and safe
// to re-persist.
//
// The policy favors availability over strict consistency: the cloud is
// authoritative for everything it has, unsynced local writes are kept, and
// a locally known confirmed event missing from the cloud is preserved
// rather than discarded. Cross-device merging of the same logical event
// edited twice is out of scope.
type Merger struct {
	history *history.Store
}

// NewMerger creates a Merger over the local event store.
func NewMerger(h *history.Store) *Merger {
	return &Merger{history: h}
}

// MergeCloudHistory folds the local snapshot into the cloud snapshot,
// persists the result as the new local baseline, and returns it. Pass ""
// as userID to use the current session's user.
//
// On any unexpected internal failure the cloud snapshot is returned
// unmodified; correctness degrades to "trust the cloud" rather than
// surfacing a merge error to the caller.
func (m *Merger) MergeCloudHistory(cloud models.HistorySnapshot, userID string) (result models.HistorySnapshot) {
	if cloud == nil {
		cloud = models.HistorySnapshot{}
	}

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithCode("merge failed, falling back to cloud snapshot",
				string(apperrors.ErrSyncMergeFailed), nil,
				map[string]interface{}{"panic": r})
			result = cloud
		}
	}()

	local := m.history.LoadHistory(userID)
	merged := cloud.Clone()

	for dateKey, localEvents := range local {
		bucket := merged[dateKey]

		for i := range localEvents {
			ev := localEvents[i]
			if uuid.IsTemp(ev.ID) {
				// A write the cloud may not have seen yet. Skip it only
				// when the confirmed counterpart is already present.
				if !containsOccurrence(bucket, &ev) {
					bucket = append(bucket, ev)
				}
			} else {
				// Previously confirmed. Keep local knowledge when a remote
				// read raced a delete elsewhere or the fetch had a gap.
				if !containsID(bucket, ev.ID) {
					bucket = append(bucket, ev)
				}
			}
		}

		models.SortBucket(bucket)
		merged[dateKey] = bucket
	}

	for dateKey := range merged {
		models.SortBucket(merged[dateKey])
	}

	m.history.ReplaceHistory(merged, userID)
	m.history.SaveLastSyncTime(userID)

	logging.Debug("cloud history merged",
		map[string]interface{}{"buckets": len(merged), "events": merged.EventCount()})
	return merged
}

func containsOccurrence(bucket []models.Event, ev *models.Event) bool {
	for i := range bucket {
		if bucket[i].SameOccurrence(ev) {
			return true
		}
	}
	return false
}

func containsID(bucket []models.Event, id string) bool {
	for i := range bucket {
		if bucket[i].ID == id {
			return true
		}
	}
	return false
}
