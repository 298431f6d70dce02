package history

import (
	"encoding/json"
	"time"

	apperrors "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/errors"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/logging"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/storage"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/uuid"
)

// MigrateLegacyHistory upgrades a stored snapshot from the legacy format,
// where a date bucket holds plain medication-ID strings, into Event objects.
// Each string becomes a MEDICATION event with a fresh ID, isTaken set, and
// a timestamp fixed at local noon of that date. Buckets already in the new
// shape pass through unchanged, so the migration is idempotent.
//
// The host must run this at startup, before any merge or sync logic touches
// the data. Returns the number of converted entries.
func (s *Store) MigrateLegacyHistory(userID string) int {
	uid, ok := s.resolveUser(userID)
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, found, err := s.kv.Get(storage.HistoryKey(uid))
	if err != nil {
		logging.ErrorWithCode("failed to read history for migration", string(apperrors.ErrMigration), err,
			map[string]interface{}{"user_id": uid})
		return 0
	}
	if !found {
		return 0
	}

	var buckets map[string]json.RawMessage
	if err := json.Unmarshal(raw, &buckets); err != nil {
		logging.ErrorWithCode("history is not a date-keyed object, skipping migration",
			string(apperrors.ErrMigration), err, map[string]interface{}{"user_id": uid})
		return 0
	}

	// The rewritten snapshot is built as raw messages so a bucket this
	// code cannot decode still carries through verbatim. Migration may
	// upgrade data; it must never narrow it.
	out := map[string]json.RawMessage{}
	converted := 0

	for dateKey, rawBucket := range buckets {
		events, n := upgradeLegacyBucket(dateKey, rawBucket)
		if events == nil {
			if !decodesAsEvents(rawBucket) {
				logging.Warn("unreadable history bucket preserved as-is",
					map[string]interface{}{"user_id": uid, "date_key": dateKey})
			}
			out[dateKey] = rawBucket
			continue
		}

		data, err := json.Marshal(events)
		if err != nil {
			logging.ErrorWithCode("failed to encode migrated bucket, keeping original",
				string(apperrors.ErrMigration), err,
				map[string]interface{}{"user_id": uid, "date_key": dateKey})
			out[dateKey] = rawBucket
			continue
		}
		converted += n
		out[dateKey] = data
	}

	if converted == 0 {
		return 0
	}

	if err := s.kv.PutJSON(storage.HistoryKey(uid), out, time.Now().UnixMilli()); err != nil {
		logging.ErrorWithCode("failed to persist migrated history", string(apperrors.ErrMigration), err,
			map[string]interface{}{"user_id": uid})
		return 0
	}

	logging.Info("legacy history migrated",
		map[string]interface{}{"user_id": uid, "converted": converted})
	return converted
}

// upgradeLegacyBucket converts a legacy string-array bucket into events.
// Returns (nil, 0) for any bucket that is not in the legacy shape.
func upgradeLegacyBucket(dateKey string, raw json.RawMessage) ([]models.Event, int) {
	var medIDs []string
	if err := json.Unmarshal(raw, &medIDs); err != nil {
		return nil, 0
	}

	noon := models.NoonTimestamp(dateKey)
	events := make([]models.Event, 0, len(medIDs))
	for _, medID := range medIDs {
		events = append(events, models.Event{
			ID:        uuid.New(),
			Type:      models.EventTypeMedication,
			Timestamp: noon,
			DateKey:   dateKey,
			MedID:     medID,
			IsTaken:   true,
		})
	}
	return events, len(events)
}

// decodesAsEvents reports whether a bucket is already in the new shape.
func decodesAsEvents(raw json.RawMessage) bool {
	var events []models.Event
	return json.Unmarshal(raw, &events) == nil
}
