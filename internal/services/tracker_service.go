// Package services provides the orchestration layer for user actions: the
// optimistic local-first write path that records an event synchronously and
// enqueues the authoritative remote write for background replay.
package services

import (
	"time"

	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/history"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/identity"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync/queue"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/uuid"
)

// TrackerService records medication and health events. Writes always appear
// to succeed instantly: the local store is updated synchronously and the
// remote mutation is queued for the retry queue to deliver.
type TrackerService struct {
	history *history.Store
	queue   *queue.Queue
	ids     identity.Resolver
}

// NewTrackerService creates a TrackerService.
func NewTrackerService(h *history.Store, q *queue.Queue, ids identity.Resolver) *TrackerService {
	return &TrackerService{history: h, queue: q, ids: ids}
}

// RecordMedication records a medication check-in for now. MedName is frozen
// at record time so later medication edits do not corrupt history.
func (s *TrackerService) RecordMedication(medID, medName, note string, important bool) models.Event {
	now := time.Now().UnixMilli()
	event := models.Event{
		ID:          uuid.NewTemp(),
		Type:        models.EventTypeMedication,
		Timestamp:   now,
		DateKey:     models.DateKeyFor(now),
		MedID:       medID,
		MedName:     medName,
		IsTaken:     true,
		Note:        note,
		IsImportant: important,
	}
	s.record(event)
	return event
}

// RecordHealth records a health measurement for now.
func (s *TrackerService) RecordHealth(healthType models.HealthType, value models.HealthValue, note string, important bool) models.Event {
	now := time.Now().UnixMilli()
	event := models.Event{
		ID:          uuid.NewTemp(),
		Type:        models.EventTypeHealthRecord,
		Timestamp:   now,
		DateKey:     models.DateKeyFor(now),
		HealthType:  healthType,
		HealthValue: &value,
		Note:        note,
		IsImportant: important,
	}
	s.record(event)
	return event
}

func (s *TrackerService) record(event models.Event) {
	userID := s.ids.CurrentUserID()
	s.history.AddEventLocally(event, userID)
	s.queue.AddTask(models.SyncTask{
		Kind:         models.TaskAdd,
		Event:        event,
		TargetUserID: userID,
	})
}

// DeleteEvent removes an event locally and queues the remote delete. The
// retry queue skips the remote call for temp IDs that never left this
// device.
func (s *TrackerService) DeleteEvent(eventID, dateKey string) {
	userID := s.ids.CurrentUserID()
	s.history.RemoveEventLocally(eventID, dateKey, userID)
	s.queue.AddTask(models.SyncTask{
		Kind:         models.TaskDelete,
		Event:        models.Event{ID: eventID, DateKey: dateKey},
		TargetUserID: userID,
	})
}

// History returns the current user's history snapshot for rendering.
func (s *TrackerService) History() models.HistorySnapshot {
	return s.history.LoadHistory("")
}
