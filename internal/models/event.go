// Package models provides data model definitions for the DailyMeds core.
package models

import (
	"sort"
	"time"
)

// EventType identifies the kind of history event. The set is closed.
type EventType string

const (
	EventTypeMedication   EventType = "MEDICATION"
	EventTypeHealthRecord EventType = "HEALTH_RECORD"
)

// HealthType identifies the kind of health measurement.
type HealthType string

const (
	HealthTypeBloodPressure HealthType = "blood_pressure"
	HealthTypeBloodSugar    HealthType = "blood_sugar"
	HealthTypeWeight        HealthType = "weight"
	HealthTypeHeartRate     HealthType = "heart_rate"
	HealthTypeTemperature   HealthType = "temperature"
)

// HealthValue holds a measurement. Value2 is set only for two-part
// measurements such as blood pressure (systolic/diastolic).
type HealthValue struct {
	Value1 float64  `json:"value1"`
	Value2 *float64 `json:"value2,omitempty"`
	Unit   string   `json:"unit"`
}

// Event is the atomic unit of history: a medication check-in or a health
// measurement. Locally created events that the remote store has not yet
// confirmed carry a temp-prefixed ID (see internal/uuid).
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // milliseconds since epoch
	DateKey   string    `json:"date_key"`  // YYYY-MM-DD, local time at creation

	// Medication payload. MedName is a denormalized snapshot frozen at
	// record time so later medication edits do not corrupt history.
	MedID   string `json:"med_id,omitempty"`
	MedName string `json:"med_name,omitempty"`
	IsTaken bool   `json:"is_taken,omitempty"`

	// Health record payload.
	HealthType  HealthType   `json:"health_type,omitempty"`
	HealthValue *HealthValue `json:"health_value,omitempty"`

	Note        string `json:"note,omitempty"`
	IsImportant bool   `json:"is_important,omitempty"`
}

// SameCheckIn reports whether two events represent the same medication
// check-in for one day: same type, same medication, same date bucket.
// Used to dedupe double submissions with different client-generated IDs.
func (e *Event) SameCheckIn(other *Event) bool {
	return e.Type == EventTypeMedication &&
		other.Type == EventTypeMedication &&
		e.MedID != "" && e.MedID == other.MedID &&
		e.DateKey == other.DateKey
}

// SameOccurrence reports whether two events describe the same logical
// occurrence regardless of ID: same type, medication, and timestamp.
// Used during merge to match a local temp event with its remote-confirmed
// counterpart.
func (e *Event) SameOccurrence(other *Event) bool {
	return e.Type == other.Type &&
		e.MedID == other.MedID &&
		e.Timestamp == other.Timestamp
}

// Time returns the event timestamp as time.Time.
func (e *Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// DateKeyLayout is the calendar-date bucket format.
const DateKeyLayout = "2006-01-02"

// DateKeyFor derives the local-time date bucket for a millisecond timestamp.
func DateKeyFor(timestampMs int64) string {
	return time.UnixMilli(timestampMs).Local().Format(DateKeyLayout)
}

// NoonTimestamp returns local noon of the given date key in epoch millis.
// Returns 0 if the key does not parse.
func NoonTimestamp(dateKey string) int64 {
	day, err := time.ParseInLocation(DateKeyLayout, dateKey, time.Local)
	if err != nil {
		return 0
	}
	return day.Add(12 * time.Hour).UnixMilli()
}

// HistorySnapshot maps a date key (YYYY-MM-DD) to the events recorded that
// day. Bucket order is not meaningful in storage; consumers sort on read.
type HistorySnapshot map[string][]Event

// Clone returns a deep copy of the snapshot. Event values are copied;
// HealthValue pointers are duplicated so mutation of the clone never
// reaches the original.
func (s HistorySnapshot) Clone() HistorySnapshot {
	out := make(HistorySnapshot, len(s))
	for key, events := range s {
		bucket := make([]Event, len(events))
		copy(bucket, events)
		for i := range bucket {
			if bucket[i].HealthValue != nil {
				hv := *bucket[i].HealthValue
				bucket[i].HealthValue = &hv
			}
		}
		out[key] = bucket
	}
	return out
}

// EventCount returns the total number of events across all buckets.
func (s HistorySnapshot) EventCount() int {
	n := 0
	for _, events := range s {
		n += len(events)
	}
	return n
}

// SortBucket orders a day's events by timestamp ascending.
func SortBucket(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}
