// Package models provides data model definitions for the DailyMeds core.
package models

import "time"

// TaskKind identifies the remote mutation a sync task carries.
type TaskKind string

const (
	TaskAdd    TaskKind = "ADD"
	TaskDelete TaskKind = "DELETE"
)

// SyncTask is a pending remote mutation awaiting replay. Tasks live in the
// durable queue until the remote operation succeeds or the retry ceiling is
// reached, at which point they are dropped and the event stays local-only.
type SyncTask struct {
	ID           string   `json:"id"`
	Kind         TaskKind `json:"kind"`
	Event        Event    `json:"event"`
	TargetUserID string   `json:"target_user_id,omitempty"`
	EnqueuedAt   int64    `json:"enqueued_at"` // milliseconds since epoch
	RetryCount   int      `json:"retry_count"`
}

// EnqueuedTime returns the enqueue timestamp as time.Time.
func (t *SyncTask) EnqueuedTime() time.Time {
	return time.UnixMilli(t.EnqueuedAt)
}
