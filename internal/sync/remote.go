// Package sync provides reconciliation between the local event store and the
// remote sync service: the merge engine, the remote facade, and the
// connectivity check.
package sync

import (
	"context"

	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
)

// Remote is the facade over the network sync service. Implementations do not
// retry; the queue owns retry accounting.
type Remote interface {
	// FetchHistory returns the remote history snapshot for a user.
	FetchHistory(ctx context.Context, userID string) (models.HistorySnapshot, error)

	// AddEvent writes an event to the remote store and returns the
	// confirmed copy with its server-assigned ID. A nil confirmed event
	// with a nil error signals rejection; callers treat both nil results
	// and errors as failures for retry accounting.
	AddEvent(ctx context.Context, event models.Event, targetUserID string) (*models.Event, error)

	// DeleteEvent removes an event from the remote store.
	DeleteEvent(ctx context.Context, eventID string) error
}

// Connectivity reports network reachability. The queue drain is a no-op
// while offline.
type Connectivity interface {
	IsConnected() bool
}
