package domain

import "context"

// SnapshotStore loads and saves whole-board snapshots for a session.
// FetchSnapshot returns an empty state, not an error, when nothing is stored.
type SnapshotStore interface {
	FetchSnapshot(ctx context.Context, sessionID string) (*BoardState, error)
	SaveSnapshot(ctx context.Context, sessionID string, state *BoardState) error
}

// SyncService accepts a batch of queued operations. A nil error means every
// operation was accepted.
type SyncService interface {
	SubmitOperations(ctx context.Context, sessionID string, ops []BoardOperation) error
}

// Transport carries board messages between participants.
type Transport interface {
	Publish(channel string, message []byte) error
	Subscribe(channel string, handler func(payload []byte)) (unsubscribe func())
}

type ConnectionStatus string

const (
	ConnOpen       ConnectionStatus = "open"
	ConnClosed     ConnectionStatus = "closed"
	ConnConnecting ConnectionStatus = "connecting"
	ConnOffline    ConnectionStatus = "offline"
)

// LocalStore is the durable per-session storage used by the offline queue.
type LocalStore interface {
	SaveQueue(sessionID string, items []QueuedOperation) error
	LoadQueue(sessionID string) ([]QueuedOperation, error)
	AppendOverflow(sessionID string, item QueuedOperation) error
	LoadOverflow(sessionID string) ([]QueuedOperation, error)
	ClearOverflow(sessionID string) error
	SaveState(sessionID string, state *BoardState) error
	LoadState(sessionID string) (*BoardState, error)
	ClearState(sessionID string) error
}
