package domain

import "encoding/json"

type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
	OpBatch  OperationType = "batch"
)

// BoardOperation is the wire and queue record for one mutation.
type BoardOperation struct {
	ID          string           `json:"id,omitempty"`
	Type        OperationType    `json:"type"`
	ComponentID string           `json:"componentId,omitempty"`
	Data        json.RawMessage  `json:"data,omitempty"`
	Operations  []BoardOperation `json:"operations,omitempty"`
}

// Component decodes Data as a component, or returns nil when absent.
func (op BoardOperation) Component() (*Component, error) {
	if len(op.Data) == 0 || string(op.Data) == "null" {
		return nil, nil
	}
	var c Component
	if err := json.Unmarshal(op.Data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

type QueuedOperation struct {
	ID        string         `json:"id"`
	Operation BoardOperation `json:"operation"`
	Timestamp int64          `json:"timestamp"`
	Retries   int            `json:"retries"`
}

type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncSyncing SyncStatus = "syncing"
	SyncPending SyncStatus = "pending"
	SyncError   SyncStatus = "error"
	SyncOffline SyncStatus = "offline"
)

type SyncResult struct {
	Success bool    `json:"success"`
	Synced  int     `json:"synced"`
	Failed  int     `json:"failed"`
	Errors  []error `json:"-"`
}
