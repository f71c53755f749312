package domain

type HistoryAction string

const (
	ActionCreate    HistoryAction = "create"
	ActionUpdate    HistoryAction = "update"
	ActionDelete    HistoryAction = "delete"
	ActionMove      HistoryAction = "move"
	ActionTransform HistoryAction = "transform"
	ActionBatch     HistoryAction = "batch"
)

// BatchItem is one buffered mutation inside a batch entry.
// A nil State means the component does not exist on that side.
type BatchItem struct {
	Action      HistoryAction `json:"action"`
	ComponentID string        `json:"componentId"`
	State       *Component    `json:"state"`
}

// HistoryEntry is one undoable step. Single entries carry PreviousState and
// NewState; batch entries carry the ordered PreviousItems and NewItems.
type HistoryEntry struct {
	ID            string        `json:"id"`
	Action        HistoryAction `json:"action"`
	ComponentID   string        `json:"componentId,omitempty"`
	PreviousState *Component    `json:"previousState,omitempty"`
	NewState      *Component    `json:"newState,omitempty"`
	PreviousItems []BatchItem   `json:"previousItems,omitempty"`
	NewItems      []BatchItem   `json:"newItems,omitempty"`
	Timestamp     int64         `json:"timestamp"`
	BatchID       string        `json:"batchId,omitempty"`
}

// Items returns the states to apply, in recorded order, for the given direction.
func (e *HistoryEntry) Items(isUndo bool) []BatchItem {
	if e.Action == ActionBatch {
		if isUndo {
			return e.PreviousItems
		}
		return e.NewItems
	}
	state := e.NewState
	if isUndo {
		state = e.PreviousState
	}
	return []BatchItem{{Action: e.Action, ComponentID: e.ComponentID, State: state}}
}
