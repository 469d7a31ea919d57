package table

import (
	"encoding/json"
	"time"

	"github.com/rzbill/orbiter/internal/errdefs"
)

// Status is the work-item lifecycle state.
type Status string

const (
	// StatusNew marks a record awaiting processing.
	StatusNew Status = "New"
	// StatusProcessed marks a record the consumer has handled.
	// Transitions are New -> Processed only, never back.
	StatusProcessed Status = "Processed"
)

// WorkItem is a persisted pipeline record. Identity is (PartitionKey, RowKey).
type WorkItem struct {
	PartitionKey    string    `json:"PartitionKey"`
	RowKey          string    `json:"RowKey"`
	BugID           string    `json:"BugId"`
	Status          Status    `json:"Status"`
	Payload         string    `json:"Payload"`
	CreatedAt       time.Time `json:"Created_at"`
	UpdatedAt       time.Time `json:"Updated_at"`
	EnrichedPayload string    `json:"EnrichedPayload,omitempty"`
}

// Validate checks required identity fields and status.
func (w *WorkItem) Validate() error {
	if w.PartitionKey == "" {
		return errdefs.Validation("work item missing PartitionKey")
	}
	if w.RowKey == "" {
		return errdefs.Validation("work item missing RowKey")
	}
	switch w.Status {
	case StatusNew, StatusProcessed:
	default:
		return errdefs.Validationf("work item (%s,%s) has invalid status %q", w.PartitionKey, w.RowKey, w.Status)
	}
	return nil
}

func encodeWorkItem(w *WorkItem) ([]byte, error) {
	return json.Marshal(w)
}

func decodeWorkItem(b []byte) (*WorkItem, error) {
	var w WorkItem
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errdefs.Validationf("work item record malformed: %v", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}
