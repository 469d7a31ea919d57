package bridge

import (
	"encoding/base64"
	"encoding/json"

	"github.com/rzbill/orbiter/internal/errdefs"
	"github.com/rzbill/orbiter/internal/table"
)

// QueueMessage is the envelope the bridge enqueues for each new work
// item. It carries the record identity plus a snapshot of the payload;
// the consumer re-reads the record before acting on it.
type QueueMessage struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	BugID        string `json:"BugId"`
	Payload      string `json:"Payload"`
}

// NewQueueMessage snapshots a work item's identity and payload.
func NewQueueMessage(w *table.WorkItem) QueueMessage {
	return QueueMessage{
		PartitionKey: w.PartitionKey,
		RowKey:       w.RowKey,
		BugID:        w.BugID,
		Payload:      w.Payload,
	}
}

// Encode serializes the message as base64-wrapped JSON, the format
// consumers expect on the queue.
func (m QueueMessage) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// DecodeQueueMessage reverses Encode. Undecodable bodies and messages
// missing their record identity are validation errors: retrying them
// can never succeed.
func DecodeQueueMessage(body []byte) (QueueMessage, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(raw, body)
	if err != nil {
		return QueueMessage{}, errdefs.Validation("queue message is not valid base64")
	}
	var m QueueMessage
	if err := json.Unmarshal(raw[:n], &m); err != nil {
		return QueueMessage{}, errdefs.Validation("queue message is not valid JSON")
	}
	if m.PartitionKey == "" || m.RowKey == "" {
		return QueueMessage{}, errdefs.Validation("queue message missing PartitionKey or RowKey")
	}
	return m, nil
}
