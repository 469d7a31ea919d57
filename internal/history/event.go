package history

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
)

// EventType discriminates history events.
type EventType string

const (
	// EventInstanceStarted opens an instance's log.
	EventInstanceStarted EventType = "instance_started"
	// EventTaskScheduled records a dispatch decision for one task slot.
	EventTaskScheduled EventType = "task_scheduled"
	// EventTaskCompleted records a successful task result.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed records a task failure.
	EventTaskFailed EventType = "task_failed"
	// EventInstanceFinished closes the log with a terminal status.
	EventInstanceFinished EventType = "instance_finished"
)

// Event is one history record. Fields are populated per type.
type Event struct {
	Type     EventType       `json:"type"`
	Workflow string          `json:"workflow,omitempty"`
	Slot     int             `json:"slot,omitempty"`
	Activity string          `json:"activity,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Status   string          `json:"status,omitempty"`
	TimeMs   int64           `json:"ts,omitempty"`
}

// Record encoding: payload | crc32c(payload). Events are small JSON blobs;
// the checksum catches torn or corrupted rows on replay.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	crc := crc32.Checksum(payload, castagnoli)
	out := make([]byte, 0, len(payload)+4)
	out = append(out, payload...)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...), nil
}

func decodeEvent(b []byte) (Event, bool) {
	if len(b) < 4 {
		return Event{}, false
	}
	payload := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(payload, castagnoli) != expect {
		return Event{}, false
	}
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, false
	}
	return e, true
}
