package ws

import (
	"github.com/suit-up-repos/questd/internal/replication"
	"github.com/suit-up-repos/questd/internal/storage"
)

// Wire message types.
const (
	MessageClientLoaded = "client_loaded"
	MessageSnapshot     = "snapshot"
	MessageEvent        = "event"
)

// ClientMessage is a viewer-to-authority frame.
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// ServerMessage is an authority-to-viewer frame: either a snapshot response
// or one replication event.
type ServerMessage struct {
	Type      string                   `json:"type"`
	RequestID string                   `json:"request_id,omitempty"`
	Quests    map[string]RecordPayload `json:"quests,omitempty"`
	Event     *replication.Event       `json:"event,omitempty"`
}

// RecordPayload is the wire form of one quest record.
type RecordPayload struct {
	Segment   int  `json:"segment"`
	State     int  `json:"state"`
	Completed bool `json:"completed"`
}

func toPayloads(records map[string]storage.QuestRecord) map[string]RecordPayload {
	out := make(map[string]RecordPayload, len(records))
	for name, record := range records {
		out[name] = RecordPayload{
			Segment:   record.Segment,
			State:     record.State,
			Completed: record.Completed,
		}
	}
	return out
}

// FromPayloads converts wire records back into store records.
func FromPayloads(payloads map[string]RecordPayload) map[string]storage.QuestRecord {
	out := make(map[string]storage.QuestRecord, len(payloads))
	for name, payload := range payloads {
		out[name] = storage.QuestRecord{
			Segment:   payload.Segment,
			State:     payload.State,
			Completed: payload.Completed,
		}
	}
	return out
}
