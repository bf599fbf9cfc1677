// Package replication defines the one-way event stream from the quest
// authority to a participant's viewer. Events are scoped to a single
// participant's own connection and are emitted in the order the
// corresponding store transactions committed.
package replication

import (
	"context"
	"strings"
)

// EventType identifies the kind of a replication event.
type EventType string

const (
	// TypeEnteredQuest records a successful quest entry.
	TypeEnteredQuest EventType = "quest.entered"
	// TypeIncrementQuest records committed progress within a segment.
	TypeIncrementQuest EventType = "quest.incremented"
	// TypeNextSegment records a segment transition.
	TypeNextSegment EventType = "quest.next_segment"
	// TypeCompletedQuest records quest completion.
	TypeCompletedQuest EventType = "quest.completed"
)

// Event is one replication event on the wire.
type Event struct {
	// Type identifies the kind of event.
	Type EventType `json:"type"`
	// Quest names the quest the event belongs to.
	Quest string `json:"quest"`
	// Segment carries the current segment for increment and transition events.
	Segment int `json:"segment,omitempty"`
	// State carries the accumulated segment progress for increment events.
	State int `json:"state,omitempty"`
}

// IsValid reports whether the event names a known type and a quest.
func (e Event) IsValid() bool {
	switch e.Type {
	case TypeEnteredQuest, TypeIncrementQuest, TypeNextSegment, TypeCompletedQuest:
	default:
		return false
	}
	return strings.TrimSpace(e.Quest) != ""
}

// EnteredQuest builds a quest-entry event.
func EnteredQuest(quest string) Event {
	return Event{Type: TypeEnteredQuest, Quest: quest}
}

// IncrementQuest builds a progress event for the current segment.
func IncrementQuest(quest string, segment, state int) Event {
	return Event{Type: TypeIncrementQuest, Quest: quest, Segment: segment, State: state}
}

// NextSegment builds a segment-transition event.
func NextSegment(quest string, segment int) Event {
	return Event{Type: TypeNextSegment, Quest: quest, Segment: segment}
}

// CompletedQuest builds a completion event.
func CompletedQuest(quest string) Event {
	return Event{Type: TypeCompletedQuest, Quest: quest}
}

// Sink delivers replication events to a participant's viewer. Delivery is
// fire-and-forget: implementations log and drop when the participant has no
// live viewer, and never retry. The snapshot pull is the sole recovery
// mechanism for missed events.
type Sink interface {
	Publish(ctx context.Context, participantID string, evt Event) error
}

// NopSink discards every event. Useful for tests and headless runs.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(context.Context, string, Event) error { return nil }
