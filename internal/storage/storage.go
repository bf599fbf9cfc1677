// Package storage defines the durable persistence contracts for participant
// quest records. The store is the sole source of truth for quest progress;
// the engine never caches records beyond a single update call.
package storage

import (
	"context"
	"time"

	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such record"
// states and I/O or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// QuestRecord captures one participant's progress through one quest.
type QuestRecord struct {
	// Segment is the current 1-based segment index. Frozen once Completed.
	Segment int
	// State is the progress accumulated within the current segment.
	// Reset to zero on every segment advance.
	State int
	// Completed marks the quest finished. Further increments are rejected
	// unless the quest is repeatable and re-entered.
	Completed bool
	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time
}

// UpdateFunc mutates a quest record inside an atomic update transaction.
// Implementations must not perform I/O; the store may re-invoke the function
// if the transaction has to be retried.
type UpdateFunc func(record *QuestRecord) error

// QuestStore owns participant quest records. UpdateQuest is the only
// read-modify-write primitive: all progress mutation goes through it so two
// concurrent updates on the same (participant, quest) key never interleave.
type QuestStore interface {
	// GetQuest retrieves one quest record. Returns ErrNotFound when the
	// participant has never entered the quest.
	GetQuest(ctx context.Context, participantID, questName string) (QuestRecord, error)
	// PutQuest stores a quest record, replacing any existing one.
	PutQuest(ctx context.Context, participantID, questName string, record QuestRecord) error
	// UpdateQuest applies fn to the current record atomically and returns the
	// committed result. Returns ErrNotFound when no record exists.
	UpdateQuest(ctx context.Context, participantID, questName string, fn UpdateFunc) (QuestRecord, error)
	// ListQuests returns every quest record for a participant, keyed by quest
	// name. An empty map is returned for unknown participants.
	ListQuests(ctx context.Context, participantID string) (map[string]QuestRecord, error)
}

// TelemetryEvent captures one operational observation emitted during an
// engine operation.
type TelemetryEvent struct {
	Timestamp     time.Time
	EventName     string
	Severity      string
	ParticipantID string
	Quest         string
	InvocationID  string
	ErrorCode     string
	Attributes    map[string]any
}

// TelemetryStore persists operational telemetry records for audits and
// incident analysis.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}

// QuestStatistics contains aggregate counters used by the stats endpoint.
type QuestStatistics struct {
	ParticipantCount int64
	RecordCount      int64
	CompletedCount   int64
}

// StatisticsStore centralizes aggregate count queries for operational
// observability.
type StatisticsStore interface {
	GetQuestStatistics(ctx context.Context) (QuestStatistics, error)
}

// Store is the composite interface for all persistence concerns.
type Store interface {
	QuestStore
	TelemetryStore
	StatisticsStore
	Close() error
}
