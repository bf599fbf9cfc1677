// Package mirror maintains the viewer-side projection of a participant's
// quest state. The projection is driven exclusively by the snapshot pull and
// the replication event stream; presentation code reads it, never writes it.
// Missed events are recovered by loading a fresh snapshot, so the mirror
// must always be able to rebuild from one.
package mirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/suit-up-repos/questd/internal/catalog"
	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
	"github.com/suit-up-repos/questd/internal/replication"
	"github.com/suit-up-repos/questd/internal/storage"
)

// Mirror is one participant's local copy of their quest records plus the
// viewer-side segment handlers. The authority's exit closures cannot cross
// the replication boundary, so the mirror enforces the exit-then-enter rule
// independently with its own handler set.
type Mirror struct {
	participantID string
	catalog       *catalog.Catalog

	mu      sync.Mutex
	records map[string]storage.QuestRecord
	exits   map[string]catalog.ExitHandler
}

// New creates a mirror for one participant. The catalog carries the
// viewer-side segment handlers; it may differ from the authority's catalog
// in behavior but must match it in structure.
func New(participantID string, cat *catalog.Catalog) (*Mirror, error) {
	if participantID == "" {
		return nil, apperrors.New(apperrors.CodeParticipantEmptyID, "participant id is required")
	}
	if cat == nil {
		return nil, apperrors.New(apperrors.CodeUnknown, "catalog is required")
	}
	return &Mirror{
		participantID: participantID,
		catalog:       cat,
		records:       make(map[string]storage.QuestRecord),
		exits:         make(map[string]catalog.ExitHandler),
	}, nil
}

// LoadSnapshot replaces the mirrored records with a fresh authority
// snapshot. Pending local exit actions are discarded without running: a
// snapshot load means event continuity was lost, and the next transition
// event re-establishes handler state.
func (m *Mirror) LoadSnapshot(records map[string]storage.QuestRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]storage.QuestRecord, len(records))
	for name, record := range records {
		m.records[name] = record
	}
	m.exits = make(map[string]catalog.ExitHandler)
}

// Apply folds one replication event into the mirrored state and runs the
// affected segment's local handlers.
func (m *Mirror) Apply(ctx context.Context, evt replication.Event) error {
	if !evt.IsValid() {
		return apperrors.New(apperrors.CodeUnknown, fmt.Sprintf("invalid replication event %q", evt.Type))
	}

	m.mu.Lock()
	record := m.records[evt.Quest]
	switch evt.Type {
	case replication.TypeEnteredQuest:
		record = storage.QuestRecord{Segment: 1, State: 0}
	case replication.TypeIncrementQuest:
		record.Segment = evt.Segment
		record.State = evt.State
	case replication.TypeNextSegment:
		record.Segment = evt.Segment
	case replication.TypeCompletedQuest:
		record.Completed = true
		record.State = 0
		if def, ok := m.catalog.Get(evt.Quest); ok && record.Segment > len(def.Segments) {
			record.Segment = len(def.Segments)
		}
	}
	if record.Segment < 1 {
		record.Segment = 1
	}
	m.records[evt.Quest] = record
	m.mu.Unlock()

	switch evt.Type {
	case replication.TypeEnteredQuest:
		return m.transition(ctx, evt.Quest, 1)
	case replication.TypeNextSegment:
		return m.transition(ctx, evt.Quest, evt.Segment)
	case replication.TypeCompletedQuest:
		m.runExit(ctx, evt.Quest)
	}
	return nil
}

// transition runs the local exit-then-enter rule for a segment becoming
// current. Handlers run outside the mirror lock so they may read back
// mirrored state.
func (m *Mirror) transition(ctx context.Context, questName string, segment int) error {
	m.runExit(ctx, questName)

	def, ok := m.catalog.Get(questName)
	if !ok || segment < 1 || segment > len(def.Segments) {
		return nil
	}
	enter := def.Segments[segment-1].OnEnter
	if enter == nil {
		return nil
	}
	exit, err := enter(ctx, m.participantID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSegmentHandlerFailure,
			fmt.Sprintf("quest %q segment %d local enter handler", questName, segment), err)
	}
	if exit != nil {
		m.mu.Lock()
		m.exits[questName] = exit
		m.mu.Unlock()
	}
	return nil
}

// runExit takes and runs the pending local exit action for a quest, if any.
func (m *Mirror) runExit(ctx context.Context, questName string) {
	m.mu.Lock()
	exit, ok := m.exits[questName]
	delete(m.exits, questName)
	m.mu.Unlock()
	if ok && exit != nil {
		exit(ctx, m.participantID)
	}
}

// Record returns the mirrored record for one quest.
func (m *Mirror) Record(questName string) (storage.QuestRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[questName]
	return record, ok
}

// HasCompleted reports whether the mirrored record marks a quest completed.
func (m *Mirror) HasCompleted(questName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[questName].Completed
}

// Snapshot returns a copy of every mirrored record.
func (m *Mirror) Snapshot() map[string]storage.QuestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]storage.QuestRecord, len(m.records))
	for name, record := range m.records {
		out[name] = record
	}
	return out
}
