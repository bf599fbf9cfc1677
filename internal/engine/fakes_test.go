package engine

import (
	"context"
	"sync"
	"time"

	"github.com/suit-up-repos/questd/internal/replication"
	"github.com/suit-up-repos/questd/internal/storage"
)

// memStore is an in-memory QuestStore with the same atomic-per-key update
// contract as the sqlite store.
type memStore struct {
	mu      sync.Mutex
	records map[string]storage.QuestRecord
	failure error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]storage.QuestRecord)}
}

func storeKey(participantID, questName string) string {
	return participantID + "/" + questName
}

func (s *memStore) GetQuest(_ context.Context, participantID, questName string) (storage.QuestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return storage.QuestRecord{}, s.failure
	}
	record, ok := s.records[storeKey(participantID, questName)]
	if !ok {
		return storage.QuestRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *memStore) PutQuest(_ context.Context, participantID, questName string, record storage.QuestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	record.UpdatedAt = time.Now().UTC()
	s.records[storeKey(participantID, questName)] = record
	return nil
}

func (s *memStore) UpdateQuest(_ context.Context, participantID, questName string, fn storage.UpdateFunc) (storage.QuestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return storage.QuestRecord{}, s.failure
	}
	record, ok := s.records[storeKey(participantID, questName)]
	if !ok {
		return storage.QuestRecord{}, storage.ErrNotFound
	}
	if err := fn(&record); err != nil {
		return storage.QuestRecord{}, err
	}
	record.UpdatedAt = time.Now().UTC()
	s.records[storeKey(participantID, questName)] = record
	return record, nil
}

func (s *memStore) ListQuests(_ context.Context, participantID string) (map[string]storage.QuestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, s.failure
	}
	out := make(map[string]storage.QuestRecord)
	prefix := participantID + "/"
	for key, record := range s.records {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out[key[len(prefix):]] = record
		}
	}
	return out, nil
}

type published struct {
	participantID string
	event         replication.Event
}

// captureSink records every published event in emission order.
type captureSink struct {
	mu     sync.Mutex
	events []published
}

func (s *captureSink) Publish(_ context.Context, participantID string, evt replication.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, published{participantID: participantID, event: evt})
	return nil
}

func (s *captureSink) all() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]published, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) types() []replication.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]replication.EventType, 0, len(s.events))
	for _, p := range s.events {
		out = append(out, p.event.Type)
	}
	return out
}
