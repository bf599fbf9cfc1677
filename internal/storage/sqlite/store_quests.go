package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suit-up-repos/questd/internal/storage"
)

// GetQuest retrieves one quest record.
func (s *Store) GetQuest(ctx context.Context, participantID, questName string) (storage.QuestRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.QuestRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.QuestRecord{}, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	questName = strings.TrimSpace(questName)
	if participantID == "" {
		return storage.QuestRecord{}, fmt.Errorf("participant id is required")
	}
	if questName == "" {
		return storage.QuestRecord{}, fmt.Errorf("quest name is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT segment, state, completed, updated_at
		   FROM quest_records
		  WHERE participant_id = ? AND quest_name = ?`,
		participantID,
		questName,
	)
	return scanQuestRecord(row)
}

// PutQuest stores a quest record, replacing any existing one.
func (s *Store) PutQuest(ctx context.Context, participantID, questName string, record storage.QuestRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	questName = strings.TrimSpace(questName)
	if participantID == "" {
		return fmt.Errorf("participant id is required")
	}
	if questName == "" {
		return fmt.Errorf("quest name is required")
	}
	if record.Segment < 1 {
		return fmt.Errorf("segment must be >= 1")
	}
	if record.State < 0 {
		return fmt.Errorf("state must be >= 0")
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO quest_records (participant_id, quest_name, segment, state, completed, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (participant_id, quest_name) DO UPDATE SET
		   segment = excluded.segment,
		   state = excluded.state,
		   completed = excluded.completed,
		   updated_at = excluded.updated_at`,
		participantID,
		questName,
		record.Segment,
		record.State,
		boolToInt(record.Completed),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put quest record: %w", err)
	}
	return nil
}

// UpdateQuest applies fn to the current record inside one transaction. The
// immediate lock acquired at BEGIN serializes updates on the same key, so fn
// always sees the latest committed record.
func (s *Store) UpdateQuest(ctx context.Context, participantID, questName string, fn storage.UpdateFunc) (storage.QuestRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.QuestRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.QuestRecord{}, fmt.Errorf("storage is not configured")
	}
	if fn == nil {
		return storage.QuestRecord{}, fmt.Errorf("update function is required")
	}
	participantID = strings.TrimSpace(participantID)
	questName = strings.TrimSpace(questName)
	if participantID == "" {
		return storage.QuestRecord{}, fmt.Errorf("participant id is required")
	}
	if questName == "" {
		return storage.QuestRecord{}, fmt.Errorf("quest name is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.QuestRecord{}, fmt.Errorf("begin quest update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT segment, state, completed, updated_at
		   FROM quest_records
		  WHERE participant_id = ? AND quest_name = ?`,
		participantID,
		questName,
	)
	record, err := scanQuestRecord(row)
	if err != nil {
		return storage.QuestRecord{}, err
	}

	if err := fn(&record); err != nil {
		return storage.QuestRecord{}, err
	}
	if record.Segment < 1 {
		return storage.QuestRecord{}, fmt.Errorf("segment must be >= 1")
	}
	if record.State < 0 {
		return storage.QuestRecord{}, fmt.Errorf("state must be >= 0")
	}
	record.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE quest_records
		    SET segment = ?, state = ?, completed = ?, updated_at = ?
		  WHERE participant_id = ? AND quest_name = ?`,
		record.Segment,
		record.State,
		boolToInt(record.Completed),
		toMillis(record.UpdatedAt),
		participantID,
		questName,
	); err != nil {
		return storage.QuestRecord{}, fmt.Errorf("update quest record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.QuestRecord{}, fmt.Errorf("commit quest update: %w", err)
	}
	return record, nil
}

// ListQuests returns every quest record for a participant keyed by quest name.
func (s *Store) ListQuests(ctx context.Context, participantID string) (map[string]storage.QuestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("participant id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT quest_name, segment, state, completed, updated_at
		   FROM quest_records
		  WHERE participant_id = ?
		  ORDER BY quest_name ASC`,
		participantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quest records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]storage.QuestRecord)
	for rows.Next() {
		var questName string
		var record storage.QuestRecord
		var completed int
		var updatedAt int64
		if err := rows.Scan(&questName, &record.Segment, &record.State, &completed, &updatedAt); err != nil {
			return nil, fmt.Errorf("list quest records: %w", err)
		}
		record.Completed = completed != 0
		record.UpdatedAt = fromMillis(updatedAt)
		records[questName] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quest records: %w", err)
	}
	return records, nil
}

// scanQuestRecord maps one quest_records row into a domain record.
func scanQuestRecord(row *sql.Row) (storage.QuestRecord, error) {
	var record storage.QuestRecord
	var completed int
	var updatedAt int64
	err := row.Scan(&record.Segment, &record.State, &completed, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.QuestRecord{}, storage.ErrNotFound
		}
		return storage.QuestRecord{}, fmt.Errorf("scan quest record: %w", err)
	}
	record.Completed = completed != 0
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
