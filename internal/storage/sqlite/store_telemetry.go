package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/suit-up-repos/questd/internal/storage"
)

// AppendTelemetryEvent persists one operational telemetry record.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	eventName := strings.TrimSpace(evt.EventName)
	if eventName == "" {
		return fmt.Errorf("event name is required")
	}
	timestamp := evt.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	severity := strings.TrimSpace(evt.Severity)
	if severity == "" {
		severity = "INFO"
	}

	attributesJSON := []byte("{}")
	if len(evt.Attributes) > 0 {
		encoded, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("marshal telemetry attributes: %w", err)
		}
		attributesJSON = encoded
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO telemetry_events (
		   timestamp, event_name, severity, participant_id, quest_name, invocation_id, error_code, attributes_json
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(timestamp),
		eventName,
		severity,
		evt.ParticipantID,
		evt.Quest,
		evt.InvocationID,
		evt.ErrorCode,
		string(attributesJSON),
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

// GetQuestStatistics returns aggregate quest counters.
func (s *Store) GetQuestStatistics(ctx context.Context) (storage.QuestStatistics, error) {
	if err := ctx.Err(); err != nil {
		return storage.QuestStatistics{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.QuestStatistics{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT participant_id),
		        COUNT(*),
		        COALESCE(SUM(completed), 0)
		   FROM quest_records`,
	)

	var stats storage.QuestStatistics
	if err := row.Scan(&stats.ParticipantCount, &stats.RecordCount, &stats.CompletedCount); err != nil {
		return storage.QuestStatistics{}, fmt.Errorf("get quest statistics: %w", err)
	}
	return stats, nil
}
