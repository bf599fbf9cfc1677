package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/suit-up-repos/questd/internal/catalog"
	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
	"github.com/suit-up-repos/questd/internal/storage"
)

// HasCompletedQuest reports whether the participant has completed a quest.
// storage.ErrNotFound distinguishes "never entered" from "in progress".
func (e *Engine) HasCompletedQuest(ctx context.Context, participantID, questName string) (bool, error) {
	participantID, def, err := e.resolve(participantID, questName)
	if err != nil {
		return false, err
	}
	record, err := e.store.GetQuest(ctx, participantID, def.Name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, err
		}
		return false, apperrors.Wrap(apperrors.CodeStoreFailure, "get quest record", err)
	}
	return record.Completed, nil
}

// GetQuestLength returns the number of segments in a quest.
func (e *Engine) GetQuestLength(questName string) (int, error) {
	def, ok := e.catalog.Get(questName)
	if !ok {
		return 0, apperrors.WithMetadata(apperrors.CodeQuestNotFound,
			fmt.Sprintf("quest %q is not in the catalog", questName),
			map[string]string{"quest": questName})
	}
	return len(def.Segments), nil
}

// GetSegmentData returns one segment definition by 1-based index.
func (e *Engine) GetSegmentData(questName string, segment int) (catalog.Segment, error) {
	def, ok := e.catalog.Get(questName)
	if !ok {
		return catalog.Segment{}, apperrors.WithMetadata(apperrors.CodeQuestNotFound,
			fmt.Sprintf("quest %q is not in the catalog", questName),
			map[string]string{"quest": questName})
	}
	if segment < 1 || segment > len(def.Segments) {
		return catalog.Segment{}, apperrors.WithMetadata(apperrors.CodeSegmentOutOfRange,
			fmt.Sprintf("quest %q has no segment %d", questName, segment),
			map[string]string{"quest": questName})
	}
	return def.Segments[segment-1], nil
}

// GetQuestRecord returns the participant's stored record for one quest.
func (e *Engine) GetQuestRecord(ctx context.Context, participantID, questName string) (storage.QuestRecord, error) {
	participantID, def, err := e.resolve(participantID, questName)
	if err != nil {
		return storage.QuestRecord{}, err
	}
	record, err := e.store.GetQuest(ctx, participantID, def.Name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.QuestRecord{}, err
		}
		return storage.QuestRecord{}, apperrors.Wrap(apperrors.CodeStoreFailure, "get quest record", err)
	}
	return record, nil
}
