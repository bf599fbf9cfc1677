package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/suit-up-repos/questd/internal/catalog"
	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
	"github.com/suit-up-repos/questd/internal/replication"
	"github.com/suit-up-repos/questd/internal/storage"
)

// resolve validates operation arguments and looks up the quest definition.
func (e *Engine) resolve(participantID, questName string) (string, catalog.Definition, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return "", catalog.Definition{}, apperrors.New(apperrors.CodeParticipantEmptyID, "participant id is required")
	}
	def, ok := e.catalog.Get(questName)
	if !ok {
		return "", catalog.Definition{}, apperrors.WithMetadata(apperrors.CodeQuestNotFound,
			fmt.Sprintf("quest %q is not in the catalog", strings.TrimSpace(questName)),
			map[string]string{"quest": strings.TrimSpace(questName)})
	}
	return participantID, def, nil
}

// EnterQuest starts a quest for a participant. It rejects entry when the
// quest is already active, completed and not repeatable, or when the quest's
// verify predicate declines. On success segment 1's enter handler runs, a
// fresh record is persisted, and an entered event is replicated.
func (e *Engine) EnterQuest(ctx context.Context, participantID, questName string) (bool, error) {
	participantID, def, err := e.resolve(participantID, questName)
	if err != nil {
		return false, err
	}
	ctx = withInvocation(ctx)
	e.awaitReady(ctx, participantID)

	unlock := e.lockKey(participantID, def.Name)
	defer unlock()

	ok, err := e.enterQuestLocked(ctx, participantID, def)
	e.record(ctx, "quest.enter", participantID, def.Name, err, map[string]any{"success": ok})
	return ok, err
}

func (e *Engine) enterQuestLocked(ctx context.Context, participantID string, def catalog.Definition) (bool, error) {
	record, err := e.store.GetQuest(ctx, participantID, def.Name)
	switch {
	case err == nil:
		if !record.Completed {
			return false, apperrors.WithMetadata(apperrors.CodeQuestAlreadyActive,
				fmt.Sprintf("quest %q is already active", def.Name),
				map[string]string{"quest": def.Name})
		}
		if !def.Repeatable {
			return false, apperrors.WithMetadata(apperrors.CodeQuestNotRepeatable,
				fmt.Sprintf("quest %q is completed and not repeatable", def.Name),
				map[string]string{"quest": def.Name})
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return false, apperrors.Wrap(apperrors.CodeStoreFailure, "get quest record", err)
	}

	if def.Verify != nil {
		allowed, verifyErr := def.Verify(ctx, participantID)
		if verifyErr != nil {
			return false, apperrors.Wrap(apperrors.CodeSegmentHandlerFailure, "verify quest entry", verifyErr)
		}
		if !allowed {
			return false, apperrors.WithMetadata(apperrors.CodeQuestVerifyRejected,
				fmt.Sprintf("quest %q entry rejected by verify", def.Name),
				map[string]string{"quest": def.Name})
		}
	}

	if err := e.runSegmentEnter(ctx, participantID, def, 1); err != nil {
		return false, err
	}
	if err := e.store.PutQuest(ctx, participantID, def.Name, storage.QuestRecord{Segment: 1, State: 0}); err != nil {
		return false, apperrors.Wrap(apperrors.CodeStoreFailure, "put quest record", err)
	}
	e.publish(ctx, participantID, replication.EnteredQuest(def.Name))
	log.Printf("engine: quest entered participant_id=%s quest=%s", participantID, def.Name)
	return true, nil
}

// IncrementQuest adds progress to the participant's current segment inside
// one atomic store update. Crossing the segment requirement advances the
// record one segment and triggers the next-segment transition after the
// transaction commits. Exactly one boundary is crossed per call, however far
// the amount overshoots. Amounts below one are treated as one.
func (e *Engine) IncrementQuest(ctx context.Context, participantID, questName string, amount int) (bool, error) {
	participantID, def, err := e.resolve(participantID, questName)
	if err != nil {
		return false, err
	}
	if amount < 1 {
		amount = 1
	}
	ctx = withInvocation(ctx)
	e.awaitReady(ctx, participantID)

	unlock := e.lockKey(participantID, def.Name)
	defer unlock()

	var crossed, sentinel bool
	record, err := e.store.UpdateQuest(ctx, participantID, def.Name, func(r *storage.QuestRecord) error {
		crossed, sentinel = false, false
		if r.Completed {
			return apperrors.WithMetadata(apperrors.CodeQuestAlreadyCompleted,
				fmt.Sprintf("quest %q is already completed", def.Name),
				map[string]string{"quest": def.Name})
		}
		if r.Segment > len(def.Segments) {
			sentinel = true
			return apperrors.WithMetadata(apperrors.CodeSegmentOutOfRange,
				fmt.Sprintf("quest %q segment %d is past the last segment", def.Name, r.Segment),
				map[string]string{"quest": def.Name})
		}
		if r.State+amount >= def.Segments[r.Segment-1].Requirement {
			r.Segment++
			r.State = 0
			crossed = true
		} else {
			r.State += amount
		}
		return nil
	})
	if err != nil {
		if sentinel {
			// A crash between a boundary commit and its transition left the
			// sentinel segment behind. Resolve it; this increment is lost.
			log.Printf("engine: resolving sentinel segment participant_id=%s quest=%s", participantID, def.Name)
			if _, resolveErr := e.attemptNextSegmentLocked(ctx, participantID, def); resolveErr != nil {
				err = resolveErr
			} else {
				err = nil
			}
		} else if errors.Is(err, storage.ErrNotFound) {
			err = apperrors.Wrap(apperrors.CodeQuestNotEntered,
				fmt.Sprintf("quest %q has not been entered", def.Name), err)
		} else if apperrors.CodeOf(err) == apperrors.CodeUnknown {
			err = apperrors.Wrap(apperrors.CodeStoreFailure, "update quest record", err)
		}
		e.record(ctx, "quest.increment", participantID, def.Name, err, map[string]any{"amount": amount})
		return false, err
	}

	e.publish(ctx, participantID, replication.IncrementQuest(def.Name, record.Segment, record.State))
	e.record(ctx, "quest.increment", participantID, def.Name, nil, map[string]any{
		"amount":  amount,
		"segment": record.Segment,
		"state":   record.State,
		"crossed": crossed,
	})
	log.Printf("engine: quest incremented participant_id=%s quest=%s segment=%d state=%d", participantID, def.Name, record.Segment, record.State)

	if crossed {
		if _, transitionErr := e.attemptNextSegmentLocked(ctx, participantID, def); transitionErr != nil {
			// The increment is committed; the transition re-resolves on the
			// next increment or session register.
			log.Printf("engine: segment transition participant_id=%s quest=%s err=%v", participantID, def.Name, transitionErr)
		}
	}
	return true, nil
}

// AttemptNextSegment resolves the participant's current position: completed
// quests are left alone, a record past the last segment completes the quest,
// and anything else re-runs the current segment's transition.
func (e *Engine) AttemptNextSegment(ctx context.Context, participantID, questName string) (bool, error) {
	participantID, def, err := e.resolve(participantID, questName)
	if err != nil {
		return false, err
	}
	ctx = withInvocation(ctx)
	e.awaitReady(ctx, participantID)

	unlock := e.lockKey(participantID, def.Name)
	defer unlock()
	return e.attemptNextSegmentLocked(ctx, participantID, def)
}

func (e *Engine) attemptNextSegmentLocked(ctx context.Context, participantID string, def catalog.Definition) (bool, error) {
	record, err := e.store.GetQuest(ctx, participantID, def.Name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, apperrors.Wrap(apperrors.CodeQuestNotEntered,
				fmt.Sprintf("quest %q has not been entered", def.Name), err)
		}
		return false, apperrors.Wrap(apperrors.CodeStoreFailure, "get quest record", err)
	}
	if record.Completed {
		return false, nil
	}
	if record.Segment > len(def.Segments) {
		return e.completeQuestLocked(ctx, participantID, def)
	}
	return e.forceNextSegmentLocked(ctx, participantID, def, record.Segment)
}

// ForceNextSegment re-runs the transition into the participant's current
// segment: any pending exit action runs first, then the segment's enter
// handler, then a next-segment event replicates. The stored record is not
// modified.
func (e *Engine) ForceNextSegment(ctx context.Context, participantID, questName string) (bool, error) {
	participantID, def, err := e.resolve(participantID, questName)
	if err != nil {
		return false, err
	}
	ctx = withInvocation(ctx)
	e.awaitReady(ctx, participantID)

	unlock := e.lockKey(participantID, def.Name)
	defer unlock()

	record, err := e.store.GetQuest(ctx, participantID, def.Name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, apperrors.Wrap(apperrors.CodeQuestNotEntered,
				fmt.Sprintf("quest %q has not been entered", def.Name), err)
		}
		return false, apperrors.Wrap(apperrors.CodeStoreFailure, "get quest record", err)
	}
	if record.Completed {
		return false, apperrors.WithMetadata(apperrors.CodeQuestAlreadyCompleted,
			fmt.Sprintf("quest %q is already completed", def.Name),
			map[string]string{"quest": def.Name})
	}
	if record.Segment > len(def.Segments) {
		return e.completeQuestLocked(ctx, participantID, def)
	}
	return e.forceNextSegmentLocked(ctx, participantID, def, record.Segment)
}

func (e *Engine) forceNextSegmentLocked(ctx context.Context, participantID string, def catalog.Definition, segment int) (bool, error) {
	if err := e.runSegmentEnter(ctx, participantID, def, segment); err != nil {
		e.record(ctx, "quest.next_segment", participantID, def.Name, err, map[string]any{"segment": segment})
		return false, err
	}
	e.publish(ctx, participantID, replication.NextSegment(def.Name, segment))
	e.record(ctx, "quest.next_segment", participantID, def.Name, nil, map[string]any{"segment": segment})
	log.Printf("engine: segment entered participant_id=%s quest=%s segment=%d", participantID, def.Name, segment)
	return true, nil
}

// runSegmentEnter runs any pending exit action for the quest, then the
// segment's enter handler, storing the handler's exit action for the next
// transition. The take-and-clear on the registry is what keeps both sides
// at-most-once.
func (e *Engine) runSegmentEnter(ctx context.Context, participantID string, def catalog.Definition, segment int) error {
	if exit, ok := e.sessions.TakePendingExit(participantID, def.Name); ok {
		exit(ctx, participantID)
	}
	enter := def.Segments[segment-1].OnEnter
	if enter == nil {
		return nil
	}
	exit, err := enter(ctx, participantID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSegmentHandlerFailure,
			fmt.Sprintf("quest %q segment %d enter handler", def.Name, segment), err)
	}
	if !e.sessions.SetPendingExit(participantID, def.Name, exit) {
		log.Printf("engine: pending exit dropped participant_id=%s quest=%s segment=%d", participantID, def.Name, segment)
	}
	return nil
}

// CompleteQuest finishes a quest: any pending exit action runs, the record
// commits as completed with the segment clamped to the last valid index, the
// completion callback fires, and a completed event replicates. The record is
// retained so completion checks and repeat entry keep working.
func (e *Engine) CompleteQuest(ctx context.Context, participantID, questName string) (bool, error) {
	participantID, def, err := e.resolve(participantID, questName)
	if err != nil {
		return false, err
	}
	ctx = withInvocation(ctx)
	e.awaitReady(ctx, participantID)

	unlock := e.lockKey(participantID, def.Name)
	defer unlock()
	return e.completeQuestLocked(ctx, participantID, def)
}

func (e *Engine) completeQuestLocked(ctx context.Context, participantID string, def catalog.Definition) (bool, error) {
	if exit, ok := e.sessions.TakePendingExit(participantID, def.Name); ok {
		exit(ctx, participantID)
	}

	record, err := e.store.UpdateQuest(ctx, participantID, def.Name, func(r *storage.QuestRecord) error {
		if r.Completed {
			return apperrors.WithMetadata(apperrors.CodeQuestAlreadyCompleted,
				fmt.Sprintf("quest %q is already completed", def.Name),
				map[string]string{"quest": def.Name})
		}
		if r.Segment > len(def.Segments) {
			r.Segment = len(def.Segments)
		}
		r.State = 0
		r.Completed = true
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperrors.Wrap(apperrors.CodeQuestNotEntered,
				fmt.Sprintf("quest %q has not been entered", def.Name), err)
		} else if apperrors.CodeOf(err) == apperrors.CodeUnknown {
			err = apperrors.Wrap(apperrors.CodeStoreFailure, "update quest record", err)
		}
		e.record(ctx, "quest.complete", participantID, def.Name, err, nil)
		return false, err
	}

	if def.OnCompletion != nil {
		def.OnCompletion(ctx, participantID)
	}
	e.publish(ctx, participantID, replication.CompletedQuest(def.Name))
	e.record(ctx, "quest.complete", participantID, def.Name, nil, map[string]any{"segment": record.Segment})
	log.Printf("engine: quest completed participant_id=%s quest=%s", participantID, def.Name)
	return true, nil
}
