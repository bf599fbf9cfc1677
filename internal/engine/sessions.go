package engine

import (
	"context"
	"log"
	"sort"
	"strings"

	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
)

// RegisterSession marks a participant's session ready and resumes every
// in-progress quest from its persisted record: the current segment's enter
// handler re-runs so its exit action is re-armed after a reconnect. Quests
// stranded past their last segment by a crash complete during resume.
func (e *Engine) RegisterSession(ctx context.Context, participantID string) error {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return apperrors.New(apperrors.CodeParticipantEmptyID, "participant id is required")
	}
	ctx = withInvocation(ctx)

	e.sessions.Register(participantID)

	records, err := e.store.ListQuests(ctx, participantID)
	if err != nil {
		err = apperrors.Wrap(apperrors.CodeStoreFailure, "list quest records", err)
		e.record(ctx, "session.register", participantID, "", err, nil)
		return err
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	resumed := 0
	for _, name := range names {
		if records[name].Completed {
			continue
		}
		def, ok := e.catalog.Get(name)
		if !ok {
			log.Printf("engine: resume skipped participant_id=%s quest=%s err=not in catalog", participantID, name)
			continue
		}
		unlock := e.lockKey(participantID, def.Name)
		_, resumeErr := e.attemptNextSegmentLocked(ctx, participantID, def)
		unlock()
		if resumeErr != nil {
			log.Printf("engine: resume participant_id=%s quest=%s err=%v", participantID, def.Name, resumeErr)
			continue
		}
		resumed++
	}

	e.record(ctx, "session.register", participantID, "", nil, map[string]any{
		"quests":  len(records),
		"resumed": resumed,
	})
	log.Printf("engine: session registered participant_id=%s quests=%d resumed=%d", participantID, len(records), resumed)
	return nil
}

// UnregisterSession discards the participant's in-memory session state.
// Pending exit actions die with the session; persisted state is untouched.
func (e *Engine) UnregisterSession(ctx context.Context, participantID string) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return
	}
	e.sessions.Unregister(participantID)
	e.record(withInvocation(ctx), "session.unregister", participantID, "", nil, nil)
	log.Printf("engine: session unregistered participant_id=%s", participantID)
}
