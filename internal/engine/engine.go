// Package engine owns the quest progression state machine: the authority-side
// lifecycle of every (participant, quest) pair from entry through segment
// advances to completion. The engine consults the session registry before
// mutating, persists through the quest store's atomic update primitive, and
// emits replication events after each transaction commits.
package engine

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/suit-up-repos/questd/internal/catalog"
	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
	"github.com/suit-up-repos/questd/internal/platform/requestctx"
	"github.com/suit-up-repos/questd/internal/replication"
	"github.com/suit-up-repos/questd/internal/session"
	"github.com/suit-up-repos/questd/internal/storage"
	"github.com/suit-up-repos/questd/internal/telemetry"
)

// Engine is the authority for quest progression. Operations on the same
// (participant, quest) pair are serialized; everything else runs
// concurrently with no shared mutable state beyond the store.
type Engine struct {
	catalog   *catalog.Catalog
	store     storage.QuestStore
	sessions  *session.Registry
	sink      replication.Sink
	telemetry *telemetry.Emitter

	// mu guards keys. Each entry serializes one (participant, quest) pair
	// across its store transaction and the event emission that follows, so
	// replication order always matches commit order. Entries are refcounted
	// and removed once the last holder releases, keeping the map bounded by
	// in-flight operations rather than pairs ever seen.
	mu   sync.Mutex
	keys map[string]*keyLock
}

// keyLock is one per-pair serialization lock together with the number of
// operations currently holding or waiting on it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a quest progression engine. The sink and emitter may be nil
// for headless runs; catalog, store, and sessions are required.
func New(cat *catalog.Catalog, store storage.QuestStore, sessions *session.Registry, sink replication.Sink, emitter *telemetry.Emitter) (*Engine, error) {
	if cat == nil {
		return nil, apperrors.New(apperrors.CodeUnknown, "catalog is required")
	}
	if store == nil {
		return nil, apperrors.New(apperrors.CodeUnknown, "quest store is required")
	}
	if sessions == nil {
		return nil, apperrors.New(apperrors.CodeUnknown, "session registry is required")
	}
	if sink == nil {
		sink = replication.NopSink{}
	}
	return &Engine{
		catalog:   cat,
		store:     store,
		sessions:  sessions,
		sink:      sink,
		telemetry: emitter,
		keys:      make(map[string]*keyLock),
	}, nil
}

// lockKey acquires the serialization lock for one (participant, quest) pair
// and returns its release function.
func (e *Engine) lockKey(participantID, questName string) func() {
	key := participantID + "\x00" + questName
	e.mu.Lock()
	kl, ok := e.keys[key]
	if !ok {
		kl = &keyLock{}
		e.keys[key] = kl
	}
	kl.refs++
	e.mu.Unlock()
	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		e.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(e.keys, key)
		}
		e.mu.Unlock()
	}
}

// withInvocation stamps a fresh invocation id on the context unless the
// caller already carries one, so nested transitions share the same id.
func withInvocation(ctx context.Context) context.Context {
	if requestctx.InvocationIDFromContext(ctx) != "" {
		return ctx
	}
	return requestctx.WithInvocationID(ctx, uuid.NewString())
}

// awaitReady blocks until the participant's session registers, bounded by
// the registry timeout. On timeout the operation proceeds best-effort: the
// store still serializes writes, only pending exit actions may be dropped.
func (e *Engine) awaitReady(ctx context.Context, participantID string) {
	if err := e.sessions.AwaitReady(ctx, participantID); err != nil {
		log.Printf("engine: session wait participant_id=%s err=%v", participantID, err)
	}
}

// publish delivers a replication event to the participant's viewer.
// Delivery failures are logged and dropped; the snapshot pull recovers.
func (e *Engine) publish(ctx context.Context, participantID string, evt replication.Event) {
	if err := e.sink.Publish(ctx, participantID, evt); err != nil {
		log.Printf("engine: publish participant_id=%s quest=%s type=%s err=%v", participantID, evt.Quest, evt.Type, err)
	}
}

// record writes one telemetry event for an engine operation.
func (e *Engine) record(ctx context.Context, eventName, participantID, questName string, opErr error, attrs map[string]any) {
	severity := telemetry.SeverityInfo
	errorCode := ""
	if opErr != nil {
		severity = telemetry.SeverityWarn
		errorCode = string(apperrors.CodeOf(opErr))
		if errorCode == string(apperrors.CodeStoreFailure) {
			severity = telemetry.SeverityError
		}
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		if attrs == nil {
			attrs = make(map[string]any, 2)
		}
		attrs["trace_id"] = sc.TraceID().String()
		attrs["span_id"] = sc.SpanID().String()
	}
	err := e.telemetry.Emit(ctx, storage.TelemetryEvent{
		EventName:     eventName,
		Severity:      string(severity),
		ParticipantID: participantID,
		Quest:         questName,
		InvocationID:  requestctx.InvocationIDFromContext(ctx),
		ErrorCode:     errorCode,
		Attributes:    attrs,
	})
	if err != nil {
		log.Printf("engine: telemetry emit event=%s participant_id=%s err=%v", eventName, participantID, err)
	}
}
