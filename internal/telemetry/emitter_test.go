package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/suit-up-repos/questd/internal/storage"
)

type captureStore struct {
	events []storage.TelemetryEvent
}

func (c *captureStore) AppendTelemetryEvent(_ context.Context, evt storage.TelemetryEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestEmitStampsTimestampAndSeverity(t *testing.T) {
	store := &captureStore{}
	emitter := NewEmitter(store)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	emitter.clock = func() time.Time { return now }

	err := emitter.Emit(context.Background(), storage.TelemetryEvent{
		EventName:     "quest.enter",
		ParticipantID: "p1",
		Quest:         "Tutorial",
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	evt := store.events[0]
	if !evt.Timestamp.Equal(now) {
		t.Fatalf("expected clock timestamp, got %v", evt.Timestamp)
	}
	if evt.Severity != string(SeverityInfo) {
		t.Fatalf("expected INFO default severity, got %q", evt.Severity)
	}
}

func TestEmitPreservesExplicitFields(t *testing.T) {
	store := &captureStore{}
	emitter := NewEmitter(store)
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := emitter.Emit(context.Background(), storage.TelemetryEvent{
		EventName: "quest.enter_rejected",
		Severity:  string(SeverityWarn),
		Timestamp: stamp,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	evt := store.events[0]
	if evt.Severity != string(SeverityWarn) {
		t.Fatalf("expected WARN severity, got %q", evt.Severity)
	}
	if !evt.Timestamp.Equal(stamp) {
		t.Fatalf("expected explicit timestamp, got %v", evt.Timestamp)
	}
}

func TestEmitNilSafe(t *testing.T) {
	var emitter *Emitter
	if err := emitter.Emit(context.Background(), storage.TelemetryEvent{EventName: "x"}); err != nil {
		t.Fatalf("nil emitter emit: %v", err)
	}
	if err := NewEmitter(nil).Emit(context.Background(), storage.TelemetryEvent{EventName: "x"}); err != nil {
		t.Fatalf("nil store emit: %v", err)
	}
}
