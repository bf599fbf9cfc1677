package catalog

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
)

func TestNewValidatesDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		defs     []Definition
		wantCode apperrors.Code
	}{
		{
			name:     "empty name",
			defs:     []Definition{{Name: "  ", Segments: []Segment{{Requirement: 1}}}},
			wantCode: apperrors.CodeCatalogEmptyQuestName,
		},
		{
			name: "duplicate name",
			defs: []Definition{
				{Name: "Tutorial", Segments: []Segment{{Requirement: 1}}},
				{Name: "Tutorial", Segments: []Segment{{Requirement: 2}}},
			},
			wantCode: apperrors.CodeCatalogDuplicateQuest,
		},
		{
			name:     "no segments",
			defs:     []Definition{{Name: "Empty"}},
			wantCode: apperrors.CodeCatalogNoSegments,
		},
		{
			name:     "zero requirement",
			defs:     []Definition{{Name: "Broken", Segments: []Segment{{Requirement: 0}}}},
			wantCode: apperrors.CodeCatalogInvalidRequirement,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.defs...)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := apperrors.CodeOf(err); got != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, got)
			}
		})
	}
}

func TestNewTrimsAndIndexesQuests(t *testing.T) {
	c, err := New(
		Definition{Name: " Tutorial ", Segments: []Segment{{Requirement: 2}, {Requirement: 1}}},
		Definition{Name: "Daily Mining", Repeatable: true, Segments: []Segment{{Requirement: 10}}},
	)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 quests, got %d", c.Len())
	}

	def, ok := c.Get("Tutorial")
	if !ok {
		t.Fatal("expected trimmed quest name to resolve")
	}
	if len(def.Segments) != 2 || def.Segments[0].Requirement != 2 {
		t.Fatalf("unexpected segments: %+v", def.Segments)
	}

	names := c.Names()
	if len(names) != 2 || names[0] != "Daily Mining" || names[1] != "Tutorial" {
		t.Fatalf("expected sorted names, got %v", names)
	}
}

func TestGetUnknownQuest(t *testing.T) {
	c, err := New(Definition{Name: "Tutorial", Segments: []Segment{{Requirement: 1}}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, ok := c.Get("Missing"); ok {
		t.Fatal("expected unknown quest lookup to fail")
	}
}

func TestAttachBindsHandlers(t *testing.T) {
	defs := []Definition{
		{Name: "Tutorial", Segments: []Segment{{Requirement: 2}, {Requirement: 1}}},
	}

	var enteredSegment int
	attached, err := Attach(defs, map[string]Handlers{
		"Tutorial": {
			Verify: func(context.Context, string) (bool, error) { return true, nil },
			SegmentEnter: map[int]EnterHandler{
				2: func(context.Context, string) (ExitHandler, error) {
					enteredSegment = 2
					return nil, nil
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("attach handlers: %v", err)
	}

	def := attached[0]
	if def.Verify == nil {
		t.Fatal("expected verify handler to be attached")
	}
	if def.Segments[0].OnEnter != nil {
		t.Fatal("expected segment 1 to have no enter handler")
	}
	if def.Segments[1].OnEnter == nil {
		t.Fatal("expected segment 2 enter handler to be attached")
	}
	if _, err := def.Segments[1].OnEnter(context.Background(), "p1"); err != nil {
		t.Fatalf("run enter handler: %v", err)
	}
	if enteredSegment != 2 {
		t.Fatalf("expected segment 2 handler to run, got %d", enteredSegment)
	}

	// Attach must not mutate the input definitions.
	if defs[0].Verify != nil || defs[0].Segments[1].OnEnter != nil {
		t.Fatal("expected input definitions to be untouched")
	}
}

func TestAttachRejectsUnknownQuest(t *testing.T) {
	defs := []Definition{{Name: "Tutorial", Segments: []Segment{{Requirement: 1}}}}

	_, err := Attach(defs, map[string]Handlers{"Missing": {}})
	if err == nil {
		t.Fatal("expected unknown quest error")
	}
	if !errors.Is(err, apperrors.New(apperrors.CodeCatalogUnknownHandlerQuest, "")) {
		t.Fatalf("expected CATALOG_UNKNOWN_HANDLER_QUEST, got %v", err)
	}
}

func TestAttachRejectsSegmentOutOfRange(t *testing.T) {
	defs := []Definition{{Name: "Tutorial", Segments: []Segment{{Requirement: 1}}}}

	_, err := Attach(defs, map[string]Handlers{
		"Tutorial": {SegmentEnter: map[int]EnterHandler{
			3: func(context.Context, string) (ExitHandler, error) { return nil, nil },
		}},
	})
	if err == nil {
		t.Fatal("expected segment range error")
	}
	if got := apperrors.CodeOf(err); got != apperrors.CodeSegmentOutOfRange {
		t.Fatalf("expected SEGMENT_OUT_OF_RANGE, got %s", got)
	}
}
