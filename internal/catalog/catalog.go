// Package catalog holds the static quest catalog: every quest definition,
// its ordered segments, and the behavior handlers attached to them. The
// catalog is built once at startup and is immutable afterwards, so readers
// never need locking.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
)

// ExitHandler tears down whatever the paired EnterHandler set up. The engine
// guarantees it runs at most once, exactly when the segment is left.
type ExitHandler func(ctx context.Context, participantID string)

// EnterHandler runs when a segment becomes current for a participant. The
// returned ExitHandler may be nil when the segment needs no teardown.
type EnterHandler func(ctx context.Context, participantID string) (ExitHandler, error)

// VerifyFunc gates quest entry. Returning false rejects EnterQuest without
// treating it as an error.
type VerifyFunc func(ctx context.Context, participantID string) (bool, error)

// CompletionFunc runs after a quest's completed record has been committed.
type CompletionFunc func(ctx context.Context, participantID string)

// Segment is one step of a quest.
type Segment struct {
	// Requirement is the progress needed to advance past this segment (>= 1).
	Requirement int
	// OnEnter optionally runs setup when the segment becomes current.
	OnEnter EnterHandler
}

// Definition describes one quest in the catalog.
type Definition struct {
	// Name uniquely identifies the quest.
	Name string
	// Repeatable permits re-entry after completion, resetting progress.
	Repeatable bool
	// Verify optionally gates entry.
	Verify VerifyFunc
	// OnCompletion optionally runs after completion commits.
	OnCompletion CompletionFunc
	// Segments is the ordered segment list (at least one).
	Segments []Segment
}

// Catalog is the validated, immutable set of quest definitions.
type Catalog struct {
	quests map[string]Definition
}

// New validates definitions and seals them into a catalog.
func New(defs ...Definition) (*Catalog, error) {
	quests := make(map[string]Definition, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, apperrors.New(apperrors.CodeCatalogEmptyQuestName, "quest name is required")
		}
		def.Name = name
		if _, exists := quests[name]; exists {
			return nil, apperrors.WithMetadata(apperrors.CodeCatalogDuplicateQuest,
				fmt.Sprintf("duplicate quest %q", name),
				map[string]string{"quest": name})
		}
		if len(def.Segments) == 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeCatalogNoSegments,
				fmt.Sprintf("quest %q has no segments", name),
				map[string]string{"quest": name})
		}
		for i, segment := range def.Segments {
			if segment.Requirement < 1 {
				return nil, apperrors.WithMetadata(apperrors.CodeCatalogInvalidRequirement,
					fmt.Sprintf("quest %q segment %d requirement must be >= 1", name, i+1),
					map[string]string{"quest": name})
			}
		}
		quests[name] = def
	}
	return &Catalog{quests: quests}, nil
}

// Get returns the definition for a quest name.
func (c *Catalog) Get(name string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	def, ok := c.quests[strings.TrimSpace(name)]
	return def, ok
}

// Len returns the number of quests in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.quests)
}

// Names returns all quest names in lexical order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.quests))
	for name := range c.quests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handlers carries the behavior attached to a structurally-defined quest.
// Segment setup handlers are keyed by 1-based segment index.
type Handlers struct {
	Verify       VerifyFunc
	OnCompletion CompletionFunc
	SegmentEnter map[int]EnterHandler
}

// Attach binds behavior handlers to structural definitions, typically ones
// loaded from the Lua catalog. Handlers naming an unknown quest or segment
// are rejected so silent drift between script and code cannot happen.
func Attach(defs []Definition, handlers map[string]Handlers) ([]Definition, error) {
	byName := make(map[string]int, len(defs))
	for i, def := range defs {
		byName[def.Name] = i
	}

	attached := make([]Definition, len(defs))
	copy(attached, defs)

	for questName, h := range handlers {
		idx, ok := byName[questName]
		if !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeCatalogUnknownHandlerQuest,
				fmt.Sprintf("handlers reference unknown quest %q", questName),
				map[string]string{"quest": questName})
		}
		def := attached[idx]
		def.Verify = h.Verify
		def.OnCompletion = h.OnCompletion
		if len(h.SegmentEnter) > 0 {
			segments := make([]Segment, len(def.Segments))
			copy(segments, def.Segments)
			for segIndex, enter := range h.SegmentEnter {
				if segIndex < 1 || segIndex > len(segments) {
					return nil, apperrors.WithMetadata(apperrors.CodeSegmentOutOfRange,
						fmt.Sprintf("quest %q has no segment %d", questName, segIndex),
						map[string]string{"quest": questName})
				}
				segments[segIndex-1].OnEnter = enter
			}
			def.Segments = segments
		}
		attached[idx] = def
	}
	return attached, nil
}
