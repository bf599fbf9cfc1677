package catalog

import (
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"
)

const questSetTypeName = "quest_set"

// questSet accumulates quest definitions while a catalog script runs.
type questSet struct {
	defs []Definition
}

// LoadLuaFile runs a catalog script and returns the structural quest
// definitions it declares. Scripts build a quest set and return it:
//
//	local quests = Quests.new()
//	quests:quest("Tutorial", { segments = { 2, 1 } })
//	quests:quest("Daily Mining", { repeatable = true, segments = { 10 } })
//	return quests
//
// Segment entries may be plain requirement numbers or tables with a
// requirement field. Behavior handlers are attached afterwards via Attach;
// scripts declare structure only.
func LoadLuaFile(path string) ([]Definition, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	registerQuestSetType(state)
	registerQuestSetConstructor(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load catalog script: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run catalog script: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("catalog script must return a quest set")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	set, ok := ud.(*questSet)
	if !ok || set == nil {
		return nil, fmt.Errorf("catalog script returned an invalid quest set")
	}
	return set.defs, nil
}

func registerQuestSetType(state *lua.State) {
	lua.NewMetaTable(state, questSetTypeName)
	state.NewTable()
	lua.SetFunctions(state, questSetMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

func registerQuestSetConstructor(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, questSetConstructor, 0)
	state.SetGlobal("Quests")
}

var questSetConstructor = []lua.RegistryFunction{
	{Name: "new", Function: questSetNew},
}

var questSetMethods = []lua.RegistryFunction{
	{Name: "quest", Function: questSetQuest},
}

func questSetNew(state *lua.State) int {
	state.PushUserData(&questSet{})
	lua.SetMetaTableNamed(state, questSetTypeName)
	return 1
}

func checkQuestSet(state *lua.State) *questSet {
	ud := lua.CheckUserData(state, 1, questSetTypeName)
	if set, ok := ud.(*questSet); ok && set != nil {
		return set
	}
	lua.ArgumentError(state, 1, "quest set expected")
	return nil
}

func questSetQuest(state *lua.State) int {
	set := checkQuestSet(state)
	name := lua.CheckString(state, 2)
	lua.CheckType(state, 3, lua.TypeTable)

	if strings.TrimSpace(name) == "" {
		lua.ArgumentError(state, 2, "quest name is required")
		return 0
	}

	def := Definition{Name: name}

	state.Field(3, "repeatable")
	if state.TypeOf(-1) == lua.TypeBoolean {
		def.Repeatable = state.ToBoolean(-1)
	}
	state.Pop(1)

	state.Field(3, "segments")
	if state.TypeOf(-1) != lua.TypeTable {
		state.Pop(1)
		lua.ArgumentError(state, 3, "segments table is required")
		return 0
	}
	segments, err := segmentsFromTable(state, state.AbsIndex(-1))
	state.Pop(1)
	if err != nil {
		lua.Errorf(state, "quest %q: %s", name, err.Error())
		return 0
	}
	def.Segments = segments

	set.defs = append(set.defs, def)
	return 0
}

// segmentsFromTable reads the segments array at index. Each element is either
// a requirement number or a table with a requirement field.
func segmentsFromTable(state *lua.State, index int) ([]Segment, error) {
	length := state.RawLength(index)
	if length == 0 {
		return nil, fmt.Errorf("segments table is empty")
	}

	segments := make([]Segment, 0, length)
	for i := 1; i <= length; i++ {
		state.RawGetInt(index, i)
		segment, err := segmentFromValue(state, state.AbsIndex(-1))
		state.Pop(1)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

func segmentFromValue(state *lua.State, index int) (Segment, error) {
	switch state.TypeOf(index) {
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		requirement := int(value)
		if requirement < 1 {
			return Segment{}, fmt.Errorf("requirement must be >= 1")
		}
		return Segment{Requirement: requirement}, nil
	case lua.TypeTable:
		state.Field(index, "requirement")
		if state.TypeOf(-1) != lua.TypeNumber {
			state.Pop(1)
			return Segment{}, fmt.Errorf("requirement number is required")
		}
		value, _ := state.ToNumber(-1)
		state.Pop(1)
		requirement := int(value)
		if requirement < 1 {
			return Segment{}, fmt.Errorf("requirement must be >= 1")
		}
		return Segment{Requirement: requirement}, nil
	default:
		return Segment{}, fmt.Errorf("segment must be a number or a table")
	}
}
