package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalogScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quests.lua")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog script: %v", err)
	}
	return path
}

func TestLoadLuaFile(t *testing.T) {
	path := writeCatalogScript(t, `
local quests = Quests.new()
quests:quest("Tutorial", { segments = { 2, 1 } })
quests:quest("Daily Mining", { repeatable = true, segments = { { requirement = 10 } } })
return quests
`)

	defs, err := LoadLuaFile(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	tutorial := defs[0]
	if tutorial.Name != "Tutorial" || tutorial.Repeatable {
		t.Fatalf("unexpected tutorial definition: %+v", tutorial)
	}
	if len(tutorial.Segments) != 2 || tutorial.Segments[0].Requirement != 2 || tutorial.Segments[1].Requirement != 1 {
		t.Fatalf("unexpected tutorial segments: %+v", tutorial.Segments)
	}

	mining := defs[1]
	if !mining.Repeatable {
		t.Fatal("expected mining quest to be repeatable")
	}
	if len(mining.Segments) != 1 || mining.Segments[0].Requirement != 10 {
		t.Fatalf("unexpected mining segments: %+v", mining.Segments)
	}
}

func TestLoadLuaFileFeedsCatalog(t *testing.T) {
	path := writeCatalogScript(t, `
local quests = Quests.new()
quests:quest("Tutorial", { segments = { 1 } })
return quests
`)

	defs, err := LoadLuaFile(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	c, err := New(defs...)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	if _, ok := c.Get("Tutorial"); !ok {
		t.Fatal("expected scripted quest in catalog")
	}
}

func TestLoadLuaFileRejectsBadScripts(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"missing return", `local quests = Quests.new()`},
		{"wrong return type", `return 42`},
		{"empty segments", `
local quests = Quests.new()
quests:quest("Broken", { segments = {} })
return quests
`},
		{"zero requirement", `
local quests = Quests.new()
quests:quest("Broken", { segments = { 0 } })
return quests
`},
		{"segments missing", `
local quests = Quests.new()
quests:quest("Broken", {})
return quests
`},
		{"quest called without receiver", `
local quests = Quests.new()
quests.quest("Broken", { segments = { 1 } })
return quests
`},
		{"quest called on wrong receiver", `
local quests = Quests.new()
quests.quest(42, "Broken", { segments = { 1 } })
return quests
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCatalogScript(t, tc.script)
			if _, err := LoadLuaFile(path); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

func TestLoadLuaFileMissingFile(t *testing.T) {
	if _, err := LoadLuaFile(filepath.Join(t.TempDir(), "nope.lua")); err == nil {
		t.Fatal("expected missing file error")
	}
}
