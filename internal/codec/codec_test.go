package codec

import (
	"testing"
	"time"

	"github.com/redstring/core/internal/state"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

// S1 Round-trip minimal (spec §8).
func TestExportImportRoundTripMinimal(t *testing.T) {
	t.Parallel()
	s := state.New()
	g := state.NewGraph("g1", "Graph One")
	inst := state.NewInstance("i1", "p1")
	inst.X, inst.Y, inst.Scale = 10, 20, 1.0
	g.Instances["i1"] = inst
	s.Graphs["g1"] = g
	s.NodePrototypes["p1"] = &state.Prototype{ID: "p1", Name: "Thing", Color: "#8B0000", Scale: 1.0, AbstractionChains: state.AbstractionChains{}}

	doc, err := ExportState(s, ExportOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	if doc["format"] != FormatV2 {
		t.Errorf("format = %v, want %v", doc["format"], FormatV2)
	}

	graphs := doc["spatialGraphs"].(map[string]any)["graphs"].(map[string]any)
	g1 := graphs["g1"].(map[string]any)
	instances := g1["redstring:instances"].(map[string]any)
	i1 := instances["i1"].(map[string]any)
	spatial := i1["redstring:spatialContext"].(map[string]any)
	if spatial["redstring:xCoordinate"].(float64) != 10 {
		t.Errorf("xCoordinate = %v, want 10", spatial["redstring:xCoordinate"])
	}

	result := ImportDocument(doc)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	got := result.State.Graphs["g1"].Instances["i1"]
	if got.X != 10 {
		t.Errorf("imported x = %v, want 10", got.X)
	}
	if result.State.NodePrototypes["p1"].Name != "Thing" {
		t.Errorf("imported prototype name = %q, want Thing", result.State.NodePrototypes["p1"].Name)
	}
}

// S2 Non-directional edge (spec §8).
func TestExportNonDirectionalEdgeProducesDualStatements(t *testing.T) {
	t.Parallel()
	s := state.New()
	g := state.NewGraph("g1", "g1")
	g.Instances["i1"] = state.NewInstance("i1", "pA")
	g.Instances["i2"] = state.NewInstance("i2", "pB")
	s.Graphs["g1"] = g
	s.NodePrototypes["pA"] = &state.Prototype{ID: "pA", Name: "A", AbstractionChains: state.AbstractionChains{}}
	s.NodePrototypes["pB"] = &state.Prototype{ID: "pB", Name: "B", AbstractionChains: state.AbstractionChains{}}
	s.NodePrototypes["pR"] = &state.Prototype{ID: "pR", Name: "R", AbstractionChains: state.AbstractionChains{}}
	s.Edges["e1"] = &state.Edge{
		ID: "e1", SourceID: "i1", DestinationID: "i2", TypeNodeID: "pR",
		Directionality: state.Directionality{ArrowsToward: map[string]struct{}{}},
	}

	doc, err := ExportState(s, ExportOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	edges := doc["relationships"].(map[string]any)["edges"].(map[string]any)
	e1 := edges["e1"].(map[string]any)
	stmts := e1["rdfStatements"].([]any)
	if len(stmts) != 2 {
		t.Fatalf("rdfStatements length = %d, want 2", len(stmts))
	}
}

// S3 Legacy read (spec §8).
func TestImportLegacyFlatDocument(t *testing.T) {
	t.Parallel()
	doc := map[string]any{
		"graphs": map[string]any{
			"g1": map[string]any{
				"name": "Legacy Graph",
				"instances": map[string]any{
					"i1": map[string]any{"prototypeId": "p1", "x": 1.0, "y": 2.0, "scale": 1.0, "visible": true},
				},
			},
		},
		"nodePrototypes": map[string]any{
			"p1": map[string]any{"name": "Thing", "description": "RedString prototype: a thing"},
		},
		"edges": map[string]any{},
	}

	result := ImportDocument(doc)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.State.Graphs["g1"].Name != "Legacy Graph" {
		t.Errorf("graph name = %q", result.State.Graphs["g1"].Name)
	}
	if result.State.NodePrototypes["p1"].Description != "a thing" {
		t.Errorf("description = %q, want prefix stripped", result.State.NodePrototypes["p1"].Description)
	}
	tabs := result.State.RightPanelTabs
	if len(tabs) != 1 || tabs[0].Type != "home" || !tabs[0].IsActive {
		t.Errorf("rightPanelTabs = %+v, want single active home tab", tabs)
	}
}

// Testable property 4: chain-derived subclassing is closed under reruns.
func TestChainSubclassingIdempotentAcrossExports(t *testing.T) {
	t.Parallel()
	s := state.New()
	s.NodePrototypes["a"] = &state.Prototype{ID: "a", Name: "A", AbstractionChains: state.AbstractionChains{"dim": {"a", "b", "c"}}}
	s.NodePrototypes["b"] = &state.Prototype{ID: "b", Name: "B", AbstractionChains: state.AbstractionChains{}}
	s.NodePrototypes["c"] = &state.Prototype{ID: "c", Name: "C", AbstractionChains: state.AbstractionChains{}}

	doc1, _ := ExportState(s, ExportOptions{Now: fixedNow})
	protos := doc1["prototypeSpace"].(map[string]any)["prototypes"].(map[string]any)
	cDoc := protos["c"].(map[string]any)
	subClassOf := cDoc["subClassOf"].([]any)
	if len(subClassOf) != 1 {
		t.Fatalf("subClassOf length = %d, want 1 (no duplicate)", len(subClassOf))
	}

	// Re-running chain application on the same docs must not duplicate entries.
	applyChainSubclassing(s.NodePrototypes, protos)
	subClassOf = cDoc["subClassOf"].([]any)
	if len(subClassOf) != 1 {
		t.Fatalf("subClassOf length after rerun = %d, want 1", len(subClassOf))
	}
}

func TestExportNilState(t *testing.T) {
	t.Parallel()
	if _, err := ExportState(nil, ExportOptions{}); err != ErrInvalidInput {
		t.Errorf("ExportState(nil) err = %v, want ErrInvalidInput", err)
	}
}

func TestImportDocumentNeverPanics(t *testing.T) {
	t.Parallel()
	result := ImportDocument(map[string]any{"garbage": 42})
	if result.State == nil {
		t.Fatal("State must never be nil")
	}
	if len(result.Errors) == 0 {
		t.Error("expected errors for unrecognizable document")
	}
}
