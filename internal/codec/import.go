package codec

import (
	"fmt"
	"strings"

	"github.com/redstring/core/internal/state"
)

// ImportResult is the outcome of ImportDocument: a best-effort state plus
// any warnings/errors encountered. ImportDocument never returns a Go
// error; callers inspect Errors instead (spec §4.1).
type ImportResult struct {
	State  *state.CognitiveState
	Errors []string
}

// ImportDocument reconstructs a CognitiveState from any of the three
// shapes ImportDocument must accept: v2 (prototypeSpace+spatialGraphs),
// legacy mirror, or flat v1 (graphs/nodePrototypes/edges).
func ImportDocument(doc map[string]any) (result ImportResult) {
	if doc == nil {
		return ImportResult{State: state.New(), Errors: []string{"document is nil"}}
	}

	defer func() {
		// A top-level parse failure (unexpected shape causing a panic
		// deep in type assertions) yields an empty state, never a crash.
		if r := recover(); r != nil {
			result = ImportResult{State: state.New(), Errors: []string{fmt.Sprintf("document parse failed: %v", r)}}
		}
	}()

	result = ImportResult{State: state.New()}

	graphsRaw, protosRaw, edgesRaw, ok := selectSource(doc)
	if !ok {
		result.Errors = append(result.Errors, "no recognizable graphs/prototypes/edges found")
		return result
	}

	s := result.State
	importGraphs(s, graphsRaw, &result.Errors)
	importPrototypes(s, protosRaw, &result.Errors)
	importEdges(s, edgesRaw, &result.Errors)
	importUIState(s, doc)

	return result
}

// selectSource picks the raw graphs/prototypes/edges maps from whichever
// shape is present, per spec §4.1 import rule 1.
func selectSource(doc map[string]any) (graphs, protos, edges map[string]any, ok bool) {
	if sg, hasSG := asMap(doc["spatialGraphs"]); hasSG {
		if ps, hasPS := asMap(doc["prototypeSpace"]); hasPS {
			rel, _ := asMap(doc["relationships"])
			g, _ := asMap(sg["graphs"])
			p, _ := asMap(ps["prototypes"])
			e, _ := asMap(rel["edges"])
			return g, p, e, true
		}
	}
	if legacy, hasLegacy := asMap(doc["legacy"]); hasLegacy {
		g, _ := asMap(legacy["graphs"])
		p, _ := asMap(legacy["nodePrototypes"])
		e, _ := asMap(legacy["edges"])
		return g, p, e, true
	}
	if g, hasG := asMap(doc["graphs"]); hasG {
		p, _ := asMap(doc["nodePrototypes"])
		e, _ := asMap(doc["edges"])
		return g, p, e, true
	}
	return nil, nil, nil, false
}

func importGraphs(s *state.CognitiveState, raw map[string]any, errs *[]string) {
	for id, v := range raw {
		gm, ok := asMap(v)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("graph %s: malformed entry, using fallback", id))
			s.Graphs[id] = state.NewGraph(id, "")
			continue
		}
		g := state.NewGraph(id, strString(gm["name"]))
		g.Description = strString(gm["description"])
		g.EdgeIDs = strSlice(gm["edgeIds"])
		g.DefiningNodeIDs = strSlice(gm["definingNodeIds"])

		instRaw, hasV2 := asMap(gm["redstring:instances"])
		if !hasV2 {
			instRaw, _ = asMap(gm["instances"])
		}
		for instID, iv := range instRaw {
			inst, err := importInstance(instID, iv)
			if err != nil {
				*errs = append(*errs, fmt.Sprintf("instance %s: %v, using fallback", instID, err))
				inst = state.NewInstance(instID, "")
			}
			g.Instances[instID] = inst
		}
		s.Graphs[id] = g
	}
}

func importInstance(id string, v any) (state.Instance, error) {
	m, ok := asMap(v)
	if !ok {
		return state.Instance{}, fmt.Errorf("not an object")
	}
	inst := state.NewInstance(id, strString(m["prototypeId"]))
	inst.Name = strString(m["name"])
	inst.Description = strString(m["description"])
	inst.Visible = true
	if bv, ok := m["visible"].(bool); ok {
		inst.Visible = bv
	}
	if ev, ok := m["expanded"].(bool); ok {
		inst.Expanded = ev
	}

	spatial, hasSpatial := asMap(m["redstring:spatialContext"])
	if hasSpatial {
		inst.X = numVal(spatial["redstring:xCoordinate"])
		inst.Y = numVal(spatial["redstring:yCoordinate"])
		if z := numVal(spatial["redstring:zoomLevel"]); z != 0 {
			inst.Scale = z
		}
	} else {
		inst.X = numVal(m["x"])
		inst.Y = numVal(m["y"])
		if z := numVal(m["scale"]); z != 0 {
			inst.Scale = z
		}
	}
	return inst, nil
}

func importPrototypes(s *state.CognitiveState, raw map[string]any, errs *[]string) {
	for id, v := range raw {
		m, ok := asMap(v)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("prototype %s: malformed entry, using fallback", id))
			s.NodePrototypes[id] = &state.Prototype{ID: id, Name: "untitled", Scale: 1.0, AbstractionChains: state.AbstractionChains{}}
			continue
		}

		p := &state.Prototype{ID: id, Scale: 1.0, AbstractionChains: state.AbstractionChains{}}

		if isPrototypeShaped(m) {
			p.Name = strString(m["rdfs:label"])
			p.Description = strString(m["rdfs:comment"])
			if spatial, ok := asMap(m["redstring:spatialContext"]); ok {
				p.X = numVal(spatial["redstring:xCoordinate"])
				p.Y = numVal(spatial["redstring:yCoordinate"])
				p.Scale = orDefault(numVal(spatial["redstring:zoomLevel"]), 1.0)
			}
			if visual, ok := asMap(m["redstring:visualProperties"]); ok {
				p.Color = strString(visual["color"])
				p.ImageSrc = strString(visual["imageSrc"])
				p.ThumbnailSrc = strString(visual["thumbnailSrc"])
				p.ImageAspectRatio = numVal(visual["imageAspectRatio"])
			}
			if semantic, ok := asMap(m["redstring:semanticProperties"]); ok {
				p.Bio = strString(semantic["bio"])
				p.Conjugation = strString(semantic["conjugation"])
				p.PersonalMeaning = strString(semantic["personalMeaning"])
			}
			if cognitive, ok := asMap(m["redstring:cognitiveProperties"]); ok {
				p.CognitiveAssociations = strSlice(cognitive["cognitiveAssociations"])
			}
		} else {
			p.Name = strString(m["name"])
			p.Description = trimPrefix(strString(m["description"]), "RedString prototype: ")
			p.Color = strString(m["color"])
			p.X = numVal(m["x"])
			p.Y = numVal(m["y"])
			p.Scale = orDefault(numVal(m["scale"]), 1.0)
			p.ImageSrc = strString(m["imageSrc"])
			p.ThumbnailSrc = strString(m["thumbnailSrc"])
			p.ImageAspectRatio = numVal(m["imageAspectRatio"])
			p.Bio = strString(m["bio"])
			p.Conjugation = strString(m["conjugation"])
			p.PersonalMeaning = strString(m["personalMeaning"])
			p.CognitiveAssociations = strSlice(m["cognitiveAssociations"])
		}

		p.TypeNodeID = strString(m["typeNodeId"])
		p.ExternalLinks = strSlice(m["externalLinks"])
		p.EquivalentClasses = strSlice(m["equivalentClasses"])
		p.Citations = strSlice(m["citations"])
		p.DefinitionGraphIDs = strSlice(m["definitionGraphIds"])
		if chains, ok := asMap(m["abstractionChains"]); ok {
			for dim, v := range chains {
				p.AbstractionChains[dim] = strSlice(v)
			}
		}

		s.NodePrototypes[id] = p
	}
}

func isPrototypeShaped(m map[string]any) bool {
	types := m["@type"]
	switch t := types.(type) {
	case string:
		return t == "Prototype"
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "Prototype" {
				return true
			}
		}
	}
	return false
}

func importEdges(s *state.CognitiveState, raw map[string]any, errs *[]string) {
	for id, v := range raw {
		m, ok := asMap(v)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("edge %s: malformed entry, using fallback", id))
			s.Edges[id] = &state.Edge{ID: id}
			continue
		}

		e := &state.Edge{ID: id}
		_, hasRDF := m["rdfStatements"]
		_, hasNative := m["sourceId"]

		if hasNative || hasRDF {
			e.SourceID = strString(m["sourceId"])
			e.DestinationID = strString(m["destinationId"])
			e.Name = strString(m["name"])
			e.Description = strString(m["description"])
			e.TypeNodeID = strString(m["typeNodeId"])
			e.DefinitionNodeIDs = strSlice(m["definitionNodeIds"])
		} else if typ, _ := m["@type"].(string); typ == "Statement" {
			subj, _ := asMap(m["subject"])
			obj, _ := asMap(m["object"])
			pred, _ := asMap(m["predicate"])
			e.SourceID = stripIDPrefix(strString(subj["@id"]), "node:")
			e.DestinationID = stripIDPrefix(strString(obj["@id"]), "node:")
			e.TypeNodeID = stripIDPrefix(strString(pred["@id"]), "node:")
		} else {
			e.SourceID = strString(m["sourceId"])
			e.DestinationID = strString(m["destinationId"])
			e.Name = strString(m["name"])
			e.TypeNodeID = strString(m["typeNodeId"])
		}

		e.Directionality = state.Directionality{ArrowsToward: make(map[string]struct{})}
		if dir, ok := asMap(m["directionality"]); ok {
			for _, id := range anySlice(dir["arrowsToward"]) {
				if s, ok := id.(string); ok {
					e.Directionality.ArrowsToward[s] = struct{}{}
				}
			}
		}

		s.Edges[id] = e
	}
}

func stripIDPrefix(v, prefix string) string {
	return strings.TrimPrefix(v, prefix)
}

func importUIState(s *state.CognitiveState, doc map[string]any) {
	ui, ok := asMap(doc["userInterface"])
	if !ok {
		ui, _ = asMap(doc["redstring:userInterface"])
	}

	get := func(plain string) any {
		if v, ok := ui[plain]; ok {
			return v
		}
		return ui["redstring:"+plain]
	}

	s.OpenGraphIDs = strSlice(get("openGraphIds"))
	s.ActiveGraphID = strString(get("activeGraphId"))
	s.ActiveDefinitionNodeID = strString(get("activeDefinitionNodeId"))
	s.ExpandedGraphIDs = strSliceToSet(get("expandedGraphIds"))
	s.SavedNodeIDs = strSliceToSet(get("savedNodeIds"))
	s.SavedGraphIDs = strSliceToSet(get("savedGraphIds"))
	s.ShowConnectionNames, _ = get("showConnectionNames").(bool)

	tabs := importTabs(get("rightPanelTabs"))
	s.RightPanelTabs = ensureActiveTab(tabs)

	if gsc, ok := asMap(doc["globalSpatialContext"]); ok {
		if vp, ok := asMap(gsc["viewport"]); ok {
			s.Viewport = state.Viewport{X: numVal(vp["x"]), Y: numVal(vp["y"]), Zoom: orDefault(numVal(vp["zoom"]), 1.0)}
		}
		if cs, ok := asMap(gsc["canvasSize"]); ok {
			s.CanvasSize = state.CanvasSize{Width: numVal(cs["width"]), Height: numVal(cs["height"])}
		}
	}
}

func importTabs(v any) []state.RightPanelTab {
	items := anySlice(v)
	tabs := make([]state.RightPanelTab, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		active, _ := m["isActive"].(bool)
		tabs = append(tabs, state.RightPanelTab{Type: strString(m["type"]), IsActive: active})
	}
	return tabs
}

// ensureActiveTab implements spec §4.1 import rule 5: install a default
// home tab if none are present, and guarantee at least one active tab
// (the home tab, else the first, when none is marked active).
func ensureActiveTab(tabs []state.RightPanelTab) []state.RightPanelTab {
	if len(tabs) == 0 {
		return []state.RightPanelTab{{Type: "home", IsActive: true}}
	}
	for _, t := range tabs {
		if t.IsActive {
			return tabs
		}
	}
	for i := range tabs {
		if tabs[i].Type == "home" {
			tabs[i].IsActive = true
			return tabs
		}
	}
	tabs[0].IsActive = true
	return tabs
}
