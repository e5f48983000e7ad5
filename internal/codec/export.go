package codec

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/redstring/core/internal/state"
)

// ExportOptions configures ExportState beyond the state itself. All
// fields are optional; Now defaults to time.Now.
type ExportOptions struct {
	UserDomain  string
	ContextGen  ContextGenerator
	Title       string
	Description string
	Created     time.Time
	Now         func() time.Time
}

func (o ExportOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// ExportState exports a CognitiveState into a versioned, self-describing
// JSON-LD-shaped document (spec §4.1). It is a pure function: no I/O, no
// mutation of s.
func ExportState(s *state.CognitiveState, opts ExportOptions) (map[string]any, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}

	now := opts.now().UTC()
	created := opts.Created
	if created.IsZero() {
		created = now
	}

	doc := map[string]any{
		"@context": resolveContext(opts.ContextGen, opts.UserDomain),
		"@type":    "CognitiveSpace",
		"format":   FormatV2,
		"metadata": buildDocMetadata(opts, created, now),
	}

	protoDocs := exportPrototypes(s)
	applyChainSubclassing(s.NodePrototypes, protoDocs)
	doc["prototypeSpace"] = map[string]any{"prototypes": protoDocs}

	doc["spatialGraphs"] = map[string]any{"graphs": exportGraphs(s)}
	doc["relationships"] = map[string]any{"edges": exportEdges(s)}

	doc["globalSpatialContext"] = map[string]any{
		"viewport": map[string]any{
			"x":    s.Viewport.X,
			"y":    s.Viewport.Y,
			"zoom": s.Viewport.Zoom,
		},
		"canvasSize": map[string]any{
			"width":  s.CanvasSize.Width,
			"height": s.CanvasSize.Height,
		},
	}
	doc["userInterface"] = exportUIState(s)
	doc["legacy"] = buildLegacyMirror(s)

	return doc, nil
}

// MarshalDocument renders doc as the pretty-printed, two-space-indented
// JSON text every storage slot persists (spec §6).
func MarshalDocument(doc map[string]any) (string, error) {
	text, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func buildDocMetadata(opts ExportOptions, created, modified time.Time) map[string]any {
	return map[string]any{
		"created":              created.Format(time.RFC3339),
		"modified":              modified.Format(time.RFC3339),
		"title":                opts.Title,
		"description":          opts.Description,
		"domain":               opts.UserDomain,
		"semanticWebCompliant": true,
		"rdfSchemaVersion":     "1.1",
		"owlVersion":           "2",
	}
}

func exportGraphs(s *state.CognitiveState) map[string]any {
	out := make(map[string]any, len(s.Graphs))
	for id, g := range s.Graphs {
		instances := make(map[string]any, len(g.Instances))
		for instID, inst := range g.Instances {
			instances[instID] = map[string]any{
				"@type":       "Instance",
				"rdf:type":    idRef("prototype", inst.PrototypeID),
				"prototypeId": inst.PrototypeID,
				"name":        inst.Name,
				"description": inst.Description,
				"containedIn": idRef("graph", id),
				"redstring:spatialContext": map[string]any{
					"redstring:xCoordinate": inst.X,
					"redstring:yCoordinate": inst.Y,
					"redstring:zoomLevel":   inst.Scale,
				},
				"expanded": inst.Expanded,
				"visible":  inst.Visible,
			}
		}
		out[id] = map[string]any{
			"@type":               "Graph",
			"name":                g.Name,
			"description":         g.Description,
			"redstring:instances": instances,
			"edgeIds":             orEmpty(g.EdgeIDs),
			"definingNodeIds":     orEmpty(g.DefiningNodeIDs),
		}
	}
	return out
}

func exportPrototypes(s *state.CognitiveState) map[string]any {
	out := make(map[string]any, len(s.NodePrototypes))
	for id, p := range s.NodePrototypes {
		var subClassOf []any
		if p.TypeNodeID != "" {
			subClassOf = []any{idRef("prototype", p.TypeNodeID)}
		}
		out[id] = map[string]any{
			"@type":       []any{"Prototype", "Class", "Thing"},
			"rdfs:label":   p.Name,
			"rdfs:comment": p.Description,
			"seeAlso":             idRefList("node", p.Citations),
			"isDefinedBy":         idRefList("graph", p.DefinitionGraphIDs),
			"owl:sameAs":          idRefList("node", p.ExternalLinks),
			"owl:equivalentClass": idRefList("prototype", p.EquivalentClasses),
			"subClassOf":          subClassOf,
			"redstring:spatialContext": map[string]any{
				"redstring:xCoordinate": p.X,
				"redstring:yCoordinate": p.Y,
				"redstring:zoomLevel":   p.Scale,
			},
			"redstring:visualProperties": map[string]any{
				"color":            p.Color,
				"imageSrc":         p.ImageSrc,
				"thumbnailSrc":     p.ThumbnailSrc,
				"imageAspectRatio": p.ImageAspectRatio,
			},
			"redstring:semanticProperties": map[string]any{
				"bio":             p.Bio,
				"conjugation":     p.Conjugation,
				"personalMeaning": p.PersonalMeaning,
			},
			"redstring:cognitiveProperties": map[string]any{
				"cognitiveAssociations": orEmptyStr(p.CognitiveAssociations),
			},
			"abstractionChains": p.AbstractionChains,
			"externalLinks":     orEmptyStr(p.ExternalLinks),
			"equivalentClasses": orEmptyStr(p.EquivalentClasses),
			"citations":         orEmptyStr(p.Citations),
			"definitionGraphIds": orEmptyStr(p.DefinitionGraphIDs),
		}
	}
	return out
}

func exportEdges(s *state.CognitiveState) map[string]any {
	idx := buildEndpointIndex(s)
	out := make(map[string]any, len(s.Edges))
	for id, e := range s.Edges {
		out[id] = map[string]any{
			"@type":             "Edge",
			"sourceId":          e.SourceID,
			"destinationId":     e.DestinationID,
			"name":              e.Name,
			"description":       e.Description,
			"typeNodeId":        e.TypeNodeID,
			"definitionNodeIds": orEmptyStr(e.DefinitionNodeIDs),
			"directionality": map[string]any{
				"arrowsToward": arrowsTowardList(e.Directionality),
			},
			"rdfStatements": buildRDFStatements(s, e, idx),
		}
	}
	return out
}

func exportUIState(s *state.CognitiveState) map[string]any {
	return map[string]any{
		"openGraphIds":           orEmptyStr(s.OpenGraphIDs),
		"activeGraphId":          s.ActiveGraphID,
		"activeDefinitionNodeId": s.ActiveDefinitionNodeID,
		"expandedGraphIds":       setToList(s.ExpandedGraphIDs),
		"savedNodeIds":           setToList(s.SavedNodeIDs),
		"savedGraphIds":          setToList(s.SavedGraphIDs),
		"rightPanelTabs":         exportTabs(s.RightPanelTabs),
		"showConnectionNames":    s.ShowConnectionNames,
	}
}

func exportTabs(tabs []state.RightPanelTab) []any {
	out := make([]any, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, map[string]any{"type": t.Type, "isActive": t.IsActive})
	}
	return out
}

func buildLegacyMirror(s *state.CognitiveState) map[string]any {
	graphs := make(map[string]any, len(s.Graphs))
	for id, g := range s.Graphs {
		instances := make(map[string]any, len(g.Instances))
		for instID, inst := range g.Instances {
			instances[instID] = map[string]any{
				"id":          inst.ID,
				"prototypeId": inst.PrototypeID,
				"name":        inst.Name,
				"description": inst.Description,
				"x":           inst.X,
				"y":           inst.Y,
				"scale":       inst.Scale,
				"expanded":    inst.Expanded,
				"visible":     inst.Visible,
			}
		}
		graphs[id] = map[string]any{
			"name":            g.Name,
			"description":     g.Description,
			"instances":       instances,
			"edgeIds":         orEmptyStr(g.EdgeIDs),
			"definingNodeIds": orEmptyStr(g.DefiningNodeIDs),
		}
	}

	protos := make(map[string]any, len(s.NodePrototypes))
	for id, p := range s.NodePrototypes {
		protos[id] = map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"color":       p.Color,
			"x":           p.X,
			"y":           p.Y,
			"scale":       p.Scale,
			"typeNodeId":  p.TypeNodeID,
		}
	}

	edges := make(map[string]any, len(s.Edges))
	for id, e := range s.Edges {
		edges[id] = map[string]any{
			"sourceId":      e.SourceID,
			"destinationId": e.DestinationID,
			"name":          e.Name,
			"typeNodeId":    e.TypeNodeID,
			"directionality": map[string]any{
				"arrowsToward": arrowsTowardList(e.Directionality),
			},
		}
	}

	return map[string]any{
		"graphs":         graphs,
		"nodePrototypes": protos,
		"edges":          edges,
	}
}

func arrowsTowardList(d state.Directionality) []any {
	ids := make([]string, 0, len(d.ArrowsToward))
	for id := range d.ArrowsToward {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func setToList(m map[string]struct{}) []any {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func idRefList(prefix string, ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, idRef(prefix, id))
	}
	return out
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func orEmptyStr(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}
