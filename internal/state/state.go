// Package state defines the in-memory cognitive space model: graphs of
// positioned instances whose meaning is given by reusable prototypes.
// Nothing in this package performs I/O; it is the payload the codec
// reads and writes.
package state

// Instance is a positioned occurrence of a Prototype inside a Graph.
type Instance struct {
	ID          string  `json:"id"`
	PrototypeID string  `json:"prototypeId"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Scale       float64 `json:"scale"`
	Expanded    bool    `json:"expanded"`
	Visible     bool    `json:"visible"`
}

// Graph is a named canvas of instances connected by edges.
type Graph struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	Instances        map[string]Instance `json:"instances"`
	EdgeIDs          []string            `json:"edgeIds"`
	DefiningNodeIDs  []string            `json:"definingNodeIds"`
}

// AbstractionChains maps a dimension name to an ordered list of prototype
// ids; adjacent pairs define a subClassOf relation (see codec's applyChainSubclassing).
type AbstractionChains map[string][]string

// Prototype is a reusable class of node: identity, appearance, and
// semantic links shared by every Instance that references it.
type Prototype struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Description         string            `json:"description,omitempty"`
	Color               string            `json:"color"`
	X                   float64           `json:"x"`
	Y                   float64           `json:"y"`
	Scale               float64           `json:"scale"`
	ImageSrc            string            `json:"imageSrc,omitempty"`
	ThumbnailSrc        string            `json:"thumbnailSrc,omitempty"`
	ImageAspectRatio    float64           `json:"imageAspectRatio,omitempty"`
	Bio                 string            `json:"bio,omitempty"`
	Conjugation         string            `json:"conjugation,omitempty"`
	TypeNodeID          string            `json:"typeNodeId,omitempty"`
	ExternalLinks       []string          `json:"externalLinks"`
	EquivalentClasses   []string          `json:"equivalentClasses"`
	Citations           []string          `json:"citations"`
	DefinitionGraphIDs  []string          `json:"definitionGraphIds"`
	AbstractionChains   AbstractionChains `json:"abstractionChains"`
	PersonalMeaning     string            `json:"personalMeaning,omitempty"`
	CognitiveAssociations []string        `json:"cognitiveAssociations"`
}

// Directionality records which edge endpoints an arrow points toward.
// Empty/nil means non-directional (both ends receive an arrowhead for
// the purposes of RDF export, see codec's buildRDFStatements).
type Directionality struct {
	ArrowsToward map[string]struct{} `json:"-"`
}

// Edge is a directed or non-directional link between two instances,
// typed by a prototype.
type Edge struct {
	ID                 string          `json:"id"`
	SourceID           string          `json:"sourceId"`
	DestinationID      string          `json:"destinationId"`
	Name               string          `json:"name,omitempty"`
	Description        string          `json:"description,omitempty"`
	TypeNodeID         string          `json:"typeNodeId,omitempty"`
	DefinitionNodeIDs  []string        `json:"definitionNodeIds"`
	Directionality     Directionality  `json:"directionality"`
}

// RightPanelTab is one tab of the UI's right-hand panel.
type RightPanelTab struct {
	Type     string `json:"type"`
	IsActive bool   `json:"isActive"`
}

// CognitiveState is the full payload of one universe: every graph,
// prototype and edge, plus the UI-facing view state that travels with
// them (open/active graph, panel tabs, saved-item sets).
type CognitiveState struct {
	Graphs      map[string]*Graph     `json:"graphs"`
	NodePrototypes map[string]*Prototype `json:"nodePrototypes"`
	Edges       map[string]*Edge     `json:"edges"`

	OpenGraphIDs          []string `json:"openGraphIds"`
	ActiveGraphID          string   `json:"activeGraphId,omitempty"`
	ActiveDefinitionNodeID string   `json:"activeDefinitionNodeId,omitempty"`
	ExpandedGraphIDs       map[string]struct{} `json:"-"`
	SavedNodeIDs           map[string]struct{} `json:"-"`
	SavedGraphIDs          map[string]struct{} `json:"-"`
	RightPanelTabs         []RightPanelTab     `json:"rightPanelTabs"`
	ShowConnectionNames    bool                `json:"showConnectionNames"`

	// Viewport/canvas are part of globalSpatialContext on export; kept
	// here so the Save Coordinator can fingerprint state without a
	// round trip through the codec.
	Viewport   Viewport `json:"-"`
	CanvasSize CanvasSize `json:"-"`
}

// Viewport is the visible pan/zoom window over a graph's canvas.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// CanvasSize is the logical size of the rendering surface.
type CanvasSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// New returns an empty, well-formed CognitiveState: every map and set
// initialized, a single active "home" right-panel tab installed (mirrors
// the default the codec installs on import when none is present).
func New() *CognitiveState {
	return &CognitiveState{
		Graphs:         make(map[string]*Graph),
		NodePrototypes: make(map[string]*Prototype),
		Edges:          make(map[string]*Edge),
		ExpandedGraphIDs: make(map[string]struct{}),
		SavedNodeIDs:     make(map[string]struct{}),
		SavedGraphIDs:    make(map[string]struct{}),
		RightPanelTabs:   []RightPanelTab{{Type: "home", IsActive: true}},
		Viewport:         Viewport{Zoom: 1.0},
	}
}

// NewGraph returns an empty Graph with initialized collections.
func NewGraph(id, name string) *Graph {
	return &Graph{
		ID:              id,
		Name:            name,
		Instances:       make(map[string]Instance),
		EdgeIDs:         []string{},
		DefiningNodeIDs: []string{},
	}
}

// NewInstance returns an Instance with the spec's default spatial values
// (origin, unit scale, visible).
func NewInstance(id, prototypeID string) Instance {
	return Instance{
		ID:          id,
		PrototypeID: prototypeID,
		X:           0,
		Y:           0,
		Scale:       1.0,
		Visible:     true,
	}
}
