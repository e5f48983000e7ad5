package coordinator

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/redstring/core/internal/state"
)

// Fingerprint is a deterministic 32-bit hash over a canonical
// projection of a CognitiveState: graph content with viewport excluded
// from the per-graph projection and rounded separately (2 decimals for
// pan, 4 for zoom), plus prototypes and edges (spec §4.4 rule 1).
//
// Using hash/fnv keeps this a pure, dependency-free leaf: there is
// nothing domain-specific enough about a rolling hash over a string
// projection to warrant a third-party hashing library.
func Fingerprint(s *state.CognitiveState) uint32 {
	h := fnv.New32a()
	h.Write([]byte(canonicalProjection(s)))
	return h.Sum32()
}

func canonicalProjection(s *state.CognitiveState) string {
	if s == nil {
		return ""
	}
	var b []byte
	b = append(b, "graphs:"...)
	for _, id := range sortedKeys(graphKeys(s)) {
		g := s.Graphs[id]
		b = fmt.Appendf(b, "%s|%s|", id, g.Name)
		for _, instID := range sortedKeys(instanceKeys(g)) {
			inst := g.Instances[instID]
			b = fmt.Appendf(b, "%s:%.2f,%.2f,%.2f;", instID, round2(inst.X), round2(inst.Y), inst.Scale)
		}
	}
	b = append(b, "prototypes:"...)
	for _, id := range sortedKeys(prototypeKeys(s)) {
		p := s.NodePrototypes[id]
		b = fmt.Appendf(b, "%s|%s|%s;", id, p.Name, p.Color)
	}
	b = append(b, "edges:"...)
	for _, id := range sortedKeys(edgeKeys(s)) {
		e := s.Edges[id]
		b = fmt.Appendf(b, "%s:%s->%s;", id, e.SourceID, e.DestinationID)
	}
	b = fmt.Appendf(b, "viewport:%.4f,%.4f,%.4f;", round2(s.Viewport.X), round2(s.Viewport.Y), round4(s.Viewport.Zoom))
	return string(b)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }

func graphKeys(s *state.CognitiveState) []string {
	keys := make([]string, 0, len(s.Graphs))
	for k := range s.Graphs {
		keys = append(keys, k)
	}
	return keys
}

func instanceKeys(g *state.Graph) []string {
	keys := make([]string, 0, len(g.Instances))
	for k := range g.Instances {
		keys = append(keys, k)
	}
	return keys
}

func prototypeKeys(s *state.CognitiveState) []string {
	keys := make([]string, 0, len(s.NodePrototypes))
	for k := range s.NodePrototypes {
		keys = append(keys, k)
	}
	return keys
}

func edgeKeys(s *state.CognitiveState) []string {
	keys := make([]string, 0, len(s.Edges))
	for k := range s.Edges {
		keys = append(keys, k)
	}
	return keys
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}
