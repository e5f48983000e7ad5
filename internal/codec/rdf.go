package codec

import "github.com/redstring/core/internal/state"

// endpointIndex resolves an instance id to the prototype id it
// instantiates, searching every graph (an edge's endpoints may live in a
// different graph than the edge's own definition).
type endpointIndex map[string]string // instanceID -> prototypeID

func buildEndpointIndex(s *state.CognitiveState) endpointIndex {
	idx := make(endpointIndex)
	for _, g := range s.Graphs {
		for id, inst := range g.Instances {
			idx[id] = inst.PrototypeID
		}
	}
	return idx
}

// resolvePredicatePrototypeID implements spec §4.1 rule 4's predicate
// resolution: the first DefinitionNodeIDs entry, preferring its
// prototypeId (it names an instance) and falling back to its typeNodeId
// (it names a prototype directly), then falling back to the edge's own
// TypeNodeID.
func resolvePredicatePrototypeID(s *state.CognitiveState, e *state.Edge, idx endpointIndex) string {
	if len(e.DefinitionNodeIDs) > 0 {
		first := e.DefinitionNodeIDs[0]
		if protoID, ok := idx[first]; ok && protoID != "" {
			return protoID
		}
		if p, ok := s.NodePrototypes[first]; ok && p.TypeNodeID != "" {
			return p.TypeNodeID
		}
	}
	return e.TypeNodeID
}

// buildRDFStatements produces the RDF-statement dual encoding for one
// edge: exactly one forward Statement when all three ids resolve, plus a
// reverse Statement when ArrowsToward is empty/absent (non-directional).
func buildRDFStatements(s *state.CognitiveState, e *state.Edge, idx endpointIndex) []any {
	srcProto, srcOK := idx[e.SourceID]
	dstProto, dstOK := idx[e.DestinationID]
	predProto := resolvePredicatePrototypeID(s, e, idx)

	if !srcOK || !dstOK || srcProto == "" || dstProto == "" || predProto == "" {
		return nil
	}

	statement := func(subj, pred, obj string) map[string]any {
		return map[string]any{
			"@type":     "Statement",
			"subject":   idRef("prototype", subj),
			"predicate": idRef("prototype", pred),
			"object":    idRef("prototype", obj),
		}
	}

	stmts := []any{statement(srcProto, predProto, dstProto)}
	if len(e.Directionality.ArrowsToward) == 0 {
		stmts = append(stmts, statement(dstProto, predProto, srcProto))
	}
	return stmts
}
